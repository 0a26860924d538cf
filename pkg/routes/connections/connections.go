// Package connections exposes the connection request lifecycle over HTTP
package connections

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	appctx "github.com/Ramsey-B/stem/pkg/context"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/connections"
)

// Handler handles connection API requests
type Handler struct {
	service *connections.Service
}

// NewHandler creates a new connections handler
func NewHandler(service *connections.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the connection routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/connections/:userId", h.Request)
	g.GET("/connections", h.List)
	g.GET("/connections/status/:userId", h.Status)
	g.GET("/connections/requests", h.ListIncoming)
	g.GET("/connections/requests/sent", h.ListSent)
	g.POST("/connections/requests/:id/accept", h.Accept)
	g.POST("/connections/requests/:id/reject", h.Reject)
	g.DELETE("/connections/requests/:id", h.Cancel)
}

// RequestBody is the optional request body for sending a connection request
type RequestBody struct {
	Message *string `json:"message,omitempty"`
}

// Request handles POST /connections/:userId
func (h *Handler) Request(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var body RequestBody
	if err := c.Bind(&body); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	req, err := h.service.Request(ctx, userID, c.Param("userId"), body.Message)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, req)
}

// List handles GET /connections
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	users, err := h.service.ListConnections(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, users)
}

// Status handles GET /connections/status/:userId
func (h *Handler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	standing, err := h.service.StatusBetween(ctx, userID, c.Param("userId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, standing)
}

// ListIncoming handles GET /connections/requests
func (h *Handler) ListIncoming(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	requests, err := h.service.ListIncoming(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, requests)
}

// ListSent handles GET /connections/requests/sent
func (h *Handler) ListSent(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	requests, err := h.service.ListSent(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, requests)
}

// Accept handles POST /connections/requests/:id/accept
func (h *Handler) Accept(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	req, err := h.service.Accept(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, req)
}

// Reject handles POST /connections/requests/:id/reject
func (h *Handler) Reject(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	req, err := h.service.Reject(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, req)
}

// Cancel handles DELETE /connections/requests/:id
func (h *Handler) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.service.Cancel(ctx, c.Param("id"), userID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func currentUser(c echo.Context) (string, error) {
	userID := appctx.GetUserID(c.Request().Context())
	if userID == "" {
		return "", httperror.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return userID, nil
}

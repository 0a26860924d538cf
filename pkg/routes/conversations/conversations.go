// Package conversations exposes the conversation lifecycle over HTTP.
// The caller's identity comes from the X-User-ID header via middleware.
package conversations

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	appctx "github.com/Ramsey-B/stem/pkg/context"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/messaging"
	"github.com/Ramsey-B/aster/pkg/utils"
)

// Handler handles conversation API requests
type Handler struct {
	service *messaging.Service
}

// NewHandler creates a new conversations handler
func NewHandler(service *messaging.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the conversation routes
func (h *Handler) RegisterRoutes(g *echo.Group) {
	conversations := g.Group("/conversations")
	conversations.POST("/job", h.StartJob)
	conversations.POST("/direct", h.StartDirect)
	conversations.GET("", h.List)
	conversations.GET("/:id/messages", h.ListMessages)
	conversations.POST("/:id/messages", h.SendMessage)
	conversations.POST("/:id/read", h.MarkRead)
	conversations.POST("/:id/accept", h.Accept)
	conversations.POST("/:id/close", h.Close)
	conversations.POST("/:id/reopen", h.Reopen)
	conversations.DELETE("/:id", h.Delete)
}

// StartJobRequest is the request body for starting a job conversation
type StartJobRequest struct {
	JobID string `json:"job_id" validate:"required"`
}

// StartJob handles POST /conversations/job
func (h *Handler) StartJob(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req StartJobRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := utils.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conv, err := h.service.StartJobConversation(ctx, userID, req.JobID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, conv)
}

// StartDirectRequest is the request body for starting a direct conversation
type StartDirectRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// StartDirect handles POST /conversations/direct
func (h *Handler) StartDirect(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req StartDirectRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if _, err := utils.Validate(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	conv, err := h.service.StartDirectConversation(ctx, userID, req.UserID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, conv)
}

// List handles GET /conversations
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	summaries, err := h.service.ListConversations(ctx, userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, summaries)
}

// ListMessages handles GET /conversations/:id/messages
func (h *Handler) ListMessages(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	messages, err := h.service.ListMessages(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, messages)
}

// SendMessageRequest is the request body for sending a message
type SendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// SendMessage handles POST /conversations/:id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := h.service.SendMessage(ctx, c.Param("id"), userID, req.Text)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /conversations/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.service.MarkRead(ctx, c.Param("id"), userID); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

// Accept handles POST /conversations/:id/accept
func (h *Handler) Accept(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	conv, err := h.service.AcceptChat(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, conv)
}

// Close handles POST /conversations/:id/close
func (h *Handler) Close(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	conv, err := h.service.CloseChat(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, conv)
}

// Reopen handles POST /conversations/:id/reopen
func (h *Handler) Reopen(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	conv, err := h.service.ReopenChat(ctx, c.Param("id"), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, conv)
}

// Delete handles DELETE /conversations/:id
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteConversation(ctx, c.Param("id"), userID); err != nil {
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

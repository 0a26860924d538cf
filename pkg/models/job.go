package models

// JobStatus is the lifecycle status of a job posting
type JobStatus string

const (
	JobStatusOpen   JobStatus = "open"
	JobStatusClosed JobStatus = "closed"
)

// Job is the job-posting view consumed by the gating engine. Job CRUD is
// owned by the posting service; the core only reads status and ownership.
type Job struct {
	ID         string    `json:"id" db:"id"`
	EmployerID string    `json:"employer_id" db:"employer_id"`
	Title      string    `json:"title" db:"title"`
	Status     JobStatus `json:"status" db:"status"`
	IsActive   bool      `json:"is_active" db:"is_active"`
}

// Open reports whether the job still accepts conversation traffic
func (j *Job) Open() bool {
	return j != nil && j.Status != JobStatusClosed && j.IsActive
}

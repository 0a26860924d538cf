package models

import "time"

// Application records a job seeker applying to a job. Accepting a chat
// creates one implicitly if none exists; the pair is unique per job.
type Application struct {
	ID          string    `json:"id" db:"id"`
	JobID       string    `json:"job_id" db:"job_id"`
	JobSeekerID string    `json:"job_seeker_id" db:"job_seeker_id"`
	Source      string    `json:"source" db:"source"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

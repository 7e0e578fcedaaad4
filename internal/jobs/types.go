// Package jobs persists the generation job queue: a bounded state machine
// with rate-limited creation, capped retries, and a decoupled worker trigger.
package jobs

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid job request")
	ErrRateLimited    = errors.New("job creation rate limit exceeded")
	ErrJobProcessing  = errors.New("job is processing")
	ErrRetryExhausted = errors.New("job retry limit reached")
	ErrNotRetryable   = errors.New("only failed jobs can be retried")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobTypeMeditation is the only job type today. The column exists so the
// queue can carry other deferred work later without a migration.
const JobTypeMeditation = "meditation_generation"

// maxErrorMessageLen bounds what a failed pipeline can write onto the row.
const maxErrorMessageLen = 500

type Job struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	JobType         string     `json:"job_type"`
	Status          Status     `json:"status"`
	ExperienceIDs   []string   `json:"experience_ids"`
	DurationMinutes int        `json:"duration_minutes"`
	ReflectionType  string     `json:"reflection_type"`
	RangeStart      *time.Time `json:"range_start,omitempty"`
	RangeEnd        *time.Time `json:"range_end,omitempty"`
	RetryCount      int        `json:"retry_count"`
	MeditationID    *string    `json:"meditation_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (j Job) Clone() Job {
	out := j
	out.ExperienceIDs = append([]string(nil), j.ExperienceIDs...)
	if j.RangeStart != nil {
		t := *j.RangeStart
		out.RangeStart = &t
	}
	if j.RangeEnd != nil {
		t := *j.RangeEnd
		out.RangeEnd = &t
	}
	if j.MeditationID != nil {
		s := *j.MeditationID
		out.MeditationID = &s
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// RetryPermitted reports whether an owner-initiated retry would be accepted.
func (j Job) RetryPermitted(maxRetries int) bool {
	return j.Status == StatusFailed && j.RetryCount < maxRetries
}

// Event is one job state transition fanned out to websocket subscribers.
type Event struct {
	Type         string    `json:"type"`
	JobID        string    `json:"job_id"`
	Status       Status    `json:"status"`
	MeditationID string    `json:"meditation_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	RetryCount   int       `json:"retry_count,omitempty"`
	At           time.Time `json:"at"`
}

const (
	EventJobQueued    = "job.queued"
	EventJobStarted   = "job.started"
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

func truncateError(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen]
}

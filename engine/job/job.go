// Package job provides the durable job model for the nightdesk engine.
//
// A Job is a unit of deferred or recurring work: scheduled by the assistant
// on a user's behalf ("send this email at 9am", "check the calendar every
// hour") and executed by the runner loop once its run time arrives. Jobs are
// persisted in SQLite and survive process restarts; the status column plus
// conditional updates in Store are the only concurrency control.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nightdesk/nightdesk/errors"
)

// Status represents the current state of a job within one execution cycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// IsValidStatus returns true if the status string is a valid Status.
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// ErrValidation marks a job definition rejected at creation time.
var ErrValidation = errors.New("invalid job definition")

// CreateGrace is how far in the past a new job's run time may lie before
// creation is rejected. Clock skew between the requesting client and the
// engine is no reason to refuse a "run this now" job.
const CreateGrace = 2 * time.Minute

// Job represents a scheduled unit of work.
//
// Payload is opaque to the engine; only the handler registered for Type
// interprets it. Recurrence re-enters a completed cycle at pending with an
// advanced run time rather than terminating the job.
type Job struct {
	ID         string          `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RunAt      time.Time       `json:"run_at"`
	Recurrence Recurrence      `json:"recurrence,omitempty"`
	Status     Status          `json:"status"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// New creates a pending job ready for insertion.
//
// Validation failures (empty owner or type, unknown recurrence, run time in
// the past beyond CreateGrace) return an error matching ErrValidation.
func New(ownerID, jobType string, payload json.RawMessage, runAt time.Time, recurrence Recurrence) (*Job, error) {
	if ownerID == "" {
		return nil, errors.Wrap(ErrValidation, "ownerID cannot be empty")
	}
	if jobType == "" {
		return nil, errors.Wrap(ErrValidation, "type cannot be empty")
	}
	if !recurrence.Valid() {
		return nil, errors.Wrapf(ErrValidation, "unrecognized recurrence %q", string(recurrence))
	}

	now := time.Now().UTC()
	if runAt.Before(now.Add(-CreateGrace)) {
		return nil, errors.Wrapf(ErrValidation, "run time %s is in the past", runAt.Format(time.RFC3339))
	}

	return &Job{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Type:       jobType,
		Payload:    payload,
		RunAt:      runAt.UTC(),
		Recurrence: recurrence,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsRecurring reports whether the job re-arms after each cycle.
func (j *Job) IsRecurring() bool {
	return j.Recurrence != RecurrenceNone
}

// CycleEpoch identifies the execution cycle the job is currently in.
// The scheduled run time is unique per cycle (Advance always moves it
// forward), which makes it a stable key for per-cycle dedup such as
// failure notifications.
func (j *Job) CycleEpoch() int64 {
	return j.RunAt.Unix()
}

// Package remind implements one-shot reminders and the loop that fires
// them. Reminders are simpler than jobs — no handler dispatch, no
// recurrence — so they get their own narrow store and a CAS on the fired
// flag instead of the full job state machine.
package remind

import (
	"time"

	"github.com/google/uuid"

	"github.com/nightdesk/nightdesk/errors"
)

// Reminder is a message to surface to its owner at a point in time.
type Reminder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Message   string    `json:"message"`
	RemindAt  time.Time `json:"remind_at"`
	Fired     bool      `json:"fired"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates an unfired reminder.
func New(ownerID, message string, remindAt time.Time) (*Reminder, error) {
	if ownerID == "" {
		return nil, errors.New("ownerID cannot be empty")
	}
	if message == "" {
		return nil, errors.New("message cannot be empty")
	}

	return &Reminder{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Message:   message,
		RemindAt:  remindAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

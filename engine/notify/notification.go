// Package notify turns qualifying events into deduplicated notifications.
//
// The path is: caller builds a Notification, Notifier consults the durable
// Ledger (an idempotency log keyed by subject/source/event), and only an
// unseen key gets published onto the outbound queue. The ledger insert is
// the entire at-most-once mechanism — it holds across process restarts and
// across overlapping loop ticks.
package notify

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications for eventual display or paging.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Action is a suggestion attached to a notification ("open PR", "snooze").
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// Notification is the unit handed to the outbound delivery channel.
type Notification struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Priority  Priority  `json:"priority"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// New creates a notification for a subject.
func New(subjectID string, priority Priority, title, body string) *Notification {
	return &Notification{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Priority:  priority,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

package remind

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/engine/job"
	"github.com/nightdesk/nightdesk/engine/notify"
	"github.com/nightdesk/nightdesk/errors"
)

// Source is the dedup source for reminder notifications.
const Source = "reminder"

// Checker is the reminder loop: finds due reminders and notifies.
type Checker struct {
	store    *Store
	notifier *notify.Notifier
	log      *zap.SugaredLogger
}

// NewChecker creates the reminder checker.
func NewChecker(store *Store, notifier *notify.Notifier, log *zap.SugaredLogger) *Checker {
	return &Checker{
		store:    store,
		notifier: notifier,
		log:      log.Named("remind"),
	}
}

// Tick fires every due reminder once. MarkFired's CAS keeps overlapping
// ticks exclusive; the dedup ledger (keyed by reminder id) backstops it
// across restarts.
func (c *Checker) Tick(ctx context.Context, now time.Time) error {
	due, err := c.store.Due(now)
	if err != nil {
		return errors.Wrap(err, "failed to list due reminders")
	}

	for _, r := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		won, err := c.store.MarkFired(r.ID)
		if err != nil {
			c.log.Errorw("Failed to mark reminder fired",
				"reminder_id", r.ID,
				"error", err,
			)
			continue
		}
		if !won {
			continue
		}

		notif := notify.New(r.OwnerID, notify.PriorityNormal, "Reminder", r.Message)
		if _, err := c.notifier.Notify(Source, r.ID, notif); err != nil {
			c.log.Errorw("Failed to publish reminder",
				"reminder_id", r.ID,
				"error", err,
			)
		}
	}

	return nil
}

// JobHandler lets reminders also ride the job machinery: a job of type
// "reminder" whose payload carries the message emits a notification when
// the runner executes it. Recurring reminders ("every day at 9am") come
// through this path rather than the reminders table.
type JobHandler struct {
	notifier *notify.Notifier
}

// NewJobHandler creates the reminder job handler.
func NewJobHandler(notifier *notify.Notifier) *JobHandler {
	return &JobHandler{notifier: notifier}
}

// JobType is the job type served by JobHandler.
const JobType = "reminder"

type jobPayload struct {
	Message string `json:"message"`
}

func (h *JobHandler) Name() string { return JobType }

// Execute emits the reminder notification for one job cycle.
// The dedup key includes the cycle epoch so each recurrence fires once.
func (h *JobHandler) Execute(ctx context.Context, j *job.Job) error {
	var payload jobPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode reminder payload")
	}
	if payload.Message == "" {
		return errors.New("reminder payload has no message")
	}

	notif := notify.New(j.OwnerID, notify.PriorityNormal, "Reminder", payload.Message)
	eventID := j.ID + ":" + time.Unix(j.CycleEpoch(), 0).UTC().Format(time.RFC3339)

	if _, err := h.notifier.Notify(Source, eventID, notif); err != nil {
		return errors.Wrap(err, "failed to publish reminder notification")
	}

	return nil
}

// Package source defines the contract for external event sources and the
// checker loop that polls them.
//
// A Source is a narrow adapter over some external system (an inbox, a
// calendar, a CI provider). The engine never sees the provider's API shape,
// only Events; dedup against re-polling the same events is the Notifier's
// job, keyed by each event's ID.
package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/engine/notify"
	"github.com/nightdesk/nightdesk/errors"
)

// Event is one qualifying occurrence reported by a source.
//
// ID must be stable across polls of the same underlying occurrence — either
// the provider's native event id, or a notify.ContentSignature for
// condition-style alerts that have no discrete identity.
type Event struct {
	ID       string
	Title    string
	Body     string
	Priority notify.Priority
	Actions  []notify.Action
}

// Source is a pollable external event source.
type Source interface {
	// Name identifies the source in dedup keys and logs ("github", "mail").
	Name() string

	// Poll returns the current qualifying events for a subject.
	// Failures must be returned as errors, never as partial silent data.
	Poll(ctx context.Context, subjectID string) ([]Event, error)
}

// Checker polls one source each tick and funnels events to the notifier.
type Checker struct {
	source    Source
	notifier  *notify.Notifier
	subjectID string
	log       *zap.SugaredLogger
}

// NewChecker creates a checker for a single (source, subject) pair.
func NewChecker(src Source, notifier *notify.Notifier, subjectID string, log *zap.SugaredLogger) *Checker {
	return &Checker{
		source:    src,
		notifier:  notifier,
		subjectID: subjectID,
		log:       log.Named("source." + src.Name()),
	}
}

// Tick polls the source once. Poll errors propagate to the orchestrator's
// per-loop isolation and retry on the next tick; the notifier suppresses
// events already seen, so re-polling after a partial failure is safe.
func (c *Checker) Tick(ctx context.Context, now time.Time) error {
	events, err := c.source.Poll(ctx, c.subjectID)
	if err != nil {
		return errors.Wrapf(err, "poll %s", c.source.Name())
	}

	for _, evt := range events {
		priority := evt.Priority
		if priority == "" {
			priority = notify.PriorityNormal
		}

		notif := notify.New(c.subjectID, priority, evt.Title, evt.Body)
		notif.Actions = evt.Actions

		published, err := c.notifier.Notify(c.source.Name(), evt.ID, notif)
		if err != nil {
			return errors.Wrapf(err, "notify for %s event %s", c.source.Name(), evt.ID)
		}
		if published {
			c.log.Debugw("Event published",
				"event_id", evt.ID,
				"title", evt.Title,
			)
		}
	}

	return nil
}

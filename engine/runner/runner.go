// Package runner executes due jobs. It is one loop among several in the
// engine, but carries the richest state machine: per cycle a job moves
// pending -> running -> done|failed, with MarkRunning's conditional update
// as the only double-execution guard and recurrence as the only re-entry
// path after a terminal state.
package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/engine/job"
	"github.com/nightdesk/nightdesk/engine/notify"
	"github.com/nightdesk/nightdesk/errors"
)

// DefaultHandlerTimeout bounds a single handler invocation. A stuck handler
// fails its job instead of starving subsequent ticks.
const DefaultHandlerTimeout = 30 * time.Second

// FailureSource is the dedup source for job failure notifications.
const FailureSource = "job-failure"

// Runner claims due jobs and dispatches them to registered handlers.
type Runner struct {
	store          *job.Store
	registry       *job.Registry
	notifier       *notify.Notifier
	handlerTimeout time.Duration
	log            *zap.SugaredLogger
}

// NewRunner creates a runner. The registry is passed in explicitly so tests
// can wire fake handlers. handlerTimeout <= 0 uses DefaultHandlerTimeout.
func NewRunner(store *job.Store, registry *job.Registry, notifier *notify.Notifier, handlerTimeout time.Duration, log *zap.SugaredLogger) *Runner {
	if handlerTimeout <= 0 {
		handlerTimeout = DefaultHandlerTimeout
	}
	return &Runner{
		store:          store,
		registry:       registry,
		notifier:       notifier,
		handlerTimeout: handlerTimeout,
		log:            log.Named("runner"),
	}
}

// Tick runs one pass of the job loop: claim every due job and execute it.
// A tick that finds nothing due is a no-op. Failures of individual jobs are
// absorbed per job; only a failure to query the store surfaces to the loop.
func (r *Runner) Tick(ctx context.Context, now time.Time) error {
	due, err := r.store.DueJobs(now)
	if err != nil {
		return errors.Wrap(err, "failed to list due jobs")
	}

	for _, j := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		won, err := r.store.MarkRunning(j.ID)
		if err != nil {
			r.log.Errorw("Failed to claim job",
				"job_id", j.ID,
				"type", j.Type,
				"error", err,
			)
			continue
		}
		if !won {
			// Another tick got here first; its cycle owns the job now.
			continue
		}

		r.execute(ctx, j)
	}

	return nil
}

// execute runs one claimed job to its terminal state for this cycle.
func (r *Runner) execute(ctx context.Context, j *job.Job) {
	handler := r.registry.Get(j.Type)
	if handler == nil {
		r.fail(j, errors.Wrapf(job.ErrHandlerNotFound, "type %q", j.Type))
		return
	}

	// The loop's stop signal only gates claiming; a claimed job runs to
	// completion under its own timeout. Cancelling it here would turn a
	// graceful shutdown into a terminal failure for whatever was in flight.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.handlerTimeout)
	err := handler.Execute(hctx, j)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Wrapf(err, "handler %q timed out after %s", j.Type, r.handlerTimeout)
		}
		r.fail(j, err)
		return
	}

	r.succeed(j)
}

func (r *Runner) succeed(j *job.Job) {
	if j.IsRecurring() {
		next := j.Recurrence.Advance(j.RunAt)
		if err := r.store.Reschedule(j.ID, next); err != nil {
			r.log.Errorw("Failed to reschedule recurring job",
				"job_id", j.ID,
				"type", j.Type,
				"error", err,
			)
			return
		}
		r.log.Infow("Job completed, recurring",
			"job_id", j.ID,
			"type", j.Type,
			"next_run_at", next.Format(time.RFC3339),
		)
		return
	}

	if err := r.store.MarkDone(j.ID); err != nil {
		r.log.Errorw("Failed to mark job done",
			"job_id", j.ID,
			"type", j.Type,
			"error", err,
		)
		return
	}
	r.log.Infow("Job completed",
		"job_id", j.ID,
		"type", j.Type,
	)
}

// fail records the failure and raises exactly one failure notification for
// this cycle. Recurrence re-arms even after failure: one missed cycle must
// not kill the series, and callers wanting hard-stop-on-failure cancel
// explicitly.
func (r *Runner) fail(j *job.Job, execErr error) {
	r.log.Errorw("Job failed",
		"job_id", j.ID,
		"type", j.Type,
		"error", execErr,
	)

	if j.IsRecurring() {
		next := j.Recurrence.Advance(j.RunAt)
		if err := r.store.RescheduleAfterFailure(j.ID, next, execErr.Error()); err != nil {
			r.log.Errorw("Failed to re-arm recurring job after failure",
				"job_id", j.ID,
				"error", err,
			)
		}
	} else {
		if err := r.store.MarkFailed(j.ID, execErr.Error()); err != nil {
			r.log.Errorw("Failed to mark job failed",
				"job_id", j.ID,
				"error", err,
			)
		}
	}

	// Keyed by job id + cycle epoch: polling a failed job awaiting its next
	// recurrence does not re-alert, while each failed cycle alerts once.
	eventID := fmt.Sprintf("%s:%d", j.ID, j.CycleEpoch())
	notif := notify.New(j.OwnerID, notify.PriorityHigh,
		fmt.Sprintf("Job %q failed", j.Type),
		execErr.Error())

	if _, err := r.notifier.Notify(FailureSource, eventID, notif); err != nil {
		r.log.Errorw("Failed to publish failure notification",
			"job_id", j.ID,
			"error", err,
		)
	}
}

package engine

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/engine/job"
	"github.com/nightdesk/nightdesk/engine/notify"
	"github.com/nightdesk/nightdesk/engine/remind"
	"github.com/nightdesk/nightdesk/engine/runner"
	"github.com/nightdesk/nightdesk/engine/source"
	"github.com/nightdesk/nightdesk/engine/webhook"
	"github.com/nightdesk/nightdesk/errors"
)

// Intervals configures each loop's cadence and the cleanup retention.
// Zero values take the defaults.
type Intervals struct {
	Jobs      time.Duration
	Reminders time.Duration
	Sources   time.Duration
	Webhooks  time.Duration
	Cleanup   time.Duration
	Retention time.Duration
}

func (iv *Intervals) applyDefaults() {
	if iv.Jobs <= 0 {
		iv.Jobs = 5 * time.Second
	}
	if iv.Reminders <= 0 {
		iv.Reminders = 10 * time.Second
	}
	if iv.Sources <= 0 {
		iv.Sources = time.Minute
	}
	if iv.Webhooks <= 0 {
		iv.Webhooks = 5 * time.Minute
	}
	if iv.Cleanup <= 0 {
		iv.Cleanup = time.Hour
	}
	if iv.Retention <= 0 {
		iv.Retention = 30 * 24 * time.Hour
	}
}

// Engine is the background process of the assistant: it owns the durable
// stores, the notifier, and the orchestrated loops, independent of any
// foreground interaction.
type Engine struct {
	jobs      *job.Store
	reminders *remind.Store
	ledger    *notify.Ledger
	notifier  *notify.Notifier
	runner    *runner.Runner
	registrar *webhook.Registrar
	orch      *Orchestrator
	intervals Intervals
	log       *zap.SugaredLogger
}

// Options carries the optional collaborators an Engine can run without.
type Options struct {
	// Registry supplies job handlers; required for the job loop to do
	// useful work but the engine runs (and fails jobs) without it.
	Registry *job.Registry
	// Sources are polled on the sources interval, one loop each.
	Sources []source.Source
	// SubjectID is the owner all source checkers poll on behalf of.
	SubjectID string
	// Registrar, when set, adds the webhook reconciliation loop.
	Registrar *webhook.Registrar
	// HandlerTimeout bounds each job handler invocation.
	HandlerTimeout time.Duration
	// QueueSize sizes the outbound notification channel.
	QueueSize int
	// Clock overrides the system clock (tests).
	Clock Clock
}

// New wires an engine over an open, migrated database.
func New(ctx context.Context, database *sql.DB, intervals Intervals, opts Options, log *zap.SugaredLogger) *Engine {
	intervals.applyDefaults()

	registry := opts.Registry
	if registry == nil {
		registry = job.NewRegistry()
	}

	ledger := notify.NewLedger(database)
	notifier := notify.NewNotifier(ledger, opts.QueueSize, log)
	jobs := job.NewStore(database)
	reminders := remind.NewStore(database)

	e := &Engine{
		jobs:      jobs,
		reminders: reminders,
		ledger:    ledger,
		notifier:  notifier,
		runner:    runner.NewRunner(jobs, registry, notifier, opts.HandlerTimeout, log),
		registrar: opts.Registrar,
		orch:      NewOrchestrator(ctx, opts.Clock, log),
		intervals: intervals,
		log:       log.Named("engine"),
	}

	e.orch.Add("jobs", intervals.Jobs, e.runner.Tick)

	reminderChecker := remind.NewChecker(reminders, notifier, log)
	e.orch.Add("reminders", intervals.Reminders, reminderChecker.Tick)

	for _, src := range opts.Sources {
		checker := source.NewChecker(src, notifier, opts.SubjectID, log)
		e.orch.Add("source."+src.Name(), intervals.Sources, checker.Tick)
	}

	if e.registrar != nil {
		e.orch.Add("webhooks", intervals.Webhooks, e.registrar.Tick)
	}

	e.orch.Add("cleanup", intervals.Cleanup, e.cleanupTick)

	return e
}

// Start recovers stuck jobs and arms all loops. Recovery runs before the
// job loop's first tick, on every Start: a process that died mid-execution
// left running rows that must become eligible again.
func (e *Engine) Start() error {
	reset, err := e.jobs.ResetStuck()
	if err != nil {
		return errors.Wrap(err, "failed to reset stuck jobs")
	}
	if reset > 0 {
		e.log.Infow("Recovered stuck jobs from previous run", "count", reset)
	}

	e.orch.Start()
	return nil
}

// Stop disarms all loops; in-flight ticks finish. Safe to call repeatedly.
func (e *Engine) Stop() {
	e.orch.Stop()
}

// Jobs exposes the job store for request-path callers (schedule/cancel).
func (e *Engine) Jobs() *job.Store { return e.jobs }

// Reminders exposes the reminder store for request-path callers.
func (e *Engine) Reminders() *remind.Store { return e.reminders }

// Notifier exposes the notifier, mainly for its outbound queue.
func (e *Engine) Notifier() *notify.Notifier { return e.notifier }

// cleanupTick purges expired dedup records and stale fired reminders.
// Jobs are never deleted here; cancellation is the only delete path.
func (e *Engine) cleanupTick(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-e.intervals.Retention)

	purged, err := e.ledger.PurgeOlderThan(cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to purge dedup ledger")
	}

	reminders, err := e.reminders.PurgeFired(cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to purge fired reminders")
	}

	if purged > 0 || reminders > 0 {
		e.log.Infow("Cleanup pass complete",
			"dedup_purged", purged,
			"reminders_purged", reminders,
		)
	}

	return nil
}

package runner_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightdesk/nightdesk/engine/job"
	"github.com/nightdesk/nightdesk/engine/notify"
	"github.com/nightdesk/nightdesk/engine/runner"
	"github.com/nightdesk/nightdesk/errors"
	ndtest "github.com/nightdesk/nightdesk/internal/testing"
	"github.com/nightdesk/nightdesk/logger"
)

type harness struct {
	store    *job.Store
	registry *job.Registry
	notifier *notify.Notifier
	runner   *runner.Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	database := ndtest.CreateTestDB(t)
	log := logger.NewTest()

	store := job.NewStore(database)
	registry := job.NewRegistry()
	notifier := notify.NewNotifier(notify.NewLedger(database), 16, log)

	return &harness{
		store:    store,
		registry: registry,
		notifier: notifier,
		runner:   runner.NewRunner(store, registry, notifier, time.Second, log),
	}
}

func (h *harness) createDue(t *testing.T, jobType string, recurrence job.Recurrence) *job.Job {
	t.Helper()
	j, err := job.New("alice", jobType, nil, time.Now().UTC().Add(-time.Minute), recurrence)
	require.NoError(t, err)
	require.NoError(t, h.store.Create(j))
	return j
}

func TestTickExecutesDueJobOnce(t *testing.T) {
	h := newHarness(t)

	var calls atomic.Int32
	h.registry.Register(job.HandlerFunc{
		TypeName: "ping",
		Fn: func(ctx context.Context, j *job.Job) error {
			calls.Add(1)
			return nil
		},
	})

	j := h.createDue(t, "ping", job.RecurrenceNone)

	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))
	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))

	assert.Equal(t, int32(1), calls.Load())

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDone, got.Status)
	assert.Empty(t, got.LastError)
}

func TestTickReArmsRecurringJob(t *testing.T) {
	h := newHarness(t)

	h.registry.Register(job.HandlerFunc{
		TypeName: "poll",
		Fn:       func(ctx context.Context, j *job.Job) error { return nil },
	})

	j := h.createDue(t, "poll", job.RecurrenceHourly)
	origRunAt := j.RunAt

	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	// Advanced from the scheduled time, not from now.
	assert.Equal(t, origRunAt.Add(time.Hour).Unix(), got.RunAt.Unix())
}

func TestTickFailsJobWithoutHandler(t *testing.T) {
	h := newHarness(t)

	j := h.createDue(t, "unknown.type", job.RecurrenceNone)

	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "no handler registered")

	// Failure raised a notification.
	select {
	case n := <-h.notifier.Outbound():
		assert.Equal(t, "alice", n.SubjectID)
		assert.Equal(t, notify.PriorityHigh, n.Priority)
	default:
		t.Fatal("expected a failure notification")
	}
}

func TestTickPreservesHandlerError(t *testing.T) {
	h := newHarness(t)

	h.registry.Register(job.HandlerFunc{
		TypeName: "flaky",
		Fn: func(ctx context.Context, j *job.Job) error {
			return errors.New("smtp connection refused")
		},
	})

	j := h.createDue(t, "flaky", job.RecurrenceNone)

	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "smtp connection refused")
}

func TestTickRecurringFailureReArms(t *testing.T) {
	h := newHarness(t)

	h.registry.Register(job.HandlerFunc{
		TypeName: "flaky",
		Fn: func(ctx context.Context, j *job.Job) error {
			return errors.New("upstream 503")
		},
	})

	j := h.createDue(t, "flaky", job.RecurrenceDaily)
	origRunAt := j.RunAt

	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, got.Status)
	assert.Equal(t, origRunAt.Add(24*time.Hour).Unix(), got.RunAt.Unix())
	assert.Contains(t, got.LastError, "upstream 503")
}

func TestTickTimesOutStuckHandler(t *testing.T) {
	h := newHarness(t)

	h.registry.Register(job.HandlerFunc{
		TypeName: "stuck",
		Fn: func(ctx context.Context, j *job.Job) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	j := h.createDue(t, "stuck", job.RecurrenceNone)

	start := time.Now()
	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))
	assert.Less(t, time.Since(start), 5*time.Second)

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "timed out")
}

func TestTickCancellationSparesRunningHandler(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())

	h.registry.Register(job.HandlerFunc{
		TypeName: "slow",
		Fn: func(hctx context.Context, j *job.Job) error {
			// Simulate shutdown arriving mid-execution. The handler's own
			// context must stay live; only its timeout may end it.
			cancel()
			select {
			case <-hctx.Done():
				return hctx.Err()
			case <-time.After(50 * time.Millisecond):
				return nil
			}
		},
	})

	j := h.createDue(t, "slow", job.RecurrenceNone)

	require.NoError(t, h.runner.Tick(ctx, time.Now().UTC()))

	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusDone, got.Status)
	assert.Empty(t, got.LastError)
}

func TestTickCancellationStopsClaimingFurtherJobs(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())

	var executed atomic.Int32
	h.registry.Register(job.HandlerFunc{
		TypeName: "ping",
		Fn: func(hctx context.Context, j *job.Job) error {
			executed.Add(1)
			cancel()
			return nil
		},
	})

	h.createDue(t, "ping", job.RecurrenceNone)
	h.createDue(t, "ping", job.RecurrenceNone)

	err := h.runner.Tick(ctx, time.Now().UTC())
	require.ErrorIs(t, err, context.Canceled)

	// The first job ran to completion; the second was never claimed and
	// stays pending for the next start.
	assert.Equal(t, int32(1), executed.Load())
	due, err := h.store.DueJobs(time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestFailureNotificationOncePerCycle(t *testing.T) {
	h := newHarness(t)

	h.registry.Register(job.HandlerFunc{
		TypeName: "flaky",
		Fn: func(ctx context.Context, j *job.Job) error {
			return errors.New("boom")
		},
	})

	j := h.createDue(t, "flaky", job.RecurrenceNone)

	require.NoError(t, h.runner.Tick(context.Background(), time.Now().UTC()))

	// A second attempt to alert for the same cycle must be suppressed by
	// the ledger regardless of who raises it.
	got, err := h.store.Get(j.ID)
	require.NoError(t, err)
	eventID := fmt.Sprintf("%s:%d", got.ID, got.CycleEpoch())

	published, err := h.notifier.Notify(
		runner.FailureSource,
		eventID,
		notify.New("alice", notify.PriorityHigh, "Job \"flaky\" failed", "boom"),
	)
	require.NoError(t, err)
	assert.False(t, published)

	count := 0
	for {
		select {
		case <-h.notifier.Outbound():
			count++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 1, count)
}

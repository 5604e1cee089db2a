package source_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightdesk/nightdesk/engine/notify"
	"github.com/nightdesk/nightdesk/engine/source"
	"github.com/nightdesk/nightdesk/errors"
	ndtest "github.com/nightdesk/nightdesk/internal/testing"
	"github.com/nightdesk/nightdesk/logger"
)

type stubSource struct {
	name   string
	events []source.Event
	err    error
	polls  int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Poll(ctx context.Context, subjectID string) ([]source.Event, error) {
	s.polls++
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func newChecker(t *testing.T, src source.Source) (*source.Checker, *notify.Notifier) {
	t.Helper()
	database := ndtest.CreateTestDB(t)
	notifier := notify.NewNotifier(notify.NewLedger(database), 8, logger.NewTest())
	return source.NewChecker(src, notifier, "alice", logger.NewTest()), notifier
}

func TestTickPublishesNewEventsOnce(t *testing.T) {
	src := &stubSource{name: "github", events: []source.Event{
		{ID: "pr-42", Title: "Review requested", Priority: notify.PriorityHigh},
	}}
	checker, notifier := newChecker(t, src)

	// Re-polling the same event across ticks notifies once.
	require.NoError(t, checker.Tick(context.Background(), time.Now()))
	require.NoError(t, checker.Tick(context.Background(), time.Now()))
	assert.Equal(t, 2, src.polls)

	require.Len(t, notifier.Outbound(), 1)
	n := <-notifier.Outbound()
	assert.Equal(t, "Review requested", n.Title)
	assert.Equal(t, notify.PriorityHigh, n.Priority)
}

func TestTickDefaultsPriority(t *testing.T) {
	src := &stubSource{name: "mail", events: []source.Event{
		{ID: "msg-1", Title: "New mail"},
	}}
	checker, notifier := newChecker(t, src)

	require.NoError(t, checker.Tick(context.Background(), time.Now()))

	n := <-notifier.Outbound()
	assert.Equal(t, notify.PriorityNormal, n.Priority)
}

func TestTickPropagatesPollError(t *testing.T) {
	src := &stubSource{name: "github", err: errors.New("rate limited")}
	checker, _ := newChecker(t, src)

	err := checker.Tick(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll github")
}

package notify

import (
	"go.uber.org/zap"
)

// DefaultQueueSize is the outbound channel capacity. Delivery cadence is
// decoupled from loop cadence; the buffer absorbs a slow or absent consumer.
const DefaultQueueSize = 256

// Notifier gates notifications through the Ledger and publishes survivors
// onto a buffered outbound queue for the delivery channel to drain.
type Notifier struct {
	ledger *Ledger
	out    chan *Notification
	log    *zap.SugaredLogger
}

// NewNotifier creates a notifier. queueSize <= 0 uses DefaultQueueSize.
func NewNotifier(ledger *Ledger, queueSize int, log *zap.SugaredLogger) *Notifier {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Notifier{
		ledger: ledger,
		out:    make(chan *Notification, queueSize),
		log:    log.Named("notify"),
	}
}

// Notify emits n at most once per (subject, source, sourceEventID).
// Returns true if the notification was published, false if the dedup ledger
// suppressed it. Publication never blocks the calling loop: if the outbound
// queue is full the notification is dropped with a warning — the dedup
// record stays, so a dropped notification is not retried.
func (n *Notifier) Notify(source, sourceEventID string, notif *Notification) (bool, error) {
	ok, err := n.ledger.ShouldNotify(notif.SubjectID, source, sourceEventID, notif.CreatedAt)
	if err != nil {
		return false, err
	}
	if !ok {
		n.log.Debugw("Notification suppressed by dedup ledger",
			"subject_id", notif.SubjectID,
			"source", source,
			"source_event_id", sourceEventID,
		)
		return false, nil
	}

	select {
	case n.out <- notif:
		n.log.Infow("Notification published",
			"subject_id", notif.SubjectID,
			"source", source,
			"priority", notif.Priority,
			"title", notif.Title,
		)
	default:
		n.log.Warnw("Outbound queue full, dropping notification",
			"subject_id", notif.SubjectID,
			"source", source,
			"title", notif.Title,
		)
	}

	return true, nil
}

// Outbound exposes the queue for the delivery consumer. Ordering follows
// successful Notify calls within this process; nothing more is guaranteed.
func (n *Notifier) Outbound() <-chan *Notification {
	return n.out
}

package notify

import (
	"database/sql"
	"time"

	"github.com/nightdesk/nightdesk/errors"
)

// Ledger is the durable idempotency log gating notification emission.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger over an open database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// ShouldNotify atomically records (subjectID, source, sourceEventID) and
// reports whether the caller may emit. The INSERT OR IGNORE either claims
// the key (proceed) or collides with an earlier insert (suppress); a
// collision is a normal outcome, not an error. The record exists before the
// notification is considered emitted, so a crash between insert and publish
// loses the notification rather than duplicating it.
//
// loggedAt is the record's retention anchor; callers pass their tick time
// so purge behavior stays deterministic under an injected clock.
func (l *Ledger) ShouldNotify(subjectID, source, sourceEventID string, loggedAt time.Time) (bool, error) {
	query := `
		INSERT OR IGNORE INTO notification_dedup (subject_id, source, source_event_id, logged_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := l.db.Exec(query, subjectID, source, sourceEventID, loggedAt.UTC())
	if err != nil {
		return false, errors.Wrapf(err, "failed to record dedup key %s/%s/%s", subjectID, source, sourceEventID)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return affected == 1, nil
}

// PurgeOlderThan removes dedup records logged before cutoff.
// Run by the cleanup loop once records are past the retention window;
// condition-based alerts already re-key per time bucket, so expiry cannot
// cause premature re-alerts within a bucket.
func (l *Ledger) PurgeOlderThan(cutoff time.Time) (int, error) {
	result, err := l.db.Exec(`DELETE FROM notification_dedup WHERE logged_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge dedup records")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(affected), nil
}

package remind

import (
	"database/sql"
	"time"

	"github.com/nightdesk/nightdesk/errors"
)

// ErrNotFound marks a reminder id with no matching row.
var ErrNotFound = errors.New("reminder not found")

// Store handles persistence of reminders.
type Store struct {
	db *sql.DB
}

// NewStore creates a reminder store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a reminder.
func (s *Store) Create(r *Reminder) error {
	query := `
		INSERT INTO reminders (id, owner_id, message, remind_at, fired, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query, r.ID, r.OwnerID, r.Message, r.RemindAt.UTC(), boolToInt(r.Fired), r.CreatedAt.UTC())
	if err != nil {
		return errors.Wrapf(err, "failed to create reminder %s", r.ID)
	}

	return nil
}

// Get retrieves a reminder by id.
func (s *Store) Get(id string) (*Reminder, error) {
	query := `SELECT id, owner_id, message, remind_at, fired, created_at FROM reminders WHERE id = ?`

	var r Reminder
	var fired int
	err := s.db.QueryRow(query, id).Scan(&r.ID, &r.OwnerID, &r.Message, &r.RemindAt, &fired, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get reminder")
	}
	r.Fired = fired != 0

	return &r, nil
}

// Due returns unfired reminders with remind_at <= now, oldest first.
func (s *Store) Due(now time.Time) ([]*Reminder, error) {
	query := `
		SELECT id, owner_id, message, remind_at, fired, created_at
		FROM reminders
		WHERE fired = 0 AND remind_at <= ?
		ORDER BY remind_at ASC, id ASC
	`

	rows, err := s.db.Query(query, now.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due reminders")
	}
	defer rows.Close()

	var reminders []*Reminder
	for rows.Next() {
		var r Reminder
		var fired int
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Message, &r.RemindAt, &fired, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		r.Fired = fired != 0
		reminders = append(reminders, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating reminders")
	}

	return reminders, nil
}

// MarkFired flips fired 0 -> 1 and reports whether this caller won the
// flip. Same pattern as the job store's MarkRunning: the conditional update
// keeps overlapping ticks from double-firing.
func (s *Store) MarkFired(id string) (bool, error) {
	result, err := s.db.Exec(`UPDATE reminders SET fired = 1 WHERE id = ? AND fired = 0`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to mark reminder %s fired", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return affected == 1, nil
}

// Delete removes a reminder regardless of fired state.
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete reminder %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "id %s", id)
	}

	return nil
}

// PurgeFired removes fired reminders older than cutoff.
func (s *Store) PurgeFired(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM reminders WHERE fired = 1 AND remind_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "failed to purge fired reminders")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(affected), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package job

import (
	"database/sql"
	"time"

	"github.com/nightdesk/nightdesk/errors"
)

// ErrNotFound marks a job id with no matching row in the state the caller
// required. Cancel reports it for running and terminal jobs too: a job that
// cannot be cancelled anymore is indistinguishable from one that never
// existed, by design of the cancellation contract.
var ErrNotFound = errors.New("job not found")

// DueBatchLimit caps how many due jobs a single tick will claim, so one
// backlogged tick cannot starve the loop indefinitely.
const DueBatchLimit = 100

// Store handles persistence of jobs.
//
// All cross-loop coordination goes through this store's conditional updates;
// there is no in-memory job state and no lock object. MarkRunning is the
// sole guard against double execution.
type Store struct {
	db *sql.DB
}

// NewStore creates a job store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobColumns = `id, owner_id, type, payload, run_at, recurrence, status, last_error, created_at, updated_at`

// Create inserts a pending job.
func (s *Store) Create(j *Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	payload := sql.NullString{String: string(j.Payload), Valid: len(j.Payload) > 0}

	_, err := s.db.Exec(query,
		j.ID,
		j.OwnerID,
		j.Type,
		payload,
		j.RunAt.UTC(),
		string(j.Recurrence),
		j.Status,
		sql.NullString{String: j.LastError, Valid: j.LastError != ""},
		j.CreatedAt.UTC(),
		j.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %s", j.ID)
	}

	return nil
}

// Get retrieves a job by id.
func (s *Store) Get(id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return j, nil
}

// DueJobs returns all pending jobs with run_at <= now, oldest due first.
// Ties on run_at break by job id so two ticks observing the same instant
// see the same order.
func (s *Store) DueJobs(now time.Time) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status = ? AND run_at <= ?
		ORDER BY run_at ASC, id ASC
		LIMIT ?
	`

	rows, err := s.db.Query(query, StatusPending, now.UTC(), DueBatchLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan due job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating due jobs")
	}

	return jobs, nil
}

// MarkRunning attempts the pending -> running transition.
// Returns true only if this caller won the transition. The conditional
// UPDATE is the entire mutual exclusion mechanism: of two concurrent
// claimants exactly one sees a row change.
func (s *Store) MarkRunning(id string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, StatusRunning, time.Now().UTC(), id, StatusPending)
	if err != nil {
		return false, errors.Wrapf(err, "failed to mark job %s running", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to get rows affected")
	}

	return affected == 1, nil
}

// MarkDone transitions running -> done.
func (s *Store) MarkDone(id string) error {
	return s.finish(id, StatusDone, "")
}

// MarkFailed transitions running -> failed, recording the error message for
// the failure notification.
func (s *Store) MarkFailed(id string, errMsg string) error {
	return s.finish(id, StatusFailed, errMsg)
}

func (s *Store) finish(id string, status Status, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query,
		status,
		sql.NullString{String: errMsg, Valid: errMsg != ""},
		time.Now().UTC(),
		id,
		StatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s %s", id, status)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "job %s is not running", id)
	}

	return nil
}

// Reschedule re-arms a recurring job after a successful cycle: running ->
// pending with the advanced run time, stale error cleared.
func (s *Store) Reschedule(id string, nextRunAt time.Time) error {
	return s.reschedule(id, nextRunAt, "")
}

// RescheduleAfterFailure re-arms a recurring job whose cycle failed.
// Failure does not cancel the series; the error is kept for inspection.
func (s *Store) RescheduleAfterFailure(id string, nextRunAt time.Time, errMsg string) error {
	return s.reschedule(id, nextRunAt, errMsg)
}

func (s *Store) reschedule(id string, nextRunAt time.Time, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = ?, run_at = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query,
		StatusPending,
		nextRunAt.UTC(),
		sql.NullString{String: errMsg, Valid: errMsg != ""},
		time.Now().UTC(),
		id,
		StatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to reschedule job %s", id)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "job %s is not running", id)
	}

	return nil
}

// ResetStuck transitions every running job back to pending.
// Called once at engine start: a process that died mid-execution leaves
// orphaned running rows, and handlers are expected to be retryable at job
// granularity, so making them eligible again is the safe default.
func (s *Store) ResetStuck() (int, error) {
	query := `
		UPDATE jobs
		SET status = ?, updated_at = ?
		WHERE status = ?
	`

	result, err := s.db.Exec(query, StatusPending, time.Now().UTC(), StatusRunning)
	if err != nil {
		return 0, errors.Wrap(err, "failed to reset stuck jobs")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(affected), nil
}

// Cancel hard-deletes a pending job. Jobs that are already running, done,
// or failed are reported as not found: cancellation never resurrects or
// interrupts a dispatched job.
func (s *Store) Cancel(id string) error {
	result, err := s.db.Exec(`DELETE FROM jobs WHERE id = ? AND status = ?`, id, StatusPending)
	if err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", id)
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

// ListByOwner returns a subject's jobs, newest first.
func (s *Store) ListByOwner(ownerID string, limit int) ([]*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE owner_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, ownerID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs by owner")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating jobs")
	}

	return jobs, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var payload, lastError sql.NullString
	var recurrence string

	err := row.Scan(
		&j.ID,
		&j.OwnerID,
		&j.Type,
		&payload,
		&j.RunAt,
		&recurrence,
		&j.Status,
		&lastError,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Recurrence = Recurrence(recurrence)
	if payload.Valid {
		j.Payload = []byte(payload.String)
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}

	return &j, nil
}

package job

import (
	"time"

	"github.com/nightdesk/nightdesk/errors"
)

// Recurrence is a rule producing the next run time from the last one.
type Recurrence string

const (
	RecurrenceNone   Recurrence = ""
	RecurrenceHourly Recurrence = "hourly"
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

// ParseRecurrence validates a recurrence string at job-creation time.
// Unrecognized values are rejected here, never at execution time.
func ParseRecurrence(s string) (Recurrence, error) {
	r := Recurrence(s)
	if !r.Valid() {
		return RecurrenceNone, errors.Wrapf(ErrValidation, "unrecognized recurrence %q", s)
	}
	return r, nil
}

// Valid reports whether r is a known recurrence value.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceNone, RecurrenceHourly, RecurrenceDaily, RecurrenceWeekly:
		return true
	default:
		return false
	}
}

// Advance returns the next run time: exactly one unit past the previously
// scheduled time, not past "now". Anchoring to the scheduled time prevents
// drift across late ticks; a long-stalled process fires immediately on
// resume (catch-up, not skip).
func (r Recurrence) Advance(last time.Time) time.Time {
	switch r {
	case RecurrenceHourly:
		return last.Add(time.Hour)
	case RecurrenceDaily:
		return last.Add(24 * time.Hour)
	case RecurrenceWeekly:
		return last.Add(7 * 24 * time.Hour)
	default:
		return last
	}
}

// Package engine owns the loop orchestrator: N independently scheduled,
// failure-isolated periodic loops (job runner, reminder check, event-source
// checks, webhook reconciliation, cleanup) driven over one shared clock.
package engine

import "time"

// Clock supplies the current time to every loop tick. Injecting it lets
// tests step virtual time instead of waiting on real intervals.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock Clock used in production.
func SystemClock() Clock { return systemClock{} }

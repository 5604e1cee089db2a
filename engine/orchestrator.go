package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickFunc is one loop's work for one tick. A tick that finds nothing to do
// must be a no-op; errors are logged and swallowed by the orchestrator, and
// the loop retries on its next tick.
type TickFunc func(ctx context.Context, now time.Time) error

type loop struct {
	name     string
	interval time.Duration
	tick     TickFunc
}

// Orchestrator runs each registered loop on its own goroutine and interval.
//
// Failure isolation is absolute: an error or panic inside one loop's tick
// never reaches other loops or the orchestrator. Ticks of the same loop
// never overlap — each loop's goroutine runs its tick synchronously, so a
// slow tick delays, but cannot duplicate, the next one.
type Orchestrator struct {
	parentCtx context.Context
	clock     Clock
	log       *zap.SugaredLogger

	mu      sync.Mutex
	loops   []loop
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates an orchestrator whose loops stop when parent is
// cancelled or Stop is called.
func NewOrchestrator(parent context.Context, clock Clock, log *zap.SugaredLogger) *Orchestrator {
	if parent == nil {
		parent = context.Background()
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Orchestrator{
		parentCtx: parent,
		clock:     clock,
		log:       log.Named("loops"),
	}
}

// Add registers a loop. Must be called before Start.
func (o *Orchestrator) Add(name string, interval time.Duration, tick TickFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loops = append(o.loops, loop{name: name, interval: interval, tick: tick})
}

// Start arms all loops. Each loop fires one eager tick immediately so
// freshly scheduled work does not wait a full interval. Calling Start on a
// running orchestrator is a no-op.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return
	}

	o.ctx, o.cancel = context.WithCancel(o.parentCtx)
	o.running = true

	for _, l := range o.loops {
		o.wg.Add(1)
		go o.run(l)
	}

	o.log.Infow("Loops started", "count", len(o.loops))
}

// Stop disarms all future ticks and waits for in-flight ticks to finish.
// Safe to call multiple times.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.log.Infow("Loops stopped")
}

func (o *Orchestrator) run(l loop) {
	defer o.wg.Done()

	// Eager first tick.
	o.safeTick(l)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.safeTick(l)
		}
	}
}

// safeTick runs one tick with full failure isolation.
func (o *Orchestrator) safeTick(l loop) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("Loop tick panicked",
				"loop", l.name,
				"panic", r,
			)
		}
	}()

	select {
	case <-o.ctx.Done():
		return
	default:
	}

	if err := l.tick(o.ctx, o.clock.Now()); err != nil {
		if o.ctx.Err() != nil {
			// Shutdown in progress; the error is cancellation fallout.
			return
		}
		o.log.Warnw("Loop tick error",
			"loop", l.name,
			"error", err,
		)
	}
}

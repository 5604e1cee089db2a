package job

import (
	"context"
	"fmt"
	"sync"

	"github.com/nightdesk/nightdesk/errors"
)

// ErrHandlerNotFound marks a job whose type has no registered handler.
var ErrHandlerNotFound = errors.New("no handler registered for job type")

// Handler executes a specific job type.
//
// Handlers decode their own payload from job.Payload; the engine never
// interprets it. Handlers may perform blocking I/O — the runner bounds each
// invocation with a timeout, so implementations MUST respect ctx.Done().
type Handler interface {
	// Execute runs the job. Return nil on success; any error marks the
	// cycle failed and raises a failure notification.
	Execute(ctx context.Context, job *Job) error

	// Name returns the job type this handler serves (e.g. "email.send").
	Name() string
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	TypeName string
	Fn       func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Execute(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }
func (h HandlerFunc) Name() string                                { return h.TypeName }

// Registry maps job types to handlers.
// Thread-safe for concurrent registration and lookup. An explicit Registry
// is passed into the runner's constructor so tests can supply fakes.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler under its own name.
// Panics if a handler is already registered for that name: duplicate
// registration is a wiring bug, not a runtime condition.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for job type: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a job type, or nil if none is registered.
func (r *Registry) Get(jobType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

// Has checks if a handler is registered for a job type.
func (r *Registry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[jobType]
	return exists
}

// Names returns all registered job types.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

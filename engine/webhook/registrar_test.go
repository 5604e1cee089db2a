package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightdesk/nightdesk/errors"
	"github.com/nightdesk/nightdesk/logger"
)

// fakeProvider is an in-memory ProviderAPI with call counting.
type fakeProvider struct {
	mu      sync.Mutex
	hooks   map[string][]Registration // resource -> registrations
	nextID  int
	lists   int
	creates int
	deletes int

	listErr   error
	createErr error
	deleteErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{hooks: make(map[string][]Registration)}
}

func (f *fakeProvider) List(ctx context.Context, resource string) ([]Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]Registration(nil), f.hooks[resource]...), nil
}

func (f *fakeProvider) Create(ctx context.Context, resource, callbackURL string) (*Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	reg := Registration{ID: string(rune('0' + f.nextID)), URL: callbackURL}
	f.hooks[resource] = append(f.hooks[resource], reg)
	return &reg, nil
}

func (f *fakeProvider) Delete(ctx context.Context, resource, registrationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.hooks[resource][:0]
	for _, reg := range f.hooks[resource] {
		if reg.ID != registrationID {
			kept = append(kept, reg)
		}
	}
	f.hooks[resource] = kept
	return nil
}

func (f *fakeProvider) registrations(resource string) []Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Registration(nil), f.hooks[resource]...)
}

const endpoint = "https://abc123.tunnel.example/hooks/github"

func newTestRegistrar(api ProviderAPI, resources ...string) *Registrar {
	return NewRegistrar(api, resources, endpoint, 0, logger.NewTest())
}

func TestEnsureCreatesOnce(t *testing.T) {
	provider := newFakeProvider()
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))
	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))

	regs := provider.registrations("acme/infra")
	require.Len(t, regs, 1)
	assert.Equal(t, endpoint, regs[0].URL)
	// Second Ensure was a generation-cache hit; provider untouched.
	assert.Equal(t, 1, provider.lists)
	assert.Equal(t, 1, provider.creates)
	assert.Equal(t, 1, r.EnsuredCount())
}

func TestEnsureAdoptsExistingRegistration(t *testing.T) {
	provider := newFakeProvider()
	provider.hooks["acme/infra"] = []Registration{{ID: "77", URL: endpoint}}
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))

	assert.Equal(t, 0, provider.creates)
	assert.Len(t, provider.registrations("acme/infra"), 1)
}

func TestEnsureReplacesStaleTunnelURL(t *testing.T) {
	provider := newFakeProvider()
	// Same callback path, previous tunnel host.
	provider.hooks["acme/infra"] = []Registration{
		{ID: "77", URL: "https://old999.tunnel.example/hooks/github"},
	}
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))

	regs := provider.registrations("acme/infra")
	require.Len(t, regs, 1)
	assert.Equal(t, endpoint, regs[0].URL)
	assert.Equal(t, 1, provider.deletes)
}

func TestEnsureLeavesForeignHooksAlone(t *testing.T) {
	provider := newFakeProvider()
	foreign := Registration{ID: "99", URL: "https://ci.example.com/build-trigger"}
	provider.hooks["acme/infra"] = []Registration{foreign}
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))

	regs := provider.registrations("acme/infra")
	require.Len(t, regs, 2)
	assert.Equal(t, 0, provider.deletes)
}

func TestEnsureConflictIsSuccess(t *testing.T) {
	provider := newFakeProvider()
	provider.createErr = errors.Wrap(ErrConflict, "hook exists")
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))
	assert.Equal(t, 1, r.EnsuredCount())
}

func TestEnsureSkipsMissingAndForbiddenResources(t *testing.T) {
	for _, skipErr := range []error{ErrResourceNotFound, ErrForbidden} {
		provider := newFakeProvider()
		provider.listErr = skipErr
		r := newTestRegistrar(provider, "acme/gone")

		require.NoError(t, r.Ensure(context.Background(), "acme/gone", endpoint))
		// Skipped, not confirmed: a later grant gets retried.
		assert.Equal(t, 0, r.EnsuredCount())
	}
}

func TestEnsurePropagatesOtherErrors(t *testing.T) {
	provider := newFakeProvider()
	provider.listErr = errors.New("provider 500")
	r := newTestRegistrar(provider, "acme/infra")

	err := r.Ensure(context.Background(), "acme/infra", endpoint)
	require.Error(t, err)
	assert.Equal(t, 0, r.EnsuredCount())
}

func TestTickEnsuresAllResourcesDespiteFailures(t *testing.T) {
	provider := newFakeProvider()
	r := newTestRegistrar(provider, "acme/one", "acme/two")

	require.NoError(t, r.Tick(context.Background(), time.Now()))

	assert.Len(t, provider.registrations("acme/one"), 1)
	assert.Len(t, provider.registrations("acme/two"), 1)
	assert.Equal(t, 2, r.EnsuredCount())
}

func TestSetEndpointStartsNewGeneration(t *testing.T) {
	provider := newFakeProvider()
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))
	require.Equal(t, 1, r.EnsuredCount())

	next := "https://def456.tunnel.example/hooks/github"
	r.SetEndpoint(next)
	assert.Equal(t, 0, r.EnsuredCount())

	require.NoError(t, r.Tick(context.Background(), time.Now()))

	regs := provider.registrations("acme/infra")
	require.Len(t, regs, 1)
	assert.Equal(t, next, regs[0].URL)
}

func TestSetEndpointSameURLKeepsGeneration(t *testing.T) {
	provider := newFakeProvider()
	r := newTestRegistrar(provider, "acme/infra")

	require.NoError(t, r.Ensure(context.Background(), "acme/infra", endpoint))
	r.SetEndpoint(endpoint)
	assert.Equal(t, 1, r.EnsuredCount())
}

func TestIsStale(t *testing.T) {
	r := newTestRegistrar(newFakeProvider())

	tests := []struct {
		name     string
		existing string
		stale    bool
	}{
		{"old tunnel, same path", "https://old.tunnel.example/hooks/github", true},
		{"same host, different path", "https://abc123.tunnel.example/hooks/v2", true},
		{"different host and path", "https://ci.example.com/build-trigger", false},
		{"exact match", endpoint, false},
		{"unparseable", "://not-a-url", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.stale, r.isStale(tt.existing, endpoint))
		})
	}
}

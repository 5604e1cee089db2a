// Package webhook keeps external resources pointed at this process.
//
// The engine's public endpoint is typically a tunnel address that changes
// across restarts. The registrar's job is drift repair: for every watched
// resource, exactly one active callback registration exists and it points
// at the current endpoint. Everything else — stale tunnel URLs, duplicate
// hooks, hooks we never created — is reconciled or left alone per the
// Ensure contract.
package webhook

import (
	"context"

	"github.com/nightdesk/nightdesk/errors"
)

// Provider error taxonomy. Ensure treats these differently: a conflict is
// success, not-found and forbidden are skipped, anything else retries on
// the next tick.
var (
	// ErrConflict reports a registration that already exists as desired.
	ErrConflict = errors.New("registration already exists")
	// ErrResourceNotFound reports a resource the provider does not know.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrForbidden reports a resource the engine may not administer.
	ErrForbidden = errors.New("forbidden")
)

// Registration is one callback registration on an external resource.
type Registration struct {
	ID  string
	URL string
}

// ProviderAPI is the narrow surface of the external webhook system.
type ProviderAPI interface {
	// List returns the existing registrations on a resource.
	List(ctx context.Context, resource string) ([]Registration, error)

	// Create registers callbackURL on a resource.
	Create(ctx context.Context, resource, callbackURL string) (*Registration, error)

	// Delete removes a registration from a resource.
	Delete(ctx context.Context, resource, registrationID string) error
}

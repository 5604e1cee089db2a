package webhook

import (
	"context"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nightdesk/nightdesk/errors"
)

// Registrar idempotently maintains callback registrations for a set of
// resources. The in-memory set is scoped to one endpoint generation:
// changing the endpoint (tunnel restart) clears it, forcing every resource
// through a full Ensure pass against the provider.
type Registrar struct {
	api       ProviderAPI
	limiter   *rate.Limiter
	resources []string
	log       *zap.SugaredLogger

	mu       sync.Mutex
	endpoint string
	// ensured maps resource -> callback URL confirmed for the current
	// endpoint generation.
	ensured map[string]string
}

// NewRegistrar creates a registrar for the given resources.
// requestsPerSecond throttles provider API calls; <= 0 disables throttling.
func NewRegistrar(api ProviderAPI, resources []string, endpoint string, requestsPerSecond float64, log *zap.SugaredLogger) *Registrar {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Registrar{
		api:       api,
		limiter:   rate.NewLimiter(limit, 1),
		resources: resources,
		endpoint:  endpoint,
		ensured:   make(map[string]string),
		log:       log.Named("webhook"),
	}
}

// SetEndpoint switches to a new endpoint generation. All resources become
// unconfirmed and will be re-ensured (stale registrations replaced) on the
// next tick.
func (r *Registrar) SetEndpoint(endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if endpoint == r.endpoint {
		return
	}

	r.log.Infow("Endpoint changed, starting new registration generation",
		"old", r.endpoint,
		"new", endpoint,
	)
	r.endpoint = endpoint
	r.ensured = make(map[string]string)
}

// Tick ensures every configured resource. Per-resource skips (not found,
// forbidden) are absorbed; other provider errors are joined and handed to
// the loop's isolated failure handling for retry next tick.
func (r *Registrar) Tick(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	endpoint := r.endpoint
	r.mu.Unlock()

	if endpoint == "" {
		return nil
	}

	var errs error
	for _, resource := range r.resources {
		if err := r.Ensure(ctx, resource, endpoint); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "ensure %s", resource))
		}
	}

	return errs
}

// Ensure makes resource carry exactly one active registration at
// desiredURL.
//
// Already confirmed this generation: no-op without touching the provider.
// Otherwise the provider's registrations are reconciled: an exact match is
// adopted, recognizably-stale registrations (ours, but pointing at an old
// endpoint) are deleted, and a new registration is created if none matched.
// A create conflict means someone got there first — success.
func (r *Registrar) Ensure(ctx context.Context, resource, desiredURL string) error {
	r.mu.Lock()
	if r.ensured[resource] == desiredURL {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}

	existing, err := r.api.List(ctx, resource)
	if err != nil {
		return r.skipOrFail(resource, "list registrations", err)
	}

	adopted := false
	for _, reg := range existing {
		switch {
		case reg.URL == desiredURL:
			adopted = true
			r.log.Debugw("Adopting existing registration",
				"resource", resource,
				"registration_id", reg.ID,
			)
		case r.isStale(reg.URL, desiredURL):
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := r.api.Delete(ctx, resource, reg.ID); err != nil {
				return r.skipOrFail(resource, "delete stale registration", err)
			}
			r.log.Infow("Deleted stale registration",
				"resource", resource,
				"registration_id", reg.ID,
				"stale_url", reg.URL,
			)
		default:
			// Not ours. Some other consumer's hook; leave it alone.
		}
	}

	if !adopted {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := r.api.Create(ctx, resource, desiredURL); err != nil {
			if errors.Is(err, ErrConflict) {
				// Provider reports it already exists as desired.
				r.log.Debugw("Registration conflict treated as success",
					"resource", resource,
				)
			} else {
				return r.skipOrFail(resource, "create registration", err)
			}
		} else {
			r.log.Infow("Created registration",
				"resource", resource,
				"url", desiredURL,
			)
		}
	}

	r.mu.Lock()
	r.ensured[resource] = desiredURL
	r.mu.Unlock()

	return nil
}

// EnsuredCount reports how many resources are confirmed for the current
// generation.
func (r *Registrar) EnsuredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ensured)
}

// isStale decides whether an existing registration is recognizably ours
// but pointing at an old endpoint: same callback path on a different host
// (a previous tunnel address), or same host with a different path.
func (r *Registrar) isStale(existingURL, desiredURL string) bool {
	existing, err := url.Parse(existingURL)
	if err != nil {
		return false
	}
	desired, err := url.Parse(desiredURL)
	if err != nil {
		return false
	}

	sameHost := existing.Host == desired.Host
	samePath := existing.Path == desired.Path

	return (samePath && !sameHost) || (sameHost && !samePath)
}

// skipOrFail absorbs per-resource not-found/forbidden (logged, the loop
// moves on) and propagates everything else.
func (r *Registrar) skipOrFail(resource, op string, err error) error {
	if errors.Is(err, ErrResourceNotFound) || errors.Is(err, ErrForbidden) {
		r.log.Warnw("Skipping resource",
			"resource", resource,
			"op", op,
			"error", err,
		)
		return nil
	}
	return errors.Wrap(err, op)
}

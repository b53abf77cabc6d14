package pipeline

import "fmt"

// DefaultRateLimit is the per-window request budget applied when a
// route enables rate limiting without overriding it.
const DefaultRateLimit = 100

// RateLimitDisabled turns the rate-limit phase off for a route.
const RateLimitDisabled = -1

// Options configures the pipeline phases for one route. Supplied at
// registration time and immutable for the lifetime of the registration.
type Options struct {
	// AuthRequired rejects requests that resolve no identity.
	AuthRequired bool

	// UseFederatedAuth enables the federated fallback after a session
	// store miss.
	UseFederatedAuth bool

	// UseAPIKeyAuth routes authentication exclusively through the
	// API-key path.
	UseAPIKeyAuth bool

	// RequiredScopes gate API-key identities. Only meaningful together
	// with UseAPIKeyAuth; any other combination is a configuration
	// error rejected at registration.
	RequiredScopes []string

	// CheckHealth gates the request on data store reachability.
	CheckHealth bool

	// RateLimit is the per-window request budget. Zero selects the
	// pipeline's configured default (DefaultRateLimit when that is also
	// unset); RateLimitDisabled turns the phase off.
	RateLimit int

	// LogRequest emits a structured pre-dispatch log entry.
	LogRequest bool

	// UpdateActivity touches the session's last-activity timestamp for
	// session-store-backed identities (never federated or API-key).
	UpdateActivity bool
}

// validate rejects option combinations with no defined semantics.
// Called once at route registration, so misconfiguration fails at
// startup rather than silently at request time.
func (o Options) validate() error {
	if len(o.RequiredScopes) > 0 && !o.UseAPIKeyAuth {
		return fmt.Errorf("required scopes declared for a route without API key auth; scopes only constrain API key identities")
	}
	if o.UseAPIKeyAuth && o.UseFederatedAuth {
		return fmt.Errorf("API key auth is mutually exclusive with federated auth")
	}
	return nil
}

// budget resolves the effective rate-limit budget, or 0 when the phase
// is disabled. fallback is the deployment-wide default budget; when it
// is unset the package default applies.
func (o Options) budget(fallback int) int {
	switch {
	case o.RateLimit == RateLimitDisabled:
		return 0
	case o.RateLimit != 0:
		return o.RateLimit
	case fallback > 0:
		return fallback
	default:
		return DefaultRateLimit
	}
}

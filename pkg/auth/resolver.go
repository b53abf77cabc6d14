package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/casegate/casegate/pkg/api"
)

// SyntheticSessionPrefix marks session ids synthesized for federated
// identities. Store-backed session ids never carry it.
const SyntheticSessionPrefix = "nextauth_"

// DefaultSessionCookie is the first-party session cookie name.
const DefaultSessionCookie = "casegate_session"

// Options selects which credential sources a route accepts.
type Options struct {
	// UseAPIKey routes the request exclusively through the API-key
	// authenticator; sessions are never consulted.
	UseAPIKey bool

	// UseFederated enables the federated fallback when no first-party
	// session resolves. The session store is always tried first.
	UseFederated bool

	// RequiredScopes constrain API-key identities only.
	RequiredScopes []string
}

// Resolver merges the three credential sources into one Identity using
// a fixed priority order. A nil return with nil error means the request
// is anonymous; the pipeline decides whether that is acceptable.
type Resolver struct {
	// Sessions resolves first-party session tokens. Required.
	Sessions SessionStore

	// Federated verifies platform-level sessions. Optional.
	Federated FederatedVerifier

	// APIKeys handles API-key routes. Optional.
	APIKeys APIKeyAuthenticator

	// Cookie is the session cookie name. Defaults to DefaultSessionCookie.
	Cookie string
}

// Resolve produces the identity for the request, or nil when no
// credential source yields one. Rejections and normalization failures
// are returned as typed errors for the pipeline's error boundary.
func (rv *Resolver) Resolve(ctx context.Context, r *http.Request, opts Options) (*Identity, error) {
	if opts.UseAPIKey {
		if rv.APIKeys == nil {
			return nil, fmt.Errorf("api key auth enabled but no authenticator configured")
		}
		// Mutually exclusive with the cookie paths: a request routed
		// through API-key auth never also resolves a session.
		return rv.APIKeys.Authenticate(ctx, r, opts.RequiredScopes)
	}

	// Session store first, always, regardless of the federated flag.
	// Presence wins over configuration.
	if token := rv.sessionToken(r); token != "" {
		rec, err := rv.Sessions.ResolveSession(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("resolving session: %w", err)
		}
		if rec != nil {
			return &Identity{
				UserID:    rec.UserID,
				Role:      rec.Role,
				TenantID:  rec.TenantID,
				SessionID: rec.SessionID,
				Source:    SourceSession,
			}, nil
		}
	}

	if opts.UseFederated && rv.Federated != nil {
		claims, err := rv.Federated.Verify(r)
		if err != nil {
			return nil, fmt.Errorf("verifying federated session: %w", err)
		}
		if claims != nil {
			return normalizeClaims(claims)
		}
	}

	return nil, nil
}

// sessionToken extracts the opaque session token from the configured cookie.
func (rv *Resolver) sessionToken(r *http.Request) string {
	name := rv.Cookie
	if name == "" {
		name = DefaultSessionCookie
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// normalizeClaims maps a federated claim set into an Identity. The
// subject is mandatory; a claim set without one is malformed upstream
// data and must not be coerced into an anonymous identity.
func normalizeClaims(claims *Claims) (*Identity, error) {
	if claims.Subject == "" {
		return nil, api.NewValidationError("federated identity is missing a subject",
			api.FieldIssue("sub", "subject claim is required", "missing_subject"))
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}

	return &Identity{
		UserID:    claims.Subject,
		Role:      role,
		TenantID:  claims.TenantID, // absent is legal for federated identities
		SessionID: syntheticSessionID(claims.Subject),
		Source:    SourceFederated,
	}, nil
}

// syntheticSessionID derives a stable, prefixed session id from the
// federated subject. It is never a store-backed identifier.
func syntheticSessionID(subject string) string {
	sum := sha256.Sum256([]byte(subject))
	return SyntheticSessionPrefix + hex.EncodeToString(sum[:16])
}

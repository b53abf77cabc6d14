package auth

import (
	"context"
	"net/http"
	"time"
)

// Source identifies which credential mechanism produced an Identity.
// At most one source is active per request.
type Source string

const (
	SourceNone      Source = "none"
	SourceSession   Source = "session"
	SourceFederated Source = "federated"
	SourceAPIKey    Source = "api_key"
)

// Roles assigned to identities. Federated identities without a role
// claim default to RoleUser.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Identity is the normalized result of authenticating a request,
// independent of which credential mechanism produced it. It is
// constructed once per request and must not be mutated afterward.
type Identity struct {
	// UserID is the authenticated user, required unless anonymous.
	UserID string

	// Role is the identity's role tag (RoleUser, RoleAdmin).
	Role string

	// TenantID scopes all downstream storage access. Required for every
	// non-public operation; federated identities may lack it.
	TenantID string

	// SessionID is the backing session identifier. For federated
	// identities it is synthesized from the subject, never store-backed.
	SessionID string

	// Scopes are present only for API-key identities.
	Scopes []string

	// KeyID is the API key identifier, set only for API-key identities.
	// Consumed by usage recording.
	KeyID string

	// Source tags the credential mechanism.
	Source Source
}

// SessionRecord is what the session store resolves a token to.
type SessionRecord struct {
	SessionID string
	UserID    string
	Role      string
	TenantID  string
	ExpiresAt time.Time
}

// SessionStore resolves opaque session tokens and records session
// activity. Implementations must be safe for concurrent use.
type SessionStore interface {
	// ResolveSession returns the session for the token, or (nil, nil)
	// when the token is unknown or expired.
	ResolveSession(ctx context.Context, token string) (*SessionRecord, error)

	// TouchSession updates the session's last-activity timestamp.
	TouchSession(ctx context.Context, sessionID string) error
}

// Claims is the raw identity claim set produced by the federated
// verifier before normalization.
type Claims struct {
	Subject  string
	Role     string
	TenantID string
	Email    string
	Name     string
}

// FederatedVerifier validates a platform-level federated session.
// Verify returns (nil, nil) when no usable federated credential is
// present; errors are reserved for internal failures.
type FederatedVerifier interface {
	Verify(r *http.Request) (*Claims, error)
}

// APIKeyAuthenticator handles the API-key path end to end: key lookup,
// expiry and active checks, and scope matching. On rejection it returns
// a typed *api.Error ready for the pipeline's error boundary.
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, r *http.Request, requiredScopes []string) (*Identity, error)
}

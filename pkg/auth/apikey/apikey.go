// Package apikey authenticates API requests by an x-api-key style
// header. Keys are stored hashed with SHA-256; lookup, expiry and
// active checks, and scope matching all happen here, so the resolver
// can delegate the whole API-key path to this package.
package apikey

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/casegate/casegate/pkg/api"
	"github.com/casegate/casegate/pkg/auth"
)

// DefaultHeader is the API key request header.
const DefaultHeader = "x-api-key"

// ScopeAdmin satisfies any scope requirement.
const ScopeAdmin = "admin"

// Key is a stored API key credential. Read-only from the pipeline's
// perspective; ownership lives with the storage layer.
type Key struct {
	ID        string
	TenantID  string
	UserID    string
	Scopes    []string
	RateLimit int
	ExpiresAt *time.Time
	Active    bool
}

// HasScope reports whether the key grants the required scope.
// The admin scope is a wildcard.
func (k *Key) HasScope(required string) bool {
	for _, s := range k.Scopes {
		if s == required || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// KeyStore looks up API keys by the SHA-256 hash of their raw value.
type KeyStore interface {
	// LookupKey returns the key for the hash, or (nil, nil) when unknown.
	LookupKey(ctx context.Context, hash [32]byte) (*Key, error)
}

// Authenticator validates API key headers against a KeyStore.
type Authenticator struct {
	store  KeyStore
	header string
}

// Ensure Authenticator implements auth.APIKeyAuthenticator at compile time.
var _ auth.APIKeyAuthenticator = (*Authenticator)(nil)

// New creates an API key authenticator reading the given header
// (DefaultHeader if empty).
func New(store KeyStore, header string) *Authenticator {
	if header == "" {
		header = DefaultHeader
	}
	return &Authenticator{store: store, header: header}
}

// Authenticate resolves the request's API key and enforces the route's
// scope requirements. Rejections are returned as typed *api.Error
// values with stable codes; the pipeline writes them as-is.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, requiredScopes []string) (*auth.Identity, error) {
	raw := r.Header.Get(a.header)
	if raw == "" {
		return nil, api.NewAuthError("missing API key")
	}

	key, err := a.store.LookupKey(ctx, sha256.Sum256([]byte(raw)))
	if err != nil {
		return nil, fmt.Errorf("looking up API key: %w", err)
	}
	if key == nil {
		return nil, api.NewAuthError("invalid API key")
	}
	if !key.Active {
		return nil, api.NewAuthError("API key has been revoked")
	}
	if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
		return nil, api.NewAuthError("API key has expired")
	}

	for _, required := range requiredScopes {
		if !key.HasScope(required) {
			return nil, api.NewForbiddenError(fmt.Sprintf("API key lacks required scope %q", required))
		}
	}

	return &auth.Identity{
		UserID:   key.UserID,
		Role:     auth.RoleUser,
		TenantID: key.TenantID,
		Scopes:   key.Scopes,
		KeyID:    key.ID,
		Source:   auth.SourceAPIKey,
		// SessionID stays empty: API-key requests have no session.
	}, nil
}

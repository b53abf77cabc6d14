// Package federated verifies NextAuth-style platform session cookies:
// HS256-signed JWTs carrying the federated identity's claim set.
//
// The verifier only validates the token and extracts raw claims;
// normalization into an Identity (role defaulting, synthetic session
// id) is the resolver's job.
package federated

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/casegate/casegate/pkg/auth"
)

// DefaultCookie is the federated session cookie name.
const DefaultCookie = "next-auth.session-token"

// Config holds the federated verifier configuration.
type Config struct {
	// Secret is the HMAC key shared with the identity platform. Required.
	Secret []byte

	// Cookie is the session cookie name. Default: DefaultCookie.
	Cookie string

	// Issuer is the expected iss claim. If empty, issuer is not validated.
	Issuer string

	// Leeway tolerates small clock skew on exp/nbf. Default: 30s.
	Leeway time.Duration
}

// Verifier validates federated session JWTs from a request cookie.
type Verifier struct {
	config Config
}

// Ensure Verifier implements auth.FederatedVerifier at compile time.
var _ auth.FederatedVerifier = (*Verifier)(nil)

// New creates a federated verifier with the given configuration.
func New(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("federated auth requires a secret")
	}
	if cfg.Cookie == "" {
		cfg.Cookie = DefaultCookie
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = 30 * time.Second
	}
	return &Verifier{config: cfg}, nil
}

// Verify extracts and validates the federated session token. A missing
// cookie or an invalid token yields (nil, nil): the platform session is
// simply not usable, which is not an internal failure. Raw claims are
// returned without normalization.
func (v *Verifier) Verify(r *http.Request) (*auth.Claims, error) {
	c, err := r.Cookie(v.config.Cookie)
	if err != nil || c.Value == "" {
		return nil, nil
	}

	token, err := jwtlib.Parse(c.Value, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.config.Secret, nil
	}, v.parserOptions()...)
	if err != nil {
		slog.Debug("federated token rejected", "error", err)
		return nil, nil
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return nil, nil
	}

	return &auth.Claims{
		Subject:  claimString(claims, "sub"),
		Role:     claimString(claims, "role"),
		TenantID: claimString(claims, "tenantId"),
		Email:    claimString(claims, "email"),
		Name:     claimString(claims, "name"),
	}, nil
}

// parserOptions builds JWT parser options based on the configuration.
func (v *Verifier) parserOptions() []jwtlib.ParserOption {
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwtlib.WithLeeway(v.config.Leeway),
		jwtlib.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(v.config.Issuer))
	}
	return opts
}

// claimString extracts a string value from JWT claims.
// Returns empty string if the claim is missing or not a string.
func claimString(claims jwtlib.MapClaims, key string) string {
	val, ok := claims[key]
	if !ok {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		return ""
	}
	return s
}

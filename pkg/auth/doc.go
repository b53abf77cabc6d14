// Package auth resolves the three credential mechanisms of the
// casegate API (first-party session cookie, federated NextAuth-style
// JWT cookie, API key header) into one normalized Identity.
//
// Resolution follows a strict priority order and never merges fields
// from two sources: API-key routes are handled exclusively by the
// API-key authenticator; all other routes try the session store first
// and fall back to the federated verifier only when no session exists.
// The resulting Identity is constructed once per request, immutable
// afterward, and carried in the request context.
package auth

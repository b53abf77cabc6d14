package pipeline

import (
	"context"
	"net/http"
)

// HealthGate reports whether the backing data store is reachable.
type HealthGate interface {
	Healthy(ctx context.Context) bool
}

// Rejection is a fully formed rate-limit response: status, headers
// (retry-after and quota headers included), and body. The pipeline
// writes it verbatim.
type Rejection struct {
	Status int
	Header http.Header
	Body   []byte
}

// Write emits the rejection to the response writer.
func (rj *Rejection) Write(w http.ResponseWriter) {
	for k, vals := range rj.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rj.Status)
	w.Write(rj.Body)
}

// RateLimiter decides whether a request fits its budget. A nil return
// means allowed; a non-nil Rejection is returned to the client as-is.
// This is the one phase whose failure response is produced by the
// collaborator rather than the error taxonomy.
type RateLimiter interface {
	Check(r *http.Request, budget int) *Rejection
}

// ActivityToucher records session activity. Satisfied by
// auth.SessionStore.
type ActivityToucher interface {
	TouchSession(ctx context.Context, sessionID string) error
}

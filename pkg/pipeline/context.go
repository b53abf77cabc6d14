package pipeline

import (
	"net/http"
	"strings"
	"time"

	"github.com/casegate/casegate/pkg/auth"
)

// Context is the per-request bag handed to the business handler. It is
// created at the start of the dispatch phase, owned exclusively by the
// single request's execution, and discarded when the response returns.
type Context struct {
	// Request is the raw inbound request.
	Request *http.Request

	// Identity is the resolved identity, nil on public endpoints.
	Identity *auth.Identity

	// Params holds the route's URL parameters.
	Params map[string]string

	// Start is when the pipeline began processing, for latency
	// measurement.
	Start time.Time
}

// Param returns a URL parameter by name, or empty string.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// ClientIP extracts the originating client address, preferring the
// standard forwarded header over the transport peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

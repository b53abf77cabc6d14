package pipeline

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router registers pipeline-wrapped routes on a chi mux. Every route
// carries its own immutable Options; registration fails fast (panics)
// on option combinations with no defined semantics.
type Router struct {
	mux  chi.Router
	pipe *Pipeline
}

// NewRouter creates a router bound to the pipeline.
func NewRouter(p *Pipeline) *Router {
	return &Router{mux: chi.NewRouter(), pipe: p}
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Method registers a handler for the given HTTP method and pattern.
func (rt *Router) Method(method, pattern string, opts Options, h Handler) {
	rt.mux.Method(method, pattern, rt.pipe.Handle(opts, h))
}

// Get registers a GET route.
func (rt *Router) Get(pattern string, opts Options, h Handler) {
	rt.Method(http.MethodGet, pattern, opts, h)
}

// Post registers a POST route.
func (rt *Router) Post(pattern string, opts Options, h Handler) {
	rt.Method(http.MethodPost, pattern, opts, h)
}

// Put registers a PUT route.
func (rt *Router) Put(pattern string, opts Options, h Handler) {
	rt.Method(http.MethodPut, pattern, opts, h)
}

// Delete registers a DELETE route.
func (rt *Router) Delete(pattern string, opts Options, h Handler) {
	rt.Method(http.MethodDelete, pattern, opts, h)
}

// Raw mounts a plain http.Handler outside the pipeline, for endpoints
// like health probes and metrics that must not depend on it.
func (rt *Router) Raw(method, pattern string, h http.Handler) {
	rt.mux.Method(method, pattern, h)
}

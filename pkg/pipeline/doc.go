// Package pipeline executes the ordered phase sequence every casegate
// route passes through: health gate, rate limiting, authentication,
// pre-dispatch logging, session activity touch, handler dispatch, and
// post-dispatch usage recording, with a single error boundary that
// converts typed failures into taxonomy-mapped responses.
//
// Phases short-circuit: the first phase that produces a response ends
// the request and the business handler never runs. Health and rate
// checks come before auth because they are cheaper and shield the auth
// backend; auth precedes logging so log entries carry a real identity;
// the activity touch is fire-and-forget because session freshness is
// not on the response's critical path.
//
// Each route supplies an immutable Options value at registration time.
// Options are validated when the route is registered, never at request
// time.
package pipeline

// Package api defines the wire-format contract shared by every route:
// the closed error taxonomy with its HTTP status mapping, and the
// response envelope ({success, data?, message?, error?, errors?}).
//
// Handlers fail by returning typed *Error values (or wrapped storage
// sentinels); the pipeline's error boundary is the only place that
// converts an error into an HTTP response, via Classify.
package api

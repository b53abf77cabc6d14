package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Envelope is the shared response shape for every route, success or
// failure. Success responses carry Data; failures carry the error kind
// and a human-readable message, plus field issues for validation
// failures and version details for optimistic-lock conflicts.
type Envelope struct {
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   Kind             `json:"error,omitempty"`
	Errors  []FieldError     `json:"errors,omitempty"`
	Details *VersionConflict `json:"details,omitempty"`
}

// WriteSuccess writes a success envelope with the given status and payload.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteMessage writes a success envelope carrying only a message, used
// for deletions and other operations without a payload.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: true, Message: message})
}

// WriteError classifies err and writes the corresponding failure
// envelope. Rate-limited errors also emit a Retry-After header.
func WriteError(w http.ResponseWriter, err error) {
	apiErr := Classify(err)

	if apiErr.Kind == KindRateLimited && apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}

	writeJSON(w, apiErr.Status(), Envelope{
		Success: false,
		Message: apiErr.Message,
		Error:   apiErr.Kind,
		Errors:  apiErr.Fields,
		Details: apiErr.Conflict,
	})
}

// writeJSON serializes the envelope. Encoding failures at this point
// can only be reported to the log; the status line is already decided.
func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("encoding response envelope", "error", err)
	}
}

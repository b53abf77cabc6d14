// Package usage defines the per-API-key usage sample recorded after a
// request completes, and the Recorder port the pipeline writes to.
// Recording is best-effort: the pipeline never fails a request over it.
package usage

import (
	"context"
	"log/slog"
	"time"
)

// Sample captures one completed API-key request.
type Sample struct {
	KeyID     string
	Path      string
	Method    string
	Status    int
	Elapsed   time.Duration
	ClientIP  string
	UserAgent string
}

// Recorder persists usage samples. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordUsage(ctx context.Context, s Sample) error
}

// LogRecorder writes samples to the structured log. Used in dev mode
// and tests where no durable store is configured.
type LogRecorder struct{}

// RecordUsage implements Recorder.
func (LogRecorder) RecordUsage(_ context.Context, s Sample) error {
	slog.Info("api key usage",
		"key_id", s.KeyID,
		"method", s.Method,
		"path", s.Path,
		"status", s.Status,
		"elapsed_ms", s.Elapsed.Milliseconds(),
		"client_ip", s.ClientIP,
	)
	return nil
}

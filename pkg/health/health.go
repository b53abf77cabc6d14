// Package health implements the data-store reachability gate consumed
// by the request pipeline. Probes are cached briefly so the gate stays
// cheap enough to run before every guarded request.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is the probe into the backing store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gate caches the result of the last probe for a short TTL.
type Gate struct {
	pinger Pinger
	ttl    time.Duration

	mu        sync.Mutex
	checkedAt time.Time
	healthy   bool
}

// New creates a gate over the pinger with the given cache TTL
// (5 seconds if zero).
func New(pinger Pinger, ttl time.Duration) *Gate {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Gate{pinger: pinger, ttl: ttl}
}

// Healthy reports whether the backing store is reachable, probing at
// most once per TTL.
func (g *Gate) Healthy(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if time.Since(g.checkedAt) < g.ttl {
		return g.healthy
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err := g.pinger.Ping(probeCtx)
	g.checkedAt = time.Now()
	g.healthy = err == nil

	if err != nil {
		slog.Warn("health probe failed", "error", err)
	}
	return g.healthy
}

// Static is a gate with a fixed answer, for dev mode and tests.
type Static bool

// Healthy implements the pipeline port.
func (s Static) Healthy(context.Context) bool { return bool(s) }

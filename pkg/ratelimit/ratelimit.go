// Package ratelimit provides the in-process rate limiter consumed by
// the request pipeline. The pipeline only depends on the Check
// contract; the windowing algorithm is internal to this package.
package ratelimit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/casegate/casegate/pkg/api"
	"github.com/casegate/casegate/pkg/pipeline"
)

// KeyHeader identifies the caller when present; otherwise the client
// IP is the limiting key.
const KeyHeader = "x-api-key"

// Limiter is a fixed-window counter per caller. It fails open: any
// internal trouble allows the request.
type Limiter struct {
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// Ensure Limiter implements the pipeline port at compile time.
var _ pipeline.RateLimiter = (*Limiter)(nil)

// New creates a limiter with the given window (1 minute if zero).
func New(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		window:   window,
		counters: make(map[string]*counter),
	}
}

// Check counts the request against its caller's budget. A nil return
// allows the request; otherwise the returned rejection is complete,
// retry-after headers included, and is written verbatim by the
// pipeline.
func (l *Limiter) Check(r *http.Request, budget int) *pipeline.Rejection {
	if budget <= 0 {
		return nil
	}

	key := r.Header.Get(KeyHeader)
	if key == "" {
		key = pipeline.ClientIP(r)
	}
	if key == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= l.window {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count <= budget {
		return nil
	}

	retryAfter := int(c.windowAt.Add(l.window).Sub(now).Seconds()) + 1
	return l.reject(budget, retryAfter, c.windowAt.Add(l.window))
}

// reject builds the ready-to-return 429 response.
func (l *Limiter) reject(budget, retryAfter int, reset time.Time) *pipeline.Rejection {
	var body bytes.Buffer
	_ = json.NewEncoder(&body).Encode(api.Envelope{
		Success: false,
		Message: "rate limit exceeded",
		Error:   api.KindRateLimited,
	})

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Retry-After", strconv.Itoa(retryAfter))
	header.Set("X-RateLimit-Limit", strconv.Itoa(budget))
	header.Set("X-RateLimit-Remaining", "0")
	header.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

	return &pipeline.Rejection{
		Status: http.StatusTooManyRequests,
		Header: header,
		Body:   body.Bytes(),
	}
}

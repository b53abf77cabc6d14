package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/casegate/casegate/pkg/api"
	"github.com/casegate/casegate/pkg/auth"
	"github.com/casegate/casegate/pkg/observability"
	"github.com/casegate/casegate/pkg/storage"
	"github.com/casegate/casegate/pkg/usage"
)

// Handler is a business handler dispatched by the pipeline. It returns
// a response or a typed error; it never formats failure responses
// itself.
type Handler func(ctx context.Context, rc *Context) (*Response, error)

// Response is a successful handler result. The pipeline wraps Data (or
// Message) in the shared envelope.
type Response struct {
	Status  int
	Data    any
	Message string
}

// OK builds a 200 response carrying data.
func OK(data any) *Response {
	return &Response{Status: http.StatusOK, Data: data}
}

// Created builds a 201 response carrying data.
func Created(data any) *Response {
	return &Response{Status: http.StatusCreated, Data: data}
}

// Message builds a data-less success response.
func Message(status int, msg string) *Response {
	return &Response{Status: status, Message: msg}
}

// Pipeline wires the external collaborators every route shares. The
// pipeline itself holds no per-request state; all collaborators must be
// safe for concurrent use.
type Pipeline struct {
	// Health gates requests on data store reachability. Required when
	// any route sets CheckHealth.
	Health HealthGate

	// Limiter enforces per-route budgets. Required when any route
	// leaves rate limiting enabled.
	Limiter RateLimiter

	// DefaultBudget is the deployment-wide rate-limit budget applied to
	// routes that do not override it. Zero selects DefaultRateLimit.
	DefaultBudget int

	// Resolver produces the request identity. Required.
	Resolver *auth.Resolver

	// Toucher records session activity. Optional.
	Toucher ActivityToucher

	// Usage records per-API-key usage samples. Optional.
	Usage usage.Recorder

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Handle builds the http.HandlerFunc for one route. Invalid option
// combinations are a programming error and panic at registration time,
// before the server starts accepting traffic.
func (p *Pipeline) Handle(opts Options, h Handler) http.HandlerFunc {
	if err := opts.validate(); err != nil {
		panic("pipeline: invalid route options: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := p.logger()

		// Error boundary for panics out of phases 3-6. Returned errors
		// are handled by fail(); this catches what escapes.
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in request pipeline",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
				)
				api.WriteError(w, api.NewServerError())
			}
		}()

		// Phase 1: health gate.
		if opts.CheckHealth && p.Health != nil && !p.Health.Healthy(r.Context()) {
			observability.HealthGateRejectedTotal.Inc()
			api.WriteError(w, api.NewServiceUnavailableError())
			return
		}

		// Phase 2: rate limiting. The rejection is pre-built by the
		// limiter, headers included, and returned verbatim.
		if budget := opts.budget(p.DefaultBudget); budget > 0 && p.Limiter != nil {
			if rj := p.Limiter.Check(r, budget); rj != nil {
				observability.RateLimitRejectedTotal.Inc()
				rj.Write(w)
				return
			}
		}

		// Phase 3: authentication.
		identity, err := p.Resolver.Resolve(r.Context(), r, auth.Options{
			UseAPIKey:      opts.UseAPIKeyAuth,
			UseFederated:   opts.UseFederatedAuth,
			RequiredScopes: opts.RequiredScopes,
		})
		if err != nil {
			observability.AuthFailuresTotal.WithLabelValues(authSource(opts)).Inc()
			p.fail(w, r, err)
			return
		}
		if opts.AuthRequired && identity == nil {
			observability.AuthFailuresTotal.WithLabelValues(authSource(opts)).Inc()
			p.fail(w, r, api.NewUnauthorizedError())
			return
		}

		ctx := r.Context()
		if identity != nil {
			ctx = auth.SetIdentity(ctx, identity)
			if identity.TenantID != "" {
				ctx = storage.SetTenant(ctx, identity.TenantID)
			}
		}

		// Phase 4: pre-dispatch logging. Best-effort by design; slog
		// never aborts the request.
		if opts.LogRequest {
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"user_id", userID(identity),
				"tenant_id", tenantID(identity),
				"source", source(identity),
			)
		}

		// Phase 5: activity touch, only for store-backed sessions.
		// Detached from the response path; failures are logged, never
		// surfaced.
		if opts.UpdateActivity && p.Toucher != nil &&
			identity != nil && identity.Source == auth.SourceSession {
			go p.touchSession(identity.SessionID)
		}

		// Phase 6: dispatch.
		rc := &Context{
			Request:  r,
			Identity: identity,
			Params:   routeParams(r),
			Start:    start,
		}

		resp, err := h(ctx, rc)
		if err != nil {
			p.fail(w, r, err)
			p.finish(r, identity, api.Classify(err).Status(), start)
			return
		}
		if resp == nil {
			resp = Message(http.StatusOK, "ok")
		}

		if resp.Data != nil {
			api.WriteSuccess(w, resp.Status, resp.Data)
		} else {
			api.WriteMessage(w, resp.Status, resp.Message)
		}

		// Phase 7: post-dispatch.
		elapsed := time.Since(start)
		log.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", resp.Status,
			"duration_ms", elapsed.Milliseconds(),
		)
		p.finish(r, identity, resp.Status, start)
	}
}

// fail is the single conversion point from error to response: classify,
// log, write. It never re-throws.
func (p *Pipeline) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := api.Classify(err)
	if apiErr.Kind == api.KindServerError {
		p.logger().Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		p.logger().Warn("request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"kind", string(apiErr.Kind),
		)
	}
	api.WriteError(w, apiErr)
}

// finish records completion metrics and, for API-key identities, the
// usage sample. Usage recording is detached and best-effort.
func (p *Pipeline) finish(r *http.Request, identity *auth.Identity, status int, start time.Time) {
	elapsed := time.Since(start)
	route := routePattern(r)

	observability.RequestsTotal.WithLabelValues(r.Method, route, statusClass(status)).Inc()
	observability.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

	if p.Usage == nil || identity == nil || identity.Source != auth.SourceAPIKey {
		return
	}

	sample := usage.Sample{
		KeyID:     identity.KeyID,
		Path:      r.URL.Path,
		Method:    r.Method,
		Status:    status,
		Elapsed:   elapsed,
		ClientIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
	}

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				p.logger().Error("panic recording usage", "panic", rec)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Usage.RecordUsage(ctx, sample); err != nil {
			observability.UsageSamplesTotal.WithLabelValues("error").Inc()
			p.logger().Warn("recording usage sample", "key_id", sample.KeyID, "error", err)
			return
		}
		observability.UsageSamplesTotal.WithLabelValues("ok").Inc()
	}()
}

// touchSession runs the fire-and-forget activity update.
func (p *Pipeline) touchSession(sessionID string) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger().Error("panic touching session", "panic", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Toucher.TouchSession(ctx, sessionID); err != nil {
		p.logger().Warn("touching session activity", "session_id", sessionID, "error", err)
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// routeParams extracts chi URL parameters into the handler-facing map.
func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}

// routePattern returns the registered chi pattern for metric labels,
// falling back to the raw path outside a chi router.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pat := rctx.RoutePattern(); pat != "" {
			return pat
		}
	}
	return r.URL.Path
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func authSource(opts Options) string {
	if opts.UseAPIKeyAuth {
		return string(auth.SourceAPIKey)
	}
	return string(auth.SourceSession)
}

func userID(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.UserID
}

func tenantID(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.TenantID
}

func source(id *auth.Identity) string {
	if id == nil {
		return string(auth.SourceNone)
	}
	return string(id.Source)
}

package records

import "github.com/casegate/casegate/pkg/pipeline"

// webOptions configures the browser-facing lead routes: session or
// federated identity required, health-gated, activity-touched.
var webOptions = pipeline.Options{
	AuthRequired:     true,
	UseFederatedAuth: true,
	CheckHealth:      true,
	LogRequest:       true,
	UpdateActivity:   true,
}

// keyOptions configures the SDK-facing routes: API-key identity with
// per-operation scopes, no session machinery.
func keyOptions(scopes ...string) pipeline.Options {
	return pipeline.Options{
		AuthRequired:   true,
		UseAPIKeyAuth:  true,
		RequiredScopes: scopes,
		CheckHealth:    true,
		LogRequest:     true,
	}
}

// Register mounts the lead routes. The web surface lives under /leads,
// the API-key surface under /api/v1/leads.
func Register(rt *pipeline.Router, h *Handlers) {
	rt.Get("/leads", webOptions, h.List)
	rt.Post("/leads", webOptions, h.Create)
	rt.Get("/leads/{id}", webOptions, h.Get)
	rt.Put("/leads/{id}", webOptions, h.Update)
	rt.Delete("/leads/{id}", webOptions, h.Delete)

	rt.Get("/api/v1/leads", keyOptions("leads:read"), h.List)
	rt.Post("/api/v1/leads", keyOptions("leads:write"), h.Create)
	rt.Get("/api/v1/leads/{id}", keyOptions("leads:read"), h.Get)
	rt.Put("/api/v1/leads/{id}", keyOptions("leads:write"), h.Update)
	rt.Delete("/api/v1/leads/{id}", keyOptions("leads:write"), h.Delete)
}

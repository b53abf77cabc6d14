package records

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/casegate/casegate/pkg/api"
	"github.com/casegate/casegate/pkg/observability"
	"github.com/casegate/casegate/pkg/pipeline"
	"github.com/casegate/casegate/pkg/storage"
)

// maxBodySize bounds lead payloads.
const maxBodySize = 1 << 20 // 1 MB

// Handlers serves the lead routes through the pipeline.
type Handlers struct {
	Store LeadStore
}

// createLeadRequest is the create payload.
type createLeadRequest struct {
	Name   string     `json:"name"`
	Email  string     `json:"email"`
	Phone  string     `json:"phone"`
	Status LeadStatus `json:"status"`
	Origin string     `json:"origin"`
	Notes  string     `json:"notes"`
}

// updateLeadRequest is the mutation payload. Version is the version the
// client read; pointers distinguish "leave unchanged" from "set empty".
type updateLeadRequest struct {
	Version int64       `json:"version"`
	Name    *string     `json:"name"`
	Email   *string     `json:"email"`
	Phone   *string     `json:"phone"`
	Status  *LeadStatus `json:"status"`
	Origin  *string     `json:"origin"`
	Notes   *string     `json:"notes"`
}

// List returns the tenant's leads.
func (h *Handlers) List(ctx context.Context, _ *pipeline.Context) (*pipeline.Response, error) {
	leads, err := h.Store.ListLeads(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.OK(leads), nil
}

// Create inserts a new lead at version 1.
func (h *Handlers) Create(ctx context.Context, rc *pipeline.Context) (*pipeline.Response, error) {
	var req createLeadRequest
	if err := decodeBody(rc.Request, &req); err != nil {
		return nil, err
	}

	if issues := validateNewLead(req.Name, req.Email, req.Status); len(issues) > 0 {
		return nil, api.NewValidationError("invalid lead", issues...)
	}

	status := req.Status
	if status == "" {
		status = LeadStatusNew
	}

	now := time.Now().UTC()
	lead := &Lead{
		ID:        uuid.NewString(),
		TenantID:  storage.GetTenant(ctx),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Status:    status,
		Origin:    req.Origin,
		Notes:     req.Notes,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Store.CreateLead(ctx, lead); err != nil {
		return nil, err
	}
	return pipeline.Created(lead), nil
}

// Get returns one lead.
func (h *Handlers) Get(ctx context.Context, rc *pipeline.Context) (*pipeline.Response, error) {
	lead, err := h.Store.Get(ctx, rc.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, api.NewNotFoundError("lead")
		}
		return nil, err
	}
	return pipeline.OK(lead), nil
}

// Update mutates a lead through the optimistic update protocol. The
// client supplies the version it read; a mismatch is a conflict, never
// silently resolved.
func (h *Handlers) Update(ctx context.Context, rc *pipeline.Context) (*pipeline.Response, error) {
	var req updateLeadRequest
	if err := decodeBody(rc.Request, &req); err != nil {
		return nil, err
	}

	if req.Version < 1 {
		return nil, api.NewValidationError("invalid update",
			api.FieldIssue("version", "version is required and must be at least 1", "invalid_version"))
	}

	changes := make(map[string]any)
	if req.Name != nil {
		if issue := nameIssue(*req.Name); issue != nil {
			return nil, api.NewValidationError("invalid update", *issue)
		}
		changes["name"] = *req.Name
	}
	if req.Email != nil {
		if issue := emailIssue(*req.Email); issue != nil {
			return nil, api.NewValidationError("invalid update", *issue)
		}
		changes["email"] = *req.Email
	}
	if req.Phone != nil {
		changes["phone"] = *req.Phone
	}
	if req.Status != nil {
		if !leadStatuses[*req.Status] {
			return nil, api.NewValidationError("invalid update", statusIssue())
		}
		changes["status"] = string(*req.Status)
	}
	if req.Origin != nil {
		changes["origin"] = *req.Origin
	}
	if req.Notes != nil {
		changes["notes"] = *req.Notes
	}
	if len(changes) == 0 {
		return nil, api.NewValidationError("invalid update",
			api.FieldIssue("body", "no updatable fields supplied", "empty_update"))
	}

	lead, err := storage.UpdateVersioned(ctx, h.Store, "lead", rc.Param("id"), req.Version, changes)
	if err != nil {
		var conflict *storage.VersionConflictError
		if errors.As(err, &conflict) {
			observability.VersionConflictsTotal.WithLabelValues("lead").Inc()
		}
		return nil, err
	}
	return pipeline.OK(lead), nil
}

// Delete removes a lead.
func (h *Handlers) Delete(ctx context.Context, rc *pipeline.Context) (*pipeline.Response, error) {
	if err := h.Store.DeleteLead(ctx, rc.Param("id")); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, api.NewNotFoundError("lead")
		}
		return nil, err
	}
	return pipeline.Message(http.StatusOK, "lead deleted"), nil
}

// decodeBody parses a JSON request body into dst with a size cap.
func decodeBody(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return api.NewValidationError("request body is required",
				api.FieldIssue("body", "request body is required", "required"))
		}
		return api.NewValidationError("malformed request body",
			api.FieldIssue("body", err.Error(), "malformed_json"))
	}
	return nil
}

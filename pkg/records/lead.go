// Package records holds the lead record model and its HTTP handlers,
// the canonical business consumer of the request pipeline and the
// optimistic update protocol. The handlers stay thin: validation,
// store calls, typed errors.
package records

import (
	"context"
	"strings"
	"time"

	"github.com/casegate/casegate/pkg/api"
	"github.com/casegate/casegate/pkg/storage"
)

// LeadStatus is the lead's position in the intake funnel.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "NEW"
	LeadStatusContacted LeadStatus = "CONTACTED"
	LeadStatusQualified LeadStatus = "QUALIFIED"
	LeadStatusConverted LeadStatus = "CONVERTED"
	LeadStatusLost      LeadStatus = "LOST"
)

// leadStatuses is the closed set of valid statuses.
var leadStatuses = map[LeadStatus]bool{
	LeadStatusNew:       true,
	LeadStatusContacted: true,
	LeadStatusQualified: true,
	LeadStatusConverted: true,
	LeadStatusLost:      true,
}

// Lead is a versioned, tenant-scoped record subject to concurrent
// editing. Version starts at 1 and every successful mutation bumps it
// by exactly 1.
type Lead struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Name      string     `json:"name"`
	Email     string     `json:"email,omitempty"`
	Phone     string     `json:"phone,omitempty"`
	Status    LeadStatus `json:"status"`
	Origin    string     `json:"origin,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// RecordVersion implements storage.Versioned.
func (l *Lead) RecordVersion() int64 { return l.Version }

// LeadStore persists leads, scoped to the tenant carried in the
// context. UpdateIfVersion must be a single atomic conditional write.
type LeadStore interface {
	storage.ConditionalStore[*Lead]

	CreateLead(ctx context.Context, lead *Lead) error
	ListLeads(ctx context.Context) ([]*Lead, error)
	DeleteLead(ctx context.Context, id string) error
}

// validateNewLead checks the create payload, accumulating per-field
// issues so the client sees every problem at once.
func validateNewLead(name, email string, status LeadStatus) []api.FieldError {
	var issues []api.FieldError

	if issue := nameIssue(name); issue != nil {
		issues = append(issues, *issue)
	}
	if issue := emailIssue(email); issue != nil {
		issues = append(issues, *issue)
	}
	if status != "" && !leadStatuses[status] {
		issues = append(issues, statusIssue())
	}
	return issues
}

func nameIssue(name string) *api.FieldError {
	if strings.TrimSpace(name) == "" {
		issue := api.FieldIssue("name", "name is required", "required")
		return &issue
	}
	return nil
}

func emailIssue(email string) *api.FieldError {
	if email != "" && !strings.Contains(email, "@") {
		issue := api.FieldIssue("email", "email is not a valid address", "invalid_email")
		return &issue
	}
	return nil
}

func statusIssue() api.FieldError {
	return api.FieldIssue("status", "unknown lead status", "invalid_status")
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/casegate/casegate/pkg/storage"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindAuth, http.StatusUnauthorized},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindServiceUnavailable, http.StatusServiceUnavailable},
		{KindServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			e := &Error{Kind: tt.kind, Message: "test"}
			if got := e.Status(); got != tt.want {
				t.Errorf("Status() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClassifyPassesTypedErrorsThrough(t *testing.T) {
	orig := NewForbiddenError("no access")

	got := Classify(orig)
	if got != orig {
		t.Errorf("Classify returned a new error, want the original passed through")
	}

	// Wrapped typed errors unwrap to the original.
	wrapped := fmt.Errorf("handling request: %w", orig)
	got = Classify(wrapped)
	if got != orig {
		t.Errorf("Classify(wrapped) = %v, want original typed error", got)
	}
}

func TestClassifyStorageSentinels(t *testing.T) {
	got := Classify(storage.ErrNotFound)
	if got.Kind != KindNotFound {
		t.Errorf("Classify(ErrNotFound).Kind = %q, want %q", got.Kind, KindNotFound)
	}
	if got.Status() != http.StatusNotFound {
		t.Errorf("Status() = %d, want 404", got.Status())
	}

	got = Classify(storage.ErrConflict)
	if got.Kind != KindConflict {
		t.Errorf("Classify(ErrConflict).Kind = %q, want %q", got.Kind, KindConflict)
	}
	if got.Conflict != nil {
		t.Errorf("plain conflict should carry no version details, got %+v", got.Conflict)
	}
}

func TestClassifyVersionConflict(t *testing.T) {
	vc := &storage.VersionConflictError{
		EntityType:      "lead",
		EntityID:        "lead-1",
		ExpectedVersion: 1,
		ActualVersion:   2,
	}

	got := Classify(fmt.Errorf("updating: %w", vc))
	if got.Kind != KindConflict {
		t.Fatalf("Kind = %q, want %q", got.Kind, KindConflict)
	}
	if got.Conflict == nil {
		t.Fatal("Conflict details missing")
	}
	if got.Conflict.ExpectedVersion != 1 || got.Conflict.ActualVersion != 2 {
		t.Errorf("Conflict versions = (%d, %d), want (1, 2)",
			got.Conflict.ExpectedVersion, got.Conflict.ActualVersion)
	}
	if got.Conflict.EntityType != "lead" || got.Conflict.EntityID != "lead-1" {
		t.Errorf("Conflict entity = (%q, %q), want (lead, lead-1)",
			got.Conflict.EntityType, got.Conflict.EntityID)
	}
}

func TestClassifyUnknownErrorCollapsesToServerError(t *testing.T) {
	got := Classify(errors.New("database exploded: password=hunter2"))
	if got.Kind != KindServerError {
		t.Fatalf("Kind = %q, want %q", got.Kind, KindServerError)
	}
	// Internals never leak into the client-facing message.
	if got.Message != "internal server error" {
		t.Errorf("Message = %q, want generic message", got.Message)
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != nil {
		t.Errorf("Classify(nil) = %v, want nil", got)
	}
}

func TestVersionConflictErrorMatchesConflictSentinel(t *testing.T) {
	var err error = &storage.VersionConflictError{
		EntityType: "lead", EntityID: "x", ExpectedVersion: 3, ActualVersion: 5,
	}
	if !errors.Is(err, storage.ErrConflict) {
		t.Error("VersionConflictError should match ErrConflict via errors.Is")
	}
}

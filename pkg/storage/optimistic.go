package storage

import (
	"context"
	"errors"
	"fmt"
)

// Versioned is implemented by any record subject to concurrent edits.
// Versions start at 1 on creation and every successful mutation
// increments by exactly 1.
type Versioned interface {
	RecordVersion() int64
}

// VersionConflictError reports an optimistic-lock failure. It wraps
// ErrConflict so errors.Is(err, ErrConflict) holds, and carries the
// version details the caller needs to retry or surface the conflict.
type VersionConflictError struct {
	EntityType      string
	EntityID        string
	ExpectedVersion int64
	ActualVersion   int64
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s: version conflict (expected %d, actual %d)",
		e.EntityType, e.EntityID, e.ExpectedVersion, e.ActualVersion)
}

// Unwrap makes the conflict matchable as ErrConflict.
func (e *VersionConflictError) Unwrap() error { return ErrConflict }

// ConditionalStore is the primitive the optimistic protocol runs on.
// UpdateIfVersion must be a single atomic conditional write at the
// storage layer: apply changes and bump the version iff the stored
// version equals expected. It reports whether a row was updated.
type ConditionalStore[T Versioned] interface {
	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, id string) (T, error)

	// UpdateIfVersion applies changes and increments the version in one
	// conditional write. ok is false when the version did not match.
	UpdateIfVersion(ctx context.Context, id string, expected int64, changes map[string]any) (T, bool, error)
}

// UpdateVersioned mutates a versioned record safely under concurrent
// writers. A missing record is reported as ErrNotFound before the
// conditional write is attempted, so absence is never folded into the
// zero-rows outcome. On a version mismatch the actual version is
// re-read and returned in a VersionConflictError; no retry is
// performed. On success the returned record carries the stored version,
// which callers must use instead of assuming expected+1.
func UpdateVersioned[T Versioned](ctx context.Context, store ConditionalStore[T], entityType, id string, expected int64, changes map[string]any) (T, error) {
	var zero T

	if _, err := store.Get(ctx, id); err != nil {
		return zero, err
	}

	updated, ok, err := store.UpdateIfVersion(ctx, id, expected, changes)
	if err != nil {
		return zero, err
	}
	if ok {
		return updated, nil
	}

	// Zero rows: the record existed a moment ago, so this is a version
	// conflict. Re-read for the actual version; if the record vanished
	// in between, report the deletion instead.
	current, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return zero, err
		}
		return zero, fmt.Errorf("reading current version of %s %s: %w", entityType, id, err)
	}

	return zero, &VersionConflictError{
		EntityType:      entityType,
		EntityID:        id,
		ExpectedVersion: expected,
		ActualVersion:   current.RecordVersion(),
	}
}

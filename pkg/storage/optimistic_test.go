package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// note is a minimal versioned record for exercising the protocol.
type note struct {
	ID      string
	Text    string
	Version int64
}

func (n *note) RecordVersion() int64 { return n.Version }

// noteStore implements ConditionalStore[*note] with an atomic
// conditional write under one mutex, mirroring the real adapters.
type noteStore struct {
	mu    sync.Mutex
	notes map[string]*note

	// deleteOnReread simulates the record vanishing between the failed
	// conditional write and the conflict re-read.
	deleteOnReread string
	getCalls       int
}

func newNoteStore(notes ...*note) *noteStore {
	s := &noteStore{notes: make(map[string]*note)}
	for _, n := range notes {
		cp := *n
		s.notes[n.ID] = &cp
	}
	return s
}

func (s *noteStore) Get(_ context.Context, id string) (*note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getCalls++
	if s.deleteOnReread == id && s.getCalls > 1 {
		delete(s.notes, id)
	}
	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *noteStore) UpdateIfVersion(_ context.Context, id string, expected int64, changes map[string]any) (*note, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if n.Version != expected {
		return nil, false, nil
	}
	if text, ok := changes["text"].(string); ok {
		n.Text = text
	}
	n.Version++
	cp := *n
	return &cp, true, nil
}

func TestUpdateVersionedSuccess(t *testing.T) {
	store := newNoteStore(&note{ID: "n1", Text: "old", Version: 1})

	got, err := UpdateVersioned(context.Background(), store, "note", "n1", 1, map[string]any{"text": "new"})
	if err != nil {
		t.Fatalf("UpdateVersioned failed: %v", err)
	}
	if got.Text != "new" {
		t.Errorf("Text = %q, want %q", got.Text, "new")
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func TestUpdateVersionedMissingRecordIsNotFound(t *testing.T) {
	store := newNoteStore()

	_, err := UpdateVersioned(context.Background(), store, "note", "absent", 1, map[string]any{"text": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// Absence must never be reported as a version conflict.
	var conflict *VersionConflictError
	if errors.As(err, &conflict) {
		t.Errorf("missing record reported as conflict: %+v", conflict)
	}
}

func TestUpdateVersionedStaleVersionIsConflict(t *testing.T) {
	store := newNoteStore(&note{ID: "n1", Text: "current", Version: 3})

	_, err := UpdateVersioned(context.Background(), store, "note", "n1", 1, map[string]any{"text": "stale"})

	var conflict *VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want VersionConflictError", err)
	}
	if conflict.ExpectedVersion != 1 {
		t.Errorf("ExpectedVersion = %d, want 1", conflict.ExpectedVersion)
	}
	if conflict.ActualVersion != 3 {
		t.Errorf("ActualVersion = %d, want 3", conflict.ActualVersion)
	}
	if conflict.EntityType != "note" || conflict.EntityID != "n1" {
		t.Errorf("entity = (%q, %q), want (note, n1)", conflict.EntityType, conflict.EntityID)
	}

	// No silent resolution: the record is unchanged.
	cur, err := store.Get(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cur.Text != "current" || cur.Version != 3 {
		t.Errorf("record mutated on conflict: %+v", cur)
	}
}

func TestUpdateVersionedRecordDeletedDuringConflict(t *testing.T) {
	store := newNoteStore(&note{ID: "n1", Version: 5})
	store.deleteOnReread = "n1"

	_, err := UpdateVersioned(context.Background(), store, "note", "n1", 1, map[string]any{"text": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound when the record vanishes mid-conflict", err)
	}
}

// Racing writers with the same expected version: exactly one wins, every
// loser sees a conflict carrying the winner's version.
func TestUpdateVersionedConcurrentWriters(t *testing.T) {
	const writers = 16

	store := newNoteStore(&note{ID: "n1", Text: "base", Version: 1})

	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := UpdateVersioned(context.Background(), store, "note", "n1", 1,
				map[string]any{"text": "contender"})
			results[i] = err
		}()
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			var conflict *VersionConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("loser got %v, want VersionConflictError", err)
			}
			if conflict.ActualVersion != 2 {
				t.Errorf("loser ActualVersion = %d, want 2", conflict.ActualVersion)
			}
			conflicts++
		}
	}

	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}
	if conflicts != writers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, writers-1)
	}

	cur, err := store.Get(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cur.Version != 2 {
		t.Errorf("final Version = %d, want 2 (exactly one increment)", cur.Version)
	}
}

// Package memory provides an in-memory storage adapter: leads,
// sessions, API keys, and usage samples behind one mutex. It backs dev
// mode and unit tests; semantics mirror the postgres adapter, including
// the single conditional write of the optimistic protocol.
package memory

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/casegate/casegate/pkg/auth"
	"github.com/casegate/casegate/pkg/auth/apikey"
	"github.com/casegate/casegate/pkg/records"
	"github.com/casegate/casegate/pkg/storage"
	"github.com/casegate/casegate/pkg/usage"
)

// Store is the in-memory adapter. The zero value is not usable; use New.
type Store struct {
	mu       sync.RWMutex
	leads    map[string]*records.Lead
	sessions map[string]*session // keyed by token
	keys     map[[32]byte]*apikey.Key
	samples  []usage.Sample
}

type session struct {
	record   auth.SessionRecord
	lastSeen time.Time
}

// Compile-time interface checks.
var (
	_ records.LeadStore = (*Store)(nil)
	_ auth.SessionStore = (*Store)(nil)
	_ apikey.KeyStore   = (*Store)(nil)
	_ usage.Recorder    = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		leads:    make(map[string]*records.Lead),
		sessions: make(map[string]*session),
		keys:     make(map[[32]byte]*apikey.Key),
	}
}

// visible reports whether the record belongs to the context's tenant.
// An empty context tenant means single-tenant mode and sees everything.
func visible(ctx context.Context, tenantID string) bool {
	t := storage.GetTenant(ctx)
	return t == "" || t == tenantID
}

// CreateLead inserts a lead, rejecting duplicate ids.
func (s *Store) CreateLead(_ context.Context, lead *records.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.leads[lead.ID]; exists {
		return storage.ErrConflict
	}
	cp := *lead
	s.leads[lead.ID] = &cp
	return nil
}

// Get returns the lead visible to the tenant, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*records.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok || !visible(ctx, lead.TenantID) {
		return nil, storage.ErrNotFound
	}
	cp := *lead
	return &cp, nil
}

// ListLeads returns the tenant's leads ordered by creation time.
func (s *Store) ListLeads(ctx context.Context) ([]*records.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*records.Lead
	for _, lead := range s.leads {
		if visible(ctx, lead.TenantID) {
			cp := *lead
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateIfVersion applies changes and bumps the version iff the stored
// version matches. The whole operation runs under one lock, making it
// atomic with respect to racing writers.
func (s *Store) UpdateIfVersion(ctx context.Context, id string, expected int64, changes map[string]any) (*records.Lead, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok || !visible(ctx, lead.TenantID) {
		return nil, false, storage.ErrNotFound
	}
	if lead.Version != expected {
		return nil, false, nil
	}

	// Validate the whole change set before touching the record, so a bad
	// entry never leaves a half-applied mutation behind.
	strs := make(map[string]string, len(changes))
	for field, value := range changes {
		switch field {
		case "name", "email", "phone", "status", "origin", "notes":
		default:
			return nil, false, fmt.Errorf("unknown lead field %q", field)
		}
		s, ok := value.(string)
		if !ok {
			return nil, false, fmt.Errorf("lead field %q: expected string value, got %T", field, value)
		}
		strs[field] = s
	}

	for field, s := range strs {
		switch field {
		case "name":
			lead.Name = s
		case "email":
			lead.Email = s
		case "phone":
			lead.Phone = s
		case "status":
			lead.Status = records.LeadStatus(s)
		case "origin":
			lead.Origin = s
		case "notes":
			lead.Notes = s
		}
	}
	lead.Version++
	lead.UpdatedAt = time.Now().UTC()

	cp := *lead
	return &cp, true, nil
}

// DeleteLead removes the lead, or reports storage.ErrNotFound.
func (s *Store) DeleteLead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok || !visible(ctx, lead.TenantID) {
		return storage.ErrNotFound
	}
	delete(s.leads, id)
	return nil
}

// AddSession registers a session under its opaque token. Used by dev
// seeding and tests.
func (s *Store) AddSession(token string, rec auth.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = &session{record: rec, lastSeen: time.Now()}
}

// ResolveSession implements auth.SessionStore. Unknown or expired
// tokens resolve to (nil, nil).
func (s *Store) ResolveSession(_ context.Context, token string) (*auth.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	if !sess.record.ExpiresAt.IsZero() && time.Now().After(sess.record.ExpiresAt) {
		return nil, nil
	}
	cp := sess.record
	return &cp, nil
}

// TouchSession implements auth.SessionStore.
func (s *Store) TouchSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.record.SessionID == sessionID {
			sess.lastSeen = time.Now()
			return nil
		}
	}
	return storage.ErrNotFound
}

// AddKey registers an API key under the SHA-256 hash of its raw value.
func (s *Store) AddKey(raw string, key apikey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[sha256.Sum256([]byte(raw))] = &key
}

// LookupKey implements apikey.KeyStore.
func (s *Store) LookupKey(_ context.Context, hash [32]byte) (*apikey.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[hash]
	if !ok {
		return nil, nil
	}
	cp := *key
	return &cp, nil
}

// RecordUsage implements usage.Recorder.
func (s *Store) RecordUsage(_ context.Context, sample usage.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

// UsageSamples returns a copy of the recorded samples, for tests.
func (s *Store) UsageSamples() []usage.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]usage.Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

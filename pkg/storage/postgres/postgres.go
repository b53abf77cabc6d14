// Package postgres provides the PostgreSQL storage adapter: leads,
// sessions, API keys, and usage samples. It uses pgx/v5 for connection
// pooling, and implements the optimistic protocol's conditional write
// as a single versioned UPDATE.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/casegate/casegate/pkg/auth"
	"github.com/casegate/casegate/pkg/auth/apikey"
	"github.com/casegate/casegate/pkg/records"
	"github.com/casegate/casegate/pkg/storage"
	"github.com/casegate/casegate/pkg/usage"
)

// Store is the PostgreSQL-backed adapter.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface checks.
var (
	_ records.LeadStore = (*Store)(nil)
	_ auth.SessionStore = (*Store)(nil)
	_ apikey.KeyStore   = (*Store)(nil)
	_ usage.Recorder    = (*Store)(nil)
)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping probes connectivity; the health gate consumes it.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const leadColumns = "id, tenant_id, name, email, phone, status, origin, notes, version, created_at, updated_at"

// leadFields whitelists the mutable lead fields and maps them to columns.
var leadFields = map[string]string{
	"name":   "name",
	"email":  "email",
	"phone":  "phone",
	"status": "status",
	"origin": "origin",
	"notes":  "notes",
}

// CreateLead inserts a new lead at its initial version.
func (s *Store) CreateLead(ctx context.Context, lead *records.Lead) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		lead.ID, lead.TenantID, lead.Name, lead.Email, lead.Phone,
		string(lead.Status), lead.Origin, lead.Notes, lead.Version,
		lead.CreatedAt, lead.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting lead: %w", err)
	}
	return nil
}

// Get retrieves a lead scoped to the context's tenant.
func (s *Store) Get(ctx context.Context, id string) (*records.Lead, error) {
	query := "SELECT " + leadColumns + " FROM leads WHERE id = $1"
	args := []any{id}

	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenant)
	}

	lead, err := scanLead(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead: %w", err)
	}
	return lead, nil
}

// ListLeads returns the tenant's leads ordered by creation time.
func (s *Store) ListLeads(ctx context.Context) ([]*records.Lead, error) {
	query := "SELECT " + leadColumns + " FROM leads"
	var args []any

	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenant)
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying leads: %w", err)
	}
	defer rows.Close()

	var out []*records.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning lead: %w", err)
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// UpdateIfVersion performs the optimistic protocol's conditional write:
// one UPDATE that applies the changes and bumps the version iff the
// stored version equals expected. Zero affected rows means the version
// did not match; there is no separate read between check and mutation.
func (s *Store) UpdateIfVersion(ctx context.Context, id string, expected int64, changes map[string]any) (*records.Lead, bool, error) {
	fields := make([]string, 0, len(changes))
	for f := range changes {
		if _, ok := leadFields[f]; !ok {
			return nil, false, fmt.Errorf("unknown lead field %q", f)
		}
		fields = append(fields, f)
	}
	sort.Strings(fields)

	set := make([]string, 0, len(fields)+2)
	args := make([]any, 0, len(fields)+3)
	for i, f := range fields {
		set = append(set, fmt.Sprintf("%s = $%d", leadFields[f], i+1))
		args = append(args, changes[f])
	}
	set = append(set, "version = version + 1", "updated_at = now()")

	idx := len(args) + 1
	query := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d AND version = $%d",
		strings.Join(set, ", "), idx, idx+1)
	args = append(args, id, expected)

	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", idx+2)
		args = append(args, tenant)
	}
	query += " RETURNING " + leadColumns

	lead, err := scanLead(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("updating lead: %w", err)
	}
	return lead, true, nil
}

// DeleteLead removes a lead scoped to the context's tenant.
func (s *Store) DeleteLead(ctx context.Context, id string) error {
	query := "DELETE FROM leads WHERE id = $1"
	args := []any{id}

	if tenant := storage.GetTenant(ctx); tenant != "" {
		query += " AND tenant_id = $2"
		args = append(args, tenant)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deleting lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ResolveSession implements auth.SessionStore. Unknown or expired
// tokens resolve to (nil, nil), not an error.
func (s *Store) ResolveSession(ctx context.Context, token string) (*auth.SessionRecord, error) {
	var rec auth.SessionRecord
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, role, tenant_id, expires_at
		FROM sessions
		WHERE token = $1 AND expires_at > now()
	`, token).Scan(&rec.SessionID, &rec.UserID, &rec.Role, &rec.TenantID, &rec.ExpiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &rec, nil
}

// TouchSession implements auth.SessionStore.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE sessions SET last_activity_at = now() WHERE id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// CreateSession inserts a session. Used by seeding and integration tests.
func (s *Store) CreateSession(ctx context.Context, token string, rec auth.SessionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, token, user_id, role, tenant_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.SessionID, token, rec.UserID, rec.Role, rec.TenantID, rec.ExpiresAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// LookupKey implements apikey.KeyStore.
func (s *Store) LookupKey(ctx context.Context, hash [32]byte) (*apikey.Key, error) {
	var key apikey.Key
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, user_id, scopes, rate_limit, expires_at, is_active
		FROM api_keys
		WHERE key_hash = $1
	`, hash[:]).Scan(&key.ID, &key.TenantID, &key.UserID, &key.Scopes,
		&key.RateLimit, &key.ExpiresAt, &key.Active)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	return &key, nil
}

// CreateKey inserts an API key hashed from its raw value. Used by
// seeding and integration tests.
func (s *Store) CreateKey(ctx context.Context, hash [32]byte, key apikey.Key) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, tenant_id, user_id, key_hash, scopes, rate_limit, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, key.ID, key.TenantID, key.UserID, hash[:], key.Scopes, key.RateLimit, key.ExpiresAt, key.Active)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting api key: %w", err)
	}
	return nil
}

// RecordUsage implements usage.Recorder.
func (s *Store) RecordUsage(ctx context.Context, sample usage.Sample) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_key_usage (key_id, path, method, status, elapsed_ms, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sample.KeyID, sample.Path, sample.Method, sample.Status,
		sample.Elapsed.Milliseconds(), sample.ClientIP, sample.UserAgent)
	if err != nil {
		return fmt.Errorf("inserting usage sample: %w", err)
	}
	return nil
}

// scanLead reads one lead row.
func scanLead(row pgx.Row) (*records.Lead, error) {
	var lead records.Lead
	var status string
	var createdAt, updatedAt time.Time

	err := row.Scan(&lead.ID, &lead.TenantID, &lead.Name, &lead.Email, &lead.Phone,
		&status, &lead.Origin, &lead.Notes, &lead.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	lead.Status = records.LeadStatus(status)
	lead.CreatedAt = createdAt
	lead.UpdatedAt = updatedAt
	return &lead, nil
}

// isDuplicateKey reports whether the error is a unique constraint violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

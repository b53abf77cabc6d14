package postgres

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/casegate/casegate/pkg/auth"
	"github.com/casegate/casegate/pkg/auth/apikey"
	"github.com/casegate/casegate/pkg/records"
	"github.com/casegate/casegate/pkg/storage"
	"github.com/casegate/casegate/pkg/usage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected,
// migrated Store. Tests are skipped if no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("casegate_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func makeTestLead(tenant string) *records.Lead {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &records.Lead{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		Status:    records.LeadStatusNew,
		Origin:    "import",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgres_LeadCreateAndGet(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	lead := makeTestLead("org-1")
	if err := store.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	got, err := store.Get(ctx, lead.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != lead.Name || got.Email != lead.Email || got.Status != lead.Status {
		t.Errorf("lead = %+v, want %+v", got, lead)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	if err := store.CreateLead(ctx, lead); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate create err = %v, want ErrConflict", err)
	}
}

func TestPostgres_LeadTenantScoping(t *testing.T) {
	store := setupTestDB(t)
	base := context.Background()

	mine := makeTestLead("org-1")
	theirs := makeTestLead("org-2")
	if err := store.CreateLead(base, mine); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	if err := store.CreateLead(base, theirs); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	org1 := storage.SetTenant(base, "org-1")

	if _, err := store.Get(org1, theirs.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant Get err = %v, want ErrNotFound", err)
	}

	leads, err := store.ListLeads(org1)
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	for _, l := range leads {
		if l.TenantID != "org-1" {
			t.Errorf("list leaked lead %s from tenant %s", l.ID, l.TenantID)
		}
	}

	if err := store.DeleteLead(org1, theirs.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cross-tenant Delete err = %v, want ErrNotFound", err)
	}
}

func TestPostgres_UpdateIfVersion(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	lead := makeTestLead("org-1")
	if err := store.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	got, ok, err := store.UpdateIfVersion(ctx, lead.ID, 1, map[string]any{
		"name":   "Grace Hopper",
		"status": string(records.LeadStatusContacted),
	})
	if err != nil {
		t.Fatalf("UpdateIfVersion failed: %v", err)
	}
	if !ok {
		t.Fatal("ok = false for a matching version")
	}
	if got.Name != "Grace Hopper" || got.Status != records.LeadStatusContacted {
		t.Errorf("lead = %+v, want the applied changes", got)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}

	// Stale expected version: zero rows, no error.
	got, ok, err = store.UpdateIfVersion(ctx, lead.ID, 1, map[string]any{"name": "stale"})
	if err != nil {
		t.Fatalf("UpdateIfVersion failed: %v", err)
	}
	if ok || got != nil {
		t.Errorf("stale update = (%+v, %v), want (nil, false)", got, ok)
	}

	// Unknown field: rejected before touching the database.
	if _, _, err := store.UpdateIfVersion(ctx, lead.ID, 2, map[string]any{"version": 99}); err == nil {
		t.Error("UpdateIfVersion accepted a non-whitelisted field")
	}
}

func TestPostgres_ConcurrentVersionedUpdates(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	lead := makeTestLead("org-1")
	if err := store.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := storage.UpdateVersioned(ctx, store, "lead", lead.ID, 1,
				map[string]any{"notes": fmt.Sprintf("writer-%d", i)})
			results[i] = err
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var conflict *storage.VersionConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("loser got %v, want VersionConflictError", err)
		}
	}
	if wins != 1 {
		t.Errorf("winners = %d, want exactly 1", wins)
	}

	cur, err := store.Get(ctx, lead.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cur.Version != 2 {
		t.Errorf("final Version = %d, want 2", cur.Version)
	}
}

func TestPostgres_Sessions(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	live := auth.SessionRecord{
		SessionID: uuid.NewString(), UserID: "user-1", Role: auth.RoleUser,
		TenantID: "org-1", ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := store.CreateSession(ctx, "tok-live", live); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	dead := auth.SessionRecord{
		SessionID: uuid.NewString(), UserID: "user-2", Role: auth.RoleUser,
		TenantID: "org-1", ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := store.CreateSession(ctx, "tok-dead", dead); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	rec, err := store.ResolveSession(ctx, "tok-live")
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if rec == nil || rec.UserID != "user-1" || rec.TenantID != "org-1" {
		t.Errorf("record = %+v, want user-1/org-1", rec)
	}

	rec, err = store.ResolveSession(ctx, "tok-dead")
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil for an expired session", rec)
	}

	rec, err = store.ResolveSession(ctx, "tok-unknown")
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if rec != nil {
		t.Errorf("record = %+v, want nil for an unknown token", rec)
	}

	if err := store.TouchSession(ctx, live.SessionID); err != nil {
		t.Errorf("TouchSession failed: %v", err)
	}
}

func TestPostgres_APIKeys(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	raw := "sk-" + uuid.NewString()
	hash := sha256.Sum256([]byte(raw))
	key := apikey.Key{
		ID: uuid.NewString(), TenantID: "org-1", UserID: "user-1",
		Scopes: []string{"leads:read", "leads:write"}, RateLimit: 50, Active: true,
	}
	if err := store.CreateKey(ctx, hash, key); err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	got, err := store.LookupKey(ctx, hash)
	if err != nil {
		t.Fatalf("LookupKey failed: %v", err)
	}
	if got == nil {
		t.Fatal("key = nil, want the stored key")
	}
	if got.ID != key.ID || got.TenantID != "org-1" || !got.Active {
		t.Errorf("key = %+v, want %+v", got, key)
	}
	if len(got.Scopes) != 2 {
		t.Errorf("Scopes = %v, want 2 entries", got.Scopes)
	}

	got, err = store.LookupKey(ctx, sha256.Sum256([]byte("sk-unknown")))
	if err != nil {
		t.Fatalf("LookupKey failed: %v", err)
	}
	if got != nil {
		t.Errorf("key = %+v, want nil for an unknown hash", got)
	}
}

func TestPostgres_RecordUsage(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	hash := sha256.Sum256([]byte("sk-" + uuid.NewString()))
	key := apikey.Key{ID: uuid.NewString(), TenantID: "org-1", UserID: "user-1", Active: true}
	if err := store.CreateKey(ctx, hash, key); err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	err := store.RecordUsage(ctx, usage.Sample{
		KeyID: key.ID, Path: "/api/v1/leads", Method: "GET", Status: 200,
		Elapsed: 12 * time.Millisecond, ClientIP: "203.0.113.9", UserAgent: "sdk/1.0",
	})
	if err != nil {
		t.Fatalf("RecordUsage failed: %v", err)
	}
}

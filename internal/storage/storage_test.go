package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"statboard-backend/internal/audit"
)

func setupTestRepository(t *testing.T) (*Repository, func()) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set")
	}
	store, err := NewStore(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to connect to db: %v", err)
	}
	repo := NewRepository(store)
	ensureSchema(t, repo)
	cleanup := func() {
		store.Close()
	}
	return repo, cleanup
}

func ensureSchema(t *testing.T, repo *Repository) {
	ctx := context.Background()
	ddl, err := os.ReadFile("../../migrations/001_init.sql")
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := repo.Store.Pool.Exec(ctx, string(ddl)); err != nil {
		t.Fatalf("failed to ensure schema: %v", err)
	}
}

func createTestDataSource(t *testing.T, repo *Repository) string {
	id, err := repo.CreateDataSource(context.Background(), DataSourceRecord{
		Name: "test-pg", Type: "postgres", Host: "localhost", Port: 5432,
		User: "app", PasswordEnc: "enc", Database: "metrics", SSLMode: "disable",
	})
	if err != nil {
		t.Fatalf("failed to create data source: %v", err)
	}
	return id
}

func TestCreateQueryWritesCreationChange(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()
	ctx := context.Background()
	dsID := createTestDataSource(t, repo)

	rec, err := repo.CreateQuery(ctx, QueryRecord{
		DataSourceID: dsID, Name: "daily signups", QueryText: "SELECT count(*) FROM signups", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("failed to create query: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("expected version 1 after creation, got %d", rec.Version)
	}
	changes, err := repo.ListChanges(ctx, audit.ObjectTypeQuery, rec.ID)
	if err != nil {
		t.Fatalf("failed to list changes: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected exactly one change after creation, got %d", len(changes))
	}
	if changes[0].Change["name"].Previous != nil {
		t.Fatalf("creation change must diff against nil, got %#v", changes[0].Change["name"].Previous)
	}
}

func TestUpdateQueryVersionAndConflict(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()
	ctx := context.Background()
	dsID := createTestDataSource(t, repo)

	rec, err := repo.CreateQuery(ctx, QueryRecord{
		DataSourceID: dsID, Name: "revenue", QueryText: "SELECT 1", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("failed to create query: %v", err)
	}

	snap := audit.Capture(&rec)
	rec.QueryText = "SELECT 2"
	updated, err := repo.UpdateQuery(ctx, rec, snap, "u2")
	if err != nil {
		t.Fatalf("failed to update query: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2 after first update, got %d", updated.Version)
	}
	if updated.QueryHash == rec.QueryHash && rec.QueryText != updated.QueryText {
		t.Fatalf("query hash must follow the text")
	}

	// Second writer still holding version 1 must lose.
	stale := rec
	stale.Name = "revenue v2"
	_, err = repo.UpdateQuery(ctx, stale, snap, "u3")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}

	changes, err := repo.ListChanges(ctx, audit.ObjectTypeQuery, rec.ID)
	if err != nil {
		t.Fatalf("failed to list changes: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("expected two changes (create + update), got %d", len(changes))
	}
}

func TestStoreResultFansOutToSharingQueries(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()
	ctx := context.Background()
	dsID := createTestDataSource(t, repo)

	queryText := "SELECT count(*) FROM events"
	first, err := repo.CreateQuery(ctx, QueryRecord{DataSourceID: dsID, Name: "a", QueryText: queryText, UserID: "u1"})
	if err != nil {
		t.Fatalf("failed to create first query: %v", err)
	}
	second, err := repo.CreateQuery(ctx, QueryRecord{DataSourceID: dsID, Name: "b", QueryText: queryText, UserID: "u1"})
	if err != nil {
		t.Fatalf("failed to create second query: %v", err)
	}

	payload := []byte(`{"columns":[{"name":"count","type":"integer"}],"rows":[{"count":42}]}`)
	resultID, updated, err := repo.StoreResult(ctx, ResultRecord{
		DataSourceID: dsID, QueryText: queryText, Data: payload, Runtime: 0.5, RetrievedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to store result: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("expected fan-out to both sharing queries, got %v", updated)
	}
	for _, id := range []string{first.ID, second.ID} {
		q, err := repo.GetQuery(ctx, id)
		if err != nil {
			t.Fatalf("failed to reload query: %v", err)
		}
		if q.LatestQueryDataID == nil || *q.LatestQueryDataID != resultID {
			t.Fatalf("query %s not pointing at new result", id)
		}
	}
}

func TestStoreResultMonotonicity(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()
	ctx := context.Background()
	dsID := createTestDataSource(t, repo)

	queryText := "SELECT now()"
	q, err := repo.CreateQuery(ctx, QueryRecord{DataSourceID: dsID, Name: "clock", QueryText: queryText, UserID: "u1"})
	if err != nil {
		t.Fatalf("failed to create query: %v", err)
	}

	now := time.Now().UTC()
	newID, _, err := repo.StoreResult(ctx, ResultRecord{
		DataSourceID: dsID, QueryText: queryText, Data: []byte(`{}`), Runtime: 0.1, RetrievedAt: now,
	})
	if err != nil {
		t.Fatalf("failed to store fresh result: %v", err)
	}
	// A slower execution that started earlier finishes afterwards with an
	// older retrieved_at; it must not regress the pointer.
	_, updated, err := repo.StoreResult(ctx, ResultRecord{
		DataSourceID: dsID, QueryText: queryText, Data: []byte(`{}`), Runtime: 5, RetrievedAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("failed to store stale result: %v", err)
	}
	if len(updated) != 0 {
		t.Fatalf("stale result must not update any query, got %v", updated)
	}
	reloaded, err := repo.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("failed to reload query: %v", err)
	}
	if reloaded.LatestQueryDataID == nil || *reloaded.LatestQueryDataID != newID {
		t.Fatalf("latest result pointer regressed")
	}
}

func TestGetLatestResultRoundTrip(t *testing.T) {
	repo, cleanup := setupTestRepository(t)
	defer cleanup()
	ctx := context.Background()
	dsID := createTestDataSource(t, repo)

	queryText := "SELECT 'payload'"
	payload := []byte(`{"columns":[{"name":"v","type":"string"}],"rows":[{"v":"payload"}]}`)
	_, _, err := repo.StoreResult(ctx, ResultRecord{
		DataSourceID: dsID, QueryText: queryText, Data: payload, Runtime: 0.2, RetrievedAt: time.Now().UTC().Add(-48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("failed to store result: %v", err)
	}

	rec, err := repo.GetLatestResult(ctx, dsID, queryText, -1)
	if err != nil {
		t.Fatalf("expected any-age lookup to hit: %v", err)
	}
	if !bytes.Equal(rec.Data, payload) {
		t.Fatalf("payload must round-trip bit-identical")
	}

	_, err = repo.GetLatestResult(ctx, dsID, queryText, 60)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected miss for tight max age, got %v", err)
	}
}

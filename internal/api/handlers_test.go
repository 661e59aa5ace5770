package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"statboard-backend/internal/audit"
	"statboard-backend/internal/bus"
	"statboard-backend/internal/storage"
)

type fakeStore struct {
	queries        map[string]storage.QueryRecord
	alerts         map[string]storage.AlertRecord
	dashboards     map[string]storage.DashboardRecord
	visualizations []storage.VisualizationRecord
	results        map[string]storage.ResultRecord
	updatedQueries []storage.QueryRecord
	nextID         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		queries:    map[string]storage.QueryRecord{},
		alerts:     map[string]storage.AlertRecord{},
		dashboards: map[string]storage.DashboardRecord{},
		results:    map[string]storage.ResultRecord{},
	}
}

func (s *fakeStore) id() string {
	s.nextID++
	return "id-" + string(rune('a'+s.nextID))
}

func (s *fakeStore) CreateDataSource(_ context.Context, ds storage.DataSourceRecord) (string, error) {
	return s.id(), nil
}

func (s *fakeStore) GetDataSource(_ context.Context, id string) (storage.DataSourceRecord, error) {
	return storage.DataSourceRecord{ID: id}, nil
}

func (s *fakeStore) ListDataSources(context.Context) ([]storage.DataSourceRecord, error) {
	return nil, nil
}

func (s *fakeStore) CreateQuery(_ context.Context, rec storage.QueryRecord) (storage.QueryRecord, error) {
	rec.ID = s.id()
	rec.Version = 1
	s.queries[rec.ID] = rec
	return rec, nil
}

func (s *fakeStore) UpdateQuery(_ context.Context, rec storage.QueryRecord, _ audit.Snapshot, userID string) (storage.QueryRecord, error) {
	current, ok := s.queries[rec.ID]
	if !ok {
		return storage.QueryRecord{}, storage.ErrNotFound
	}
	if current.Version != rec.Version {
		return storage.QueryRecord{}, storage.ErrConflict
	}
	rec.Version++
	rec.LastModifiedByID = &userID
	s.queries[rec.ID] = rec
	s.updatedQueries = append(s.updatedQueries, rec)
	return rec, nil
}

func (s *fakeStore) GetQuery(_ context.Context, id string) (storage.QueryRecord, error) {
	rec, ok := s.queries[id]
	if !ok {
		return storage.QueryRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) ListQueries(context.Context) ([]storage.QueryRecord, error) { return nil, nil }

func (s *fakeStore) ListChanges(context.Context, audit.ObjectType, string) ([]audit.ChangeRecord, error) {
	return nil, nil
}

func (s *fakeStore) GetLatestResult(_ context.Context, dataSourceID, queryText string, maxAge int) (storage.ResultRecord, error) {
	rec, ok := s.results[dataSourceID]
	if !ok || maxAge == 0 {
		return storage.ResultRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) CreateVisualization(_ context.Context, rec storage.VisualizationRecord) (string, error) {
	rec.ID = s.id()
	s.visualizations = append(s.visualizations, rec)
	return rec.ID, nil
}

func (s *fakeStore) ListVisualizationsForQuery(context.Context, string) ([]storage.VisualizationRecord, error) {
	return s.visualizations, nil
}

func (s *fakeStore) CreateAlert(_ context.Context, rec storage.AlertRecord) (string, error) {
	rec.ID = s.id()
	s.alerts[rec.ID] = rec
	return rec.ID, nil
}

func (s *fakeStore) GetAlert(_ context.Context, id string) (storage.AlertRecord, error) {
	rec, ok := s.alerts[id]
	if !ok {
		return storage.AlertRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (s *fakeStore) UpdateAlert(_ context.Context, rec storage.AlertRecord) error {
	s.alerts[rec.ID] = rec
	return nil
}

func (s *fakeStore) ListAlertsForQuery(context.Context, string) ([]storage.AlertRecord, error) {
	return nil, nil
}

func (s *fakeStore) CreateDashboard(_ context.Context, rec storage.DashboardRecord) (storage.DashboardRecord, error) {
	rec.ID = s.id()
	rec.Version = 1
	s.dashboards[rec.ID] = rec
	return rec, nil
}

func (s *fakeStore) UpdateDashboard(_ context.Context, rec storage.DashboardRecord, _ audit.Snapshot, _ string) (storage.DashboardRecord, error) {
	current, ok := s.dashboards[rec.ID]
	if !ok {
		return storage.DashboardRecord{}, storage.ErrNotFound
	}
	if current.Version != rec.Version {
		return storage.DashboardRecord{}, storage.ErrConflict
	}
	rec.Version++
	s.dashboards[rec.ID] = rec
	return rec, nil
}

func (s *fakeStore) GetDashboard(_ context.Context, id string) (storage.DashboardRecord, error) {
	rec, ok := s.dashboards[id]
	if !ok {
		return storage.DashboardRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

type fakeBus struct {
	published []string
}

func (b *fakeBus) Publish(subject string, _ any) error {
	b.published = append(b.published, subject)
	return nil
}

type noopEncryptor struct{}

func (noopEncryptor) Encrypt(plain string) (string, error)      { return plain, nil }
func (noopEncryptor) Decrypt(cipherText string) (string, error) { return cipherText, nil }

func newTestHandlers(store *fakeStore, publisher *fakeBus) *Handlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandlers(store, noopEncryptor{}, publisher, logger)
}

func doRequest(t *testing.T, h *Handlers, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func TestCreateQueryAttachesDefaultVisualizationAndPublishes(t *testing.T) {
	store := newFakeStore()
	publisher := &fakeBus{}
	h := newTestHandlers(store, publisher)

	rec := doRequest(t, h, http.MethodPost, "/api/queries", map[string]any{
		"name": "daily count", "query": "select count(*) from events",
		"data_source_id": "ds1", "user_id": "u1", "schedule": "3600",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.visualizations) != 1 || store.visualizations[0].Type != "TABLE" {
		t.Fatalf("expected default table visualization, got %+v", store.visualizations)
	}
	if len(publisher.published) != 1 || publisher.published[0] != bus.SubjectQueryCreated {
		t.Fatalf("expected query.created event, got %v", publisher.published)
	}
}

func TestCreateQueryRejectsInvalidSchedule(t *testing.T) {
	h := newTestHandlers(newFakeStore(), &fakeBus{})
	rec := doRequest(t, h, http.MethodPost, "/api/queries", map[string]any{
		"query": "select 1", "data_source_id": "ds1", "user_id": "u1", "schedule": "never",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateQueryVersionConflict(t *testing.T) {
	store := newFakeStore()
	h := newTestHandlers(store, &fakeBus{})
	created, _ := store.CreateQuery(context.Background(), storage.QueryRecord{QueryText: "select 1", DataSourceID: "ds1", UserID: "u1"})

	// Simulate a concurrent writer bumping the version after our client read it.
	bumped := store.queries[created.ID]
	bumped.Version = 2
	store.queries[created.ID] = bumped

	rec := doRequest(t, h, http.MethodPut, "/api/queries/"+created.ID, map[string]any{
		"version": 1, "query": "select 2", "user_id": "u2",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.updatedQueries) != 0 {
		t.Fatalf("conflicting update must not write, got %+v", store.updatedQueries)
	}
}

func TestArchiveClearsScheduleAndPublishes(t *testing.T) {
	store := newFakeStore()
	publisher := &fakeBus{}
	h := newTestHandlers(store, publisher)
	sched := "3600"
	created, _ := store.CreateQuery(context.Background(), storage.QueryRecord{QueryText: "select 1", DataSourceID: "ds1", UserID: "u1", Schedule: &sched})

	rec := doRequest(t, h, http.MethodPost, "/api/queries/"+created.ID+"/archive", map[string]any{"user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := store.queries[created.ID]
	if !updated.IsArchived || updated.Schedule != nil {
		t.Fatalf("expected archived query with cleared schedule, got %+v", updated)
	}
	if len(publisher.published) != 1 || publisher.published[0] != bus.SubjectQueryArchived {
		t.Fatalf("expected query.archived event, got %v", publisher.published)
	}
}

func TestLatestResultRejectsBadMaxAge(t *testing.T) {
	store := newFakeStore()
	h := newTestHandlers(store, &fakeBus{})
	created, _ := store.CreateQuery(context.Background(), storage.QueryRecord{QueryText: "select 1", DataSourceID: "ds1", UserID: "u1"})

	rec := doRequest(t, h, http.MethodGet, "/api/queries/"+created.ID+"/results/latest?max_age=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLatestResultMissIs404(t *testing.T) {
	store := newFakeStore()
	h := newTestHandlers(store, &fakeBus{})
	created, _ := store.CreateQuery(context.Background(), storage.QueryRecord{QueryText: "select 1", DataSourceID: "ds1", UserID: "u1"})

	rec := doRequest(t, h, http.MethodGet, "/api/queries/"+created.ID+"/results/latest", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on miss, got %d", rec.Code)
	}
}

func TestCreateAlertRejectsUnknownOperator(t *testing.T) {
	store := newFakeStore()
	h := newTestHandlers(store, &fakeBus{})
	created, _ := store.CreateQuery(context.Background(), storage.QueryRecord{QueryText: "select 1", DataSourceID: "ds1", UserID: "u1"})

	rec := doRequest(t, h, http.MethodPost, "/api/alerts", map[string]any{
		"query_id": created.ID, "user_id": "u1", "column": "count", "op": "at least", "value": "10",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown operator, got %d", rec.Code)
	}
}

func TestDashboardUpdateConflict(t *testing.T) {
	store := newFakeStore()
	h := newTestHandlers(store, &fakeBus{})
	created, _ := store.CreateDashboard(context.Background(), storage.DashboardRecord{Name: "ops", UserID: "u1"})

	rec := doRequest(t, h, http.MethodPut, "/api/dashboards/"+created.ID, map[string]any{
		"version": 5, "name": "ops v2", "user_id": "u1",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

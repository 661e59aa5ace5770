package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"statboard-backend/internal/audit"
	"statboard-backend/internal/bus"
	"statboard-backend/internal/crypto"
	"statboard-backend/internal/schedule"
	"statboard-backend/internal/storage"
)

// Store is the repository surface the HTTP layer uses. *storage.Repository
// satisfies it.
type Store interface {
	CreateDataSource(ctx context.Context, ds storage.DataSourceRecord) (string, error)
	GetDataSource(ctx context.Context, id string) (storage.DataSourceRecord, error)
	ListDataSources(ctx context.Context) ([]storage.DataSourceRecord, error)
	CreateQuery(ctx context.Context, rec storage.QueryRecord) (storage.QueryRecord, error)
	UpdateQuery(ctx context.Context, rec storage.QueryRecord, snap audit.Snapshot, userID string) (storage.QueryRecord, error)
	GetQuery(ctx context.Context, id string) (storage.QueryRecord, error)
	ListQueries(ctx context.Context) ([]storage.QueryRecord, error)
	ListChanges(ctx context.Context, objectType audit.ObjectType, objectID string) ([]audit.ChangeRecord, error)
	GetLatestResult(ctx context.Context, dataSourceID, queryText string, maxAge int) (storage.ResultRecord, error)
	CreateVisualization(ctx context.Context, rec storage.VisualizationRecord) (string, error)
	ListVisualizationsForQuery(ctx context.Context, queryID string) ([]storage.VisualizationRecord, error)
	CreateAlert(ctx context.Context, rec storage.AlertRecord) (string, error)
	GetAlert(ctx context.Context, id string) (storage.AlertRecord, error)
	UpdateAlert(ctx context.Context, rec storage.AlertRecord) error
	ListAlertsForQuery(ctx context.Context, queryID string) ([]storage.AlertRecord, error)
	CreateDashboard(ctx context.Context, rec storage.DashboardRecord) (storage.DashboardRecord, error)
	UpdateDashboard(ctx context.Context, rec storage.DashboardRecord, snap audit.Snapshot, userID string) (storage.DashboardRecord, error)
	GetDashboard(ctx context.Context, id string) (storage.DashboardRecord, error)
}

type eventPublisher interface {
	Publish(subject string, payload any) error
}

type Handlers struct {
	Store     Store
	Encryptor crypto.Encryptor
	Bus       eventPublisher
	Logger    *slog.Logger
}

func NewHandlers(store Store, encryptor crypto.Encryptor, publisher eventPublisher, logger *slog.Logger) *Handlers {
	return &Handlers{Store: store, Encryptor: encryptor, Bus: publisher, Logger: logger}
}

func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/data_sources", h.createDataSource)
		r.Get("/data_sources", h.listDataSources)

		r.Post("/queries", h.createQuery)
		r.Get("/queries", h.listQueries)
		r.Route("/queries/{id}", func(r chi.Router) {
			r.Get("/", h.getQuery)
			r.Put("/", h.updateQuery)
			r.Post("/archive", h.archiveQuery)
			r.Get("/changes", h.listQueryChanges)
			r.Get("/results/latest", h.latestQueryResult)
			r.Post("/visualizations", h.createVisualization)
			r.Get("/visualizations", h.listVisualizations)
			r.Get("/alerts", h.listQueryAlerts)
		})

		r.Post("/alerts", h.createAlert)
		r.Get("/alerts/{id}", h.getAlert)
		r.Put("/alerts/{id}", h.updateAlert)

		r.Post("/dashboards", h.createDashboard)
		r.Get("/dashboards/{id}", h.getDashboard)
		r.Put("/dashboards/{id}", h.updateDashboard)
	})
	return r
}

type dataSourceRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type dataSourceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	User      string    `json:"user"`
	Database  string    `json:"database"`
	SSLMode   string    `json:"ssl_mode"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handlers) createDataSource(w http.ResponseWriter, r *http.Request) {
	var req dataSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "name and type are required")
		return
	}
	encrypted, err := h.Encryptor.Encrypt(req.Password)
	if err != nil {
		h.Logger.Error("failed to encrypt password", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store data source")
		return
	}
	id, err := h.Store.CreateDataSource(r.Context(), storage.DataSourceRecord{
		Name: req.Name, Type: req.Type, Host: req.Host, Port: req.Port,
		User: req.User, PasswordEnc: encrypted, Database: req.Database, SSLMode: req.SSLMode,
	})
	if err != nil {
		h.Logger.Error("failed to create data source", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to store data source")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) listDataSources(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListDataSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list data sources")
		return
	}
	out := make([]dataSourceResponse, 0, len(records))
	for _, ds := range records {
		out = append(out, dataSourceResponse{
			ID: ds.ID, Name: ds.Name, Type: ds.Type, Host: ds.Host, Port: ds.Port,
			User: ds.User, Database: ds.Database, SSLMode: ds.SSLMode, CreatedAt: ds.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type queryRequest struct {
	Version      int     `json:"version"`
	DataSourceID string  `json:"data_source_id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Query        string  `json:"query"`
	Schedule     *string `json:"schedule"`
	IsDraft      bool    `json:"is_draft"`
	UserID       string  `json:"user_id"`
}

type queryResponse struct {
	ID                string    `json:"id"`
	Version           int       `json:"version"`
	DataSourceID      string    `json:"data_source_id"`
	LatestQueryDataID *string   `json:"latest_query_data_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Query             string    `json:"query"`
	QueryHash         string    `json:"query_hash"`
	Schedule          *string   `json:"schedule"`
	IsArchived        bool      `json:"is_archived"`
	IsDraft           bool      `json:"is_draft"`
	UserID            string    `json:"user_id"`
	LastModifiedByID  *string   `json:"last_modified_by_id"`
	LastError         *string   `json:"last_error"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toQueryResponse(rec storage.QueryRecord) queryResponse {
	return queryResponse{
		ID: rec.ID, Version: rec.Version, DataSourceID: rec.DataSourceID,
		LatestQueryDataID: rec.LatestQueryDataID, Name: rec.Name, Description: rec.Description,
		Query: rec.QueryText, QueryHash: rec.QueryHash, Schedule: rec.Schedule,
		IsArchived: rec.IsArchived, IsDraft: rec.IsDraft, UserID: rec.UserID,
		LastModifiedByID: rec.LastModifiedByID, LastError: rec.LastError,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}
}

// createQuery inserts the query at version 1, attaches the default table
// visualization and announces the creation on the bus.
func (h *Handlers) createQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" || req.DataSourceID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "query, data_source_id and user_id are required")
		return
	}
	if req.Schedule != nil {
		if err := schedule.Validate(*req.Schedule); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rec, err := h.Store.CreateQuery(r.Context(), storage.QueryRecord{
		DataSourceID: req.DataSourceID, Name: req.Name, Description: req.Description,
		QueryText: req.Query, Schedule: req.Schedule, IsDraft: req.IsDraft, UserID: req.UserID,
	})
	if err != nil {
		h.Logger.Error("failed to create query", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create query")
		return
	}
	_, err = h.Store.CreateVisualization(r.Context(), storage.VisualizationRecord{
		QueryID: rec.ID, Name: "Table", Type: "TABLE", Options: "{}",
	})
	if err != nil {
		h.Logger.Error("failed to create default visualization", slog.String("query_id", rec.ID), slog.String("error", err.Error()))
	}
	h.publish(bus.SubjectQueryCreated, bus.QueryEvent{QueryID: rec.ID})
	writeJSON(w, http.StatusCreated, toQueryResponse(rec))
}

func (h *Handlers) listQueries(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListQueries(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list queries")
		return
	}
	out := make([]queryResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toQueryResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getQuery(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetQuery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	writeJSON(w, http.StatusOK, toQueryResponse(rec))
}

// updateQuery is the versioned mutation path. The client echoes the version it
// loaded; a mismatch against the stored row means someone else won the race
// and the request gets a conflict instead of silently overwriting.
func (h *Handlers) updateQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Schedule != nil {
		if err := schedule.Validate(*req.Schedule); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	rec, err := h.Store.GetQuery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if req.Version != rec.Version {
		writeError(w, http.StatusConflict, "version mismatch")
		return
	}
	snap := audit.Capture(&rec)
	rec.Name = req.Name
	rec.Description = req.Description
	rec.QueryText = req.Query
	rec.Schedule = req.Schedule
	rec.IsDraft = req.IsDraft
	if req.DataSourceID != "" {
		rec.DataSourceID = req.DataSourceID
	}
	updated, err := h.Store.UpdateQuery(r.Context(), rec, snap, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeError(w, http.StatusConflict, "version mismatch")
			return
		}
		h.Logger.Error("failed to update query", slog.String("query_id", rec.ID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to update query")
		return
	}
	h.publish(bus.SubjectQueryUpdated, bus.QueryEvent{QueryID: updated.ID})
	writeJSON(w, http.StatusOK, toQueryResponse(updated))
}

// archiveQuery marks the query archived and clears its schedule so the
// scheduler stops considering it. Goes through the tracked update path, so
// the archive lands in the change log.
func (h *Handlers) archiveQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	rec, err := h.Store.GetQuery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	snap := audit.Capture(&rec)
	rec.IsArchived = true
	rec.Schedule = nil
	updated, err := h.Store.UpdateQuery(r.Context(), rec, snap, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeError(w, http.StatusConflict, "version mismatch")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to archive query")
		return
	}
	h.publish(bus.SubjectQueryArchived, bus.QueryEvent{QueryID: updated.ID})
	writeJSON(w, http.StatusOK, toQueryResponse(updated))
}

func (h *Handlers) listQueryChanges(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListChanges(r.Context(), audit.ObjectTypeQuery, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list changes")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type resultResponse struct {
	ID          string          `json:"id"`
	QueryHash   string          `json:"query_hash"`
	Data        json.RawMessage `json:"data"`
	Runtime     float64         `json:"runtime"`
	RetrievedAt time.Time       `json:"retrieved_at"`
}

// latestQueryResult serves the freshest stored result for the query's current
// text. max_age caps acceptable staleness in seconds; -1 (the default)
// accepts any age. A miss is 404 and the client decides whether to wait for
// the next scheduled run.
func (h *Handlers) latestQueryResult(w http.ResponseWriter, r *http.Request) {
	maxAge := -1
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < -1 {
			writeError(w, http.StatusBadRequest, "max_age must be -1 or a non-negative integer")
			return
		}
		maxAge = parsed
	}
	rec, err := h.Store.GetQuery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	result, err := h.Store.GetLatestResult(r.Context(), rec.DataSourceID, rec.QueryText, maxAge)
	if err != nil {
		writeError(w, http.StatusNotFound, "no result fresh enough")
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		ID: result.ID, QueryHash: result.QueryHash, Data: result.Data,
		Runtime: result.Runtime, RetrievedAt: result.RetrievedAt,
	})
}

type visualizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Options     string `json:"options"`
}

func (h *Handlers) createVisualization(w http.ResponseWriter, r *http.Request) {
	var req visualizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	queryID := chi.URLParam(r, "id")
	if _, err := h.Store.GetQuery(r.Context(), queryID); err != nil {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	if req.Options == "" {
		req.Options = "{}"
	}
	id, err := h.Store.CreateVisualization(r.Context(), storage.VisualizationRecord{
		QueryID: queryID, Name: req.Name, Description: req.Description, Type: req.Type, Options: req.Options,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create visualization")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) listVisualizations(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListVisualizationsForQuery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list visualizations")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type alertRequest struct {
	QueryID string `json:"query_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Column  string `json:"column"`
	Op      string `json:"op"`
	Value   string `json:"value"`
	Rearm   int    `json:"rearm"`
}

type alertResponse struct {
	ID              string     `json:"id"`
	QueryID         string     `json:"query_id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	Column          string     `json:"column"`
	Op              string     `json:"op"`
	Value           string     `json:"value"`
	Rearm           int        `json:"rearm"`
	State           string     `json:"state"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toAlertResponse(rec storage.AlertRecord) alertResponse {
	return alertResponse{
		ID: rec.ID, QueryID: rec.QueryID, UserID: rec.UserID, Name: rec.Name,
		Column: rec.Column, Op: rec.Op, Value: rec.Value, Rearm: rec.Rearm,
		State: rec.State, LastTriggeredAt: rec.LastTriggeredAt,
		CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}
}

func validAlertOp(op string) bool {
	switch op {
	case "greater than", "less than", "equals":
		return true
	}
	return false
}

func (h *Handlers) createAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.QueryID == "" || req.Column == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "query_id, column and user_id are required")
		return
	}
	if !validAlertOp(req.Op) {
		writeError(w, http.StatusBadRequest, "op must be one of: greater than, less than, equals")
		return
	}
	if req.Rearm < 0 {
		writeError(w, http.StatusBadRequest, "rearm must be non-negative")
		return
	}
	if _, err := h.Store.GetQuery(r.Context(), req.QueryID); err != nil {
		writeError(w, http.StatusNotFound, "query not found")
		return
	}
	id, err := h.Store.CreateAlert(r.Context(), storage.AlertRecord{
		QueryID: req.QueryID, UserID: req.UserID, Name: req.Name,
		Column: req.Column, Op: req.Op, Value: req.Value, Rearm: req.Rearm,
		State: "unknown",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create alert")
		return
	}
	h.publish(bus.SubjectAlertCreated, bus.AlertEvent{AlertID: id, QueryID: req.QueryID})
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handlers) getAlert(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, toAlertResponse(rec))
}

func (h *Handlers) updateAlert(w http.ResponseWriter, r *http.Request) {
	var req alertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validAlertOp(req.Op) {
		writeError(w, http.StatusBadRequest, "op must be one of: greater than, less than, equals")
		return
	}
	rec, err := h.Store.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	rec.Name = req.Name
	rec.Column = req.Column
	rec.Op = req.Op
	rec.Value = req.Value
	rec.Rearm = req.Rearm
	if err := h.Store.UpdateAlert(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	h.publish(bus.SubjectAlertUpdated, bus.AlertEvent{AlertID: rec.ID, QueryID: rec.QueryID})
	writeJSON(w, http.StatusOK, toAlertResponse(rec))
}

func (h *Handlers) listQueryAlerts(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.ListAlertsForQuery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	out := make([]alertResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toAlertResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

type dashboardRequest struct {
	Version    int             `json:"version"`
	Name       string          `json:"name"`
	Layout     json.RawMessage `json:"layout"`
	IsArchived bool            `json:"is_archived"`
	UserID     string          `json:"user_id"`
}

type dashboardResponse struct {
	ID         string          `json:"id"`
	Version    int             `json:"version"`
	Name       string          `json:"name"`
	Layout     json.RawMessage `json:"layout"`
	UserID     string          `json:"user_id"`
	IsArchived bool            `json:"is_archived"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func toDashboardResponse(rec storage.DashboardRecord) dashboardResponse {
	return dashboardResponse{
		ID: rec.ID, Version: rec.Version, Name: rec.Name, Layout: rec.Layout,
		UserID: rec.UserID, IsArchived: rec.IsArchived, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
	}
}

func (h *Handlers) createDashboard(w http.ResponseWriter, r *http.Request) {
	var req dashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "name and user_id are required")
		return
	}
	rec, err := h.Store.CreateDashboard(r.Context(), storage.DashboardRecord{
		Name: req.Name, Layout: req.Layout, UserID: req.UserID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create dashboard")
		return
	}
	writeJSON(w, http.StatusCreated, toDashboardResponse(rec))
}

func (h *Handlers) getDashboard(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetDashboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "dashboard not found")
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(rec))
}

func (h *Handlers) updateDashboard(w http.ResponseWriter, r *http.Request) {
	var req dashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	rec, err := h.Store.GetDashboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "dashboard not found")
		return
	}
	if req.Version != rec.Version {
		writeError(w, http.StatusConflict, "version mismatch")
		return
	}
	snap := audit.Capture(&rec)
	rec.Name = req.Name
	if req.Layout != nil {
		rec.Layout = req.Layout
	}
	rec.IsArchived = req.IsArchived
	updated, err := h.Store.UpdateDashboard(r.Context(), rec, snap, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			writeError(w, http.StatusConflict, "version mismatch")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update dashboard")
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(updated))
}

func (h *Handlers) publish(subject string, payload any) {
	if h.Bus == nil {
		return
	}
	if err := h.Bus.Publish(subject, payload); err != nil {
		h.Logger.Warn("failed to publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

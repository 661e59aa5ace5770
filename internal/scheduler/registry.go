package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	queryrunner "statboard-backend"
	"statboard-backend/internal/alerts"
	"statboard-backend/internal/config"
	"statboard-backend/internal/notify"
	"statboard-backend/internal/schedule"
	"statboard-backend/internal/storage"
)

// Repository is the slice of the storage layer the scheduler needs.
// *storage.Repository satisfies it.
type Repository interface {
	ListScheduledQueries(ctx context.Context) ([]storage.ScheduledQuery, error)
	GetDataSource(ctx context.Context, id string) (storage.DataSourceRecord, error)
	GetQuery(ctx context.Context, id string) (storage.QueryRecord, error)
	StoreResult(ctx context.Context, rec storage.ResultRecord) (string, []string, error)
	SetQueryError(ctx context.Context, id string, message *string) error
	ListAlertsForQuery(ctx context.Context, queryID string) ([]storage.AlertRecord, error)
	UpdateAlertState(ctx context.Context, id, state string, firedAt *time.Time) error
}

// RunnerFactory builds an execution runner for one data source.
type RunnerFactory func(cfg queryrunner.ConnectionConfig) (queryrunner.QueryRunner, error)

// Decryptor recovers a data-source password stored encrypted at rest.
type Decryptor func(cipherText string) (string, error)

type Job struct {
	QueryID      string
	DataSourceID string
	QueryText    string
	QueryHash    string
}

type JobInfo struct {
	QueryID      string `json:"queryId"`
	QueryHash    string `json:"queryHash"`
	DataSourceID string `json:"dataSourceId"`
}

// Registry drives query freshness: a poll loop asks the staleness evaluator
// about every schedule-bearing query, dedups the due set by
// query_hash:data_source_id and hands jobs to a worker pool. Workers execute,
// store + fan out the result, and evaluate alerts for every query the fan-out
// touched.
type Registry struct {
	mu         sync.Mutex
	inFlight   map[string]Job
	alertLocks map[string]*sync.Mutex
	queue      chan Job
	repo       Repository
	runners    RunnerFactory
	decrypt    Decryptor
	notifier   notify.Notifier
	cfg        config.WorkerConfig
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	poke       chan struct{}
}

func NewRegistry(repo Repository, runners RunnerFactory, decrypt Decryptor, notifier notify.Notifier, cfg config.WorkerConfig, logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	reg := &Registry{
		inFlight:   map[string]Job{},
		alertLocks: map[string]*sync.Mutex{},
		queue:      make(chan Job, cfg.QueueSize),
		repo:       repo,
		runners:    runners,
		decrypt:    decrypt,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		poke:       make(chan struct{}, 1),
	}
	for i := 0; i < cfg.Workers; i++ {
		reg.wg.Add(1)
		go reg.worker()
	}
	return reg
}

func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()
}

// Run blocks in the poll loop until ctx or the registry is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval())
	defer ticker.Stop()
	r.PollOnce(ctx)
	for {
		select {
		case <-ticker.C:
			r.PollOnce(ctx)
		case <-r.poke:
			r.PollOnce(ctx)
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// Poke requests an immediate poll, e.g. after a query.created event.
func (r *Registry) Poke() {
	select {
	case r.poke <- struct{}{}:
	default:
	}
}

func (r *Registry) ListJobs() []JobInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]JobInfo, 0, len(r.inFlight))
	for _, job := range r.inFlight {
		jobs = append(jobs, JobInfo{QueryID: job.QueryID, QueryHash: job.QueryHash, DataSourceID: job.DataSourceID})
	}
	return jobs
}

// PollOnce computes the due set and enqueues one job per
// query_hash:data_source_id pair: siblings sharing a computation ride on a
// single execution and receive the result through the fan-out.
func (r *Registry) PollOnce(ctx context.Context) {
	scheduled, err := r.repo.ListScheduledQueries(ctx)
	if err != nil {
		r.logger.Error("failed to list scheduled queries", slog.String("error", err.Error()))
		return
	}
	now := time.Now().UTC()
	due := map[string]Job{}
	for _, sq := range scheduled {
		isDue := true
		if sq.RetrievedAt != nil {
			isDue, err = schedule.ShouldScheduleNext(sq.RetrievedAt.UTC(), now, sq.Schedule)
			if err != nil {
				msg := err.Error()
				_ = r.repo.SetQueryError(ctx, sq.ID, &msg)
				r.logger.Warn("invalid schedule", slog.String("query_id", sq.ID), slog.String("error", msg))
				continue
			}
		}
		if !isDue {
			continue
		}
		key := sq.QueryHash + ":" + sq.DataSourceID
		due[key] = Job{QueryID: sq.ID, DataSourceID: sq.DataSourceID, QueryText: sq.QueryText, QueryHash: sq.QueryHash}
	}
	for key, job := range due {
		r.enqueue(key, job)
	}
}

func (r *Registry) enqueue(key string, job Job) {
	r.mu.Lock()
	if _, running := r.inFlight[key]; running {
		r.mu.Unlock()
		return
	}
	r.inFlight[key] = job
	r.mu.Unlock()
	select {
	case r.queue <- job:
	default:
		// Queue full: drop and let the next poll retry.
		r.mu.Lock()
		delete(r.inFlight, key)
		r.mu.Unlock()
		r.logger.Warn("execution queue full", slog.String("query_id", job.QueryID))
	}
}

func (r *Registry) worker() {
	defer r.wg.Done()
	for {
		select {
		case job := <-r.queue:
			r.execute(job)
			r.mu.Lock()
			delete(r.inFlight, job.QueryHash+":"+job.DataSourceID)
			r.mu.Unlock()
		case <-r.ctx.Done():
			return
		}
	}
}

// execute runs one due query end to end. Failures are isolated to the job:
// they surface on the owning query and never abort the batch.
func (r *Registry) execute(job Job) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.JobTimeout())
	defer cancel()

	outcome, err := r.runQuery(ctx, job)
	if err != nil {
		msg := err.Error()
		_ = r.repo.SetQueryError(ctx, job.QueryID, &msg)
		r.logger.Error("query execution failed", slog.String("query_id", job.QueryID), slog.String("error", msg))
		return
	}

	payload, err := json.Marshal(outcome.Data)
	if err != nil {
		r.logger.Error("failed to encode result payload", slog.String("query_id", job.QueryID), slog.String("error", err.Error()))
		return
	}
	_, queryIDs, err := r.repo.StoreResult(ctx, storage.ResultRecord{
		DataSourceID: job.DataSourceID,
		QueryHash:    job.QueryHash,
		QueryText:    job.QueryText,
		Data:         payload,
		Runtime:      outcome.Runtime,
		RetrievedAt:  outcome.RetrievedAt,
	})
	if err != nil {
		r.logger.Error("failed to store result", slog.String("query_id", job.QueryID), slog.String("error", err.Error()))
		return
	}
	_ = r.repo.SetQueryError(ctx, job.QueryID, nil)

	for _, queryID := range queryIDs {
		r.evaluateAlertsForQuery(ctx, queryID, outcome.Data)
	}
}

func (r *Registry) runQuery(ctx context.Context, job Job) (*queryrunner.QueryOutcome, error) {
	ds, err := r.repo.GetDataSource(ctx, job.DataSourceID)
	if err != nil {
		return nil, fmt.Errorf("load data source: %w", err)
	}
	password, err := r.decrypt(ds.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt data source password: %w", err)
	}
	runner, err := r.runners(queryrunner.ConnectionConfig{
		Type:     ds.Type,
		Host:     ds.Host,
		Port:     ds.Port,
		User:     ds.User,
		Password: password,
		Database: ds.Database,
		SSLMode:  ds.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("build runner: %w", err)
	}
	defer runner.Close()
	return runner.RunQuery(ctx, job.QueryText)
}

func (r *Registry) evaluateAlertsForQuery(ctx context.Context, queryID string, data queryrunner.ResultData) {
	query, err := r.repo.GetQuery(ctx, queryID)
	if err != nil {
		r.logger.Error("failed to load query for alert evaluation", slog.String("query_id", queryID), slog.String("error", err.Error()))
		return
	}
	alertRecords, err := r.repo.ListAlertsForQuery(ctx, queryID)
	if err != nil {
		r.logger.Error("failed to list alerts", slog.String("query_id", queryID), slog.String("error", err.Error()))
		return
	}
	for _, rec := range alertRecords {
		r.evaluateAlert(ctx, rec, query, data)
	}
}

// evaluateAlert serializes per alert so concurrent fan-outs never race on
// state or last_triggered_at for the same alert.
func (r *Registry) evaluateAlert(ctx context.Context, rec storage.AlertRecord, query storage.QueryRecord, data queryrunner.ResultData) {
	lock := r.lockFor(rec.ID)
	lock.Lock()
	defer lock.Unlock()

	newState, err := alerts.Evaluate(data, rec.Column, rec.Op, rec.Value)
	if err != nil {
		if errors.Is(err, alerts.ErrNoData) || errors.Is(err, alerts.ErrInvalidOperator) {
			// State is retained; this evaluation cycle is lost, not the alert.
			r.logger.Warn("alert evaluation skipped", slog.String("alert_id", rec.ID), slog.String("error", err.Error()))
			return
		}
		r.logger.Error("alert evaluation failed", slog.String("alert_id", rec.ID), slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	fire := alerts.ShouldNotify(alerts.State(rec.State), newState, rec.Rearm, rec.LastTriggeredAt, now)
	var firedAt *time.Time
	if fire {
		firedAt = &now
	}
	if err := r.repo.UpdateAlertState(ctx, rec.ID, string(newState), firedAt); err != nil {
		r.logger.Error("failed to update alert state", slog.String("alert_id", rec.ID), slog.String("error", err.Error()))
		return
	}
	if fire {
		err := r.notifier.Notify(ctx, notify.Notification{
			AlertID:    rec.ID,
			AlertName:  rec.Name,
			QueryID:    query.ID,
			QueryName:  query.Name,
			UserID:     rec.UserID,
			State:      string(newState),
			ObservedAt: now,
		})
		if err != nil {
			r.logger.Error("failed to publish notification", slog.String("alert_id", rec.ID), slog.String("error", err.Error()))
		}
	}
}

func (r *Registry) lockFor(alertID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.alertLocks[alertID]
	if !ok {
		lock = &sync.Mutex{}
		r.alertLocks[alertID] = lock
	}
	return lock
}

package storage

import (
	"context"

	"github.com/google/uuid"

	"statboard-backend/internal/audit"
)

func (r *Repository) CreateDashboard(ctx context.Context, rec DashboardRecord) (DashboardRecord, error) {
	rec.ID = uuid.NewString()
	rec.Version = 1
	if len(rec.Layout) == 0 {
		rec.Layout = []byte("[]")
	}

	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return DashboardRecord{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO dashboards (id, version, name, layout, user_id, is_archived, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())`,
		rec.ID, rec.Version, rec.Name, rec.Layout, rec.UserID, rec.IsArchived,
	)
	if err != nil {
		return DashboardRecord{}, err
	}
	change := audit.CreationSnapshot(&rec).Diff(&rec)
	if err := insertChange(ctx, tx, audit.ObjectTypeDashboard, rec.ID, rec.Version, rec.UserID, change); err != nil {
		return DashboardRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return DashboardRecord{}, err
	}
	return rec, nil
}

// UpdateDashboard is the dashboard side of the tracked mutation path; same
// optimistic-concurrency contract as UpdateQuery.
func (r *Repository) UpdateDashboard(ctx context.Context, rec DashboardRecord, snap audit.Snapshot, userID string) (DashboardRecord, error) {
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return DashboardRecord{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE dashboards
		SET name=$1, layout=$2, is_archived=$3, version=version+1, updated_at=now()
		WHERE id=$4 AND version=$5`,
		rec.Name, rec.Layout, rec.IsArchived, rec.ID, rec.Version,
	)
	if err != nil {
		return DashboardRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return DashboardRecord{}, ErrConflict
	}
	rec.Version++
	change := snap.Diff(&rec)
	if err := insertChange(ctx, tx, audit.ObjectTypeDashboard, rec.ID, rec.Version, userID, change); err != nil {
		return DashboardRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return DashboardRecord{}, err
	}
	return rec, nil
}

func (r *Repository) GetDashboard(ctx context.Context, id string) (DashboardRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, version, name, layout, user_id, is_archived, created_at, updated_at
		FROM dashboards WHERE id=$1`, id)
	var rec DashboardRecord
	if err := row.Scan(&rec.ID, &rec.Version, &rec.Name, &rec.Layout, &rec.UserID, &rec.IsArchived, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return DashboardRecord{}, ErrNotFound
	}
	return rec, nil
}

package storage

import (
	"context"

	"github.com/google/uuid"

	"statboard-backend/internal/audit"
	"statboard-backend/internal/queryhash"
)

const queryColumns = `id, version, data_source_id, latest_query_data_id, name, description, query, query_hash,
		schedule, is_archived, is_draft, user_id, last_modified_by_id, last_error, created_at, updated_at`

// CreateQuery inserts a new query at version 1 and appends the creation
// change record (all tracked fields diffed against nil) in one transaction.
func (r *Repository) CreateQuery(ctx context.Context, rec QueryRecord) (QueryRecord, error) {
	rec.ID = uuid.NewString()
	rec.Version = 1
	rec.QueryHash = queryhash.Hash(rec.QueryText)
	if rec.LastModifiedByID == nil {
		userID := rec.UserID
		rec.LastModifiedByID = &userID
	}

	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return QueryRecord{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO queries (id, version, data_source_id, latest_query_data_id, name, description, query, query_hash,
			schedule, is_archived, is_draft, user_id, last_modified_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())`,
		rec.ID, rec.Version, rec.DataSourceID, rec.LatestQueryDataID, rec.Name, rec.Description, rec.QueryText, rec.QueryHash,
		rec.Schedule, rec.IsArchived, rec.IsDraft, rec.UserID, rec.LastModifiedByID,
	)
	if err != nil {
		return QueryRecord{}, err
	}
	change := audit.CreationSnapshot(&rec).Diff(&rec)
	if err := insertChange(ctx, tx, audit.ObjectTypeQuery, rec.ID, rec.Version, rec.UserID, change); err != nil {
		return QueryRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return QueryRecord{}, err
	}
	return rec, nil
}

// UpdateQuery commits a tracked mutation under optimistic concurrency: the
// row is updated only if its version still equals rec.Version as loaded by
// the caller. A lost race returns ErrConflict and writes nothing. snap must
// have been captured from the record before the caller mutated it.
func (r *Repository) UpdateQuery(ctx context.Context, rec QueryRecord, snap audit.Snapshot, userID string) (QueryRecord, error) {
	rec.QueryHash = queryhash.Hash(rec.QueryText)
	rec.LastModifiedByID = &userID

	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return QueryRecord{}, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE queries
		SET data_source_id=$1, name=$2, description=$3, query=$4, query_hash=$5, schedule=$6,
			is_archived=$7, is_draft=$8, last_modified_by_id=$9, version=version+1, updated_at=now()
		WHERE id=$10 AND version=$11`,
		rec.DataSourceID, rec.Name, rec.Description, rec.QueryText, rec.QueryHash, rec.Schedule,
		rec.IsArchived, rec.IsDraft, rec.LastModifiedByID, rec.ID, rec.Version,
	)
	if err != nil {
		return QueryRecord{}, err
	}
	if tag.RowsAffected() == 0 {
		return QueryRecord{}, ErrConflict
	}
	rec.Version++
	change := snap.Diff(&rec)
	if err := insertChange(ctx, tx, audit.ObjectTypeQuery, rec.ID, rec.Version, userID, change); err != nil {
		return QueryRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return QueryRecord{}, err
	}
	return rec, nil
}

func (r *Repository) GetQuery(ctx context.Context, id string) (QueryRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+queryColumns+` FROM queries WHERE id=$1`, id)
	var rec QueryRecord
	if err := row.Scan(&rec.ID, &rec.Version, &rec.DataSourceID, &rec.LatestQueryDataID, &rec.Name, &rec.Description,
		&rec.QueryText, &rec.QueryHash, &rec.Schedule, &rec.IsArchived, &rec.IsDraft, &rec.UserID,
		&rec.LastModifiedByID, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return QueryRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListQueries(ctx context.Context) ([]QueryRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+queryColumns+` FROM queries WHERE is_archived = false ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []QueryRecord{}
	for rows.Next() {
		var rec QueryRecord
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.DataSourceID, &rec.LatestQueryDataID, &rec.Name, &rec.Description,
			&rec.QueryText, &rec.QueryHash, &rec.Schedule, &rec.IsArchived, &rec.IsDraft, &rec.UserID,
			&rec.LastModifiedByID, &rec.LastError, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

// ListScheduledQueries returns every unarchived schedule-bearing query with
// the retrieval time of its latest result, if any.
func (r *Repository) ListScheduledQueries(ctx context.Context) ([]ScheduledQuery, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT q.id, q.data_source_id, q.query, q.query_hash, q.schedule, qr.retrieved_at
		FROM queries q
		LEFT JOIN query_results qr ON qr.id = q.latest_query_data_id
		WHERE q.schedule IS NOT NULL AND q.is_archived = false AND q.is_draft = false`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ScheduledQuery{}
	for rows.Next() {
		var sq ScheduledQuery
		if err := rows.Scan(&sq.ID, &sq.DataSourceID, &sq.QueryText, &sq.QueryHash, &sq.Schedule, &sq.RetrievedAt); err != nil {
			return nil, err
		}
		results = append(results, sq)
	}
	return results, nil
}

// SetQueryError surfaces a scheduling or execution failure on the owning
// query. Status fields are not tracked; no change record is written.
func (r *Repository) SetQueryError(ctx context.Context, id string, message *string) error {
	_, err := r.Store.Pool.Exec(ctx, `UPDATE queries SET last_error=$1, updated_at=now() WHERE id=$2`, message, id)
	return err
}

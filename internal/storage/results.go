package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"statboard-backend/internal/queryhash"
)

// GetLatestResult returns the most recent stored result answering queryText
// against the data source. maxAge -1 accepts any age; otherwise only results
// with retrieved_at + maxAge seconds still in the future qualify. A miss is
// ErrNotFound; the caller must execute.
func (r *Repository) GetLatestResult(ctx context.Context, dataSourceID, queryText string, maxAge int) (ResultRecord, error) {
	hash := queryhash.Hash(queryText)
	var row interface{ Scan(dest ...any) error }
	if maxAge == -1 {
		row = r.Store.Pool.QueryRow(ctx, `
			SELECT id, data_source_id, query_hash, query, data, runtime, retrieved_at
			FROM query_results
			WHERE query_hash=$1 AND data_source_id=$2
			ORDER BY retrieved_at DESC LIMIT 1`, hash, dataSourceID)
	} else {
		row = r.Store.Pool.QueryRow(ctx, `
			SELECT id, data_source_id, query_hash, query, data, runtime, retrieved_at
			FROM query_results
			WHERE query_hash=$1 AND data_source_id=$2
				AND retrieved_at + make_interval(secs => $3) >= now()
			ORDER BY retrieved_at DESC LIMIT 1`, hash, dataSourceID, maxAge)
	}
	var rec ResultRecord
	if err := row.Scan(&rec.ID, &rec.DataSourceID, &rec.QueryHash, &rec.QueryText, &rec.Data, &rec.Runtime, &rec.RetrievedAt); err != nil {
		return ResultRecord{}, ErrNotFound
	}
	return rec, nil
}

// StoreResult persists one execution result and fans it out: every query
// sharing (query_hash, data_source_id) has latest_query_data_id advanced to
// the new result, in the same transaction as the insert. The monotonicity
// guard skips queries whose current latest result is already newer, so a
// slow-finishing execution can never regress a sibling's pointer. Returns the
// new result id and the ids of every query updated.
func (r *Repository) StoreResult(ctx context.Context, rec ResultRecord) (string, []string, error) {
	rec.ID = uuid.NewString()
	if rec.QueryHash == "" {
		rec.QueryHash = queryhash.Hash(rec.QueryText)
	}

	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return "", nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO query_results (id, data_source_id, query_hash, query, data, runtime, retrieved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.DataSourceID, rec.QueryHash, rec.QueryText, rec.Data, rec.Runtime, rec.RetrievedAt,
	)
	if err != nil {
		return "", nil, err
	}

	rows, err := tx.Query(ctx, `
		UPDATE queries q
		SET latest_query_data_id=$1, updated_at=now()
		WHERE q.query_hash=$2 AND q.data_source_id=$3
			AND (q.latest_query_data_id IS NULL OR
				(SELECT qr.retrieved_at FROM query_results qr WHERE qr.id = q.latest_query_data_id) <= $4)
		RETURNING q.id`,
		rec.ID, rec.QueryHash, rec.DataSourceID, rec.RetrievedAt,
	)
	if err != nil {
		return "", nil, err
	}
	queryIDs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return "", nil, err
		}
		queryIDs = append(queryIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", nil, err
	}
	return rec.ID, queryIDs, nil
}

// DeleteUnusedResults removes results older than the threshold that no query
// points at anymore. Returns the number of rows deleted.
func (r *Repository) DeleteUnusedResults(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		DELETE FROM query_results qr
		WHERE qr.retrieved_at < $1
			AND NOT EXISTS (SELECT 1 FROM queries q WHERE q.latest_query_data_id = qr.id)`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const alertColumns = `id, query_id, user_id, name, column_name, op, value, rearm, state, last_triggered_at, created_at, updated_at`

func (r *Repository) CreateAlert(ctx context.Context, rec AlertRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alerts (id, query_id, user_id, name, column_name, op, value, rearm, state, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())`,
		id, rec.QueryID, rec.UserID, rec.Name, rec.Column, rec.Op, rec.Value, rec.Rearm, rec.State,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetAlert(ctx context.Context, id string) (AlertRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id=$1`, id)
	var rec AlertRecord
	if err := row.Scan(&rec.ID, &rec.QueryID, &rec.UserID, &rec.Name, &rec.Column, &rec.Op, &rec.Value,
		&rec.Rearm, &rec.State, &rec.LastTriggeredAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return AlertRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) UpdateAlert(ctx context.Context, rec AlertRecord) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alerts SET name=$1, column_name=$2, op=$3, value=$4, rearm=$5, updated_at=now() WHERE id=$6`,
		rec.Name, rec.Column, rec.Op, rec.Value, rec.Rearm, rec.ID,
	)
	return err
}

func (r *Repository) ListAlertsForQuery(ctx context.Context, queryID string) ([]AlertRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE query_id=$1 ORDER BY created_at ASC`, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertRecord{}
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.QueryID, &rec.UserID, &rec.Name, &rec.Column, &rec.Op, &rec.Value,
			&rec.Rearm, &rec.State, &rec.LastTriggeredAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

// UpdateAlertState stores the outcome of one evaluation. firedAt is non-nil
// only when a notification actually fired; last_triggered_at moves then and
// only then.
func (r *Repository) UpdateAlertState(ctx context.Context, id, state string, firedAt *time.Time) error {
	if firedAt != nil {
		_, err := r.Store.Pool.Exec(ctx, `UPDATE alerts SET state=$1, last_triggered_at=$2, updated_at=now() WHERE id=$3`, state, firedAt, id)
		return err
	}
	_, err := r.Store.Pool.Exec(ctx, `UPDATE alerts SET state=$1, updated_at=now() WHERE id=$2`, state, id)
	return err
}

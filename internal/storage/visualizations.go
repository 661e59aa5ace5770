package storage

import (
	"context"

	"github.com/google/uuid"
)

func (r *Repository) CreateVisualization(ctx context.Context, rec VisualizationRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO visualizations (id, query_id, name, description, type, options, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())`,
		id, rec.QueryID, rec.Name, rec.Description, rec.Type, rec.Options,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListVisualizationsForQuery(ctx context.Context, queryID string) ([]VisualizationRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, query_id, name, description, type, options, created_at
		FROM visualizations WHERE query_id=$1 ORDER BY created_at ASC`, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []VisualizationRecord{}
	for rows.Next() {
		var rec VisualizationRecord
		if err := rows.Scan(&rec.ID, &rec.QueryID, &rec.Name, &rec.Description, &rec.Type, &rec.Options, &rec.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

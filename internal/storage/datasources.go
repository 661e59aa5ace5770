package storage

import (
	"context"

	"github.com/google/uuid"
)

func (r *Repository) CreateDataSource(ctx context.Context, ds DataSourceRecord) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO data_sources (id, name, type, host, port, user_name, password_enc, database, ssl_mode, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		id, ds.Name, ds.Type, ds.Host, ds.Port, ds.User, ds.PasswordEnc, ds.Database, ds.SSLMode,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) GetDataSource(ctx context.Context, id string) (DataSourceRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, name, type, host, port, user_name, password_enc, database, ssl_mode, created_at
		FROM data_sources WHERE id=$1`, id)
	var ds DataSourceRecord
	if err := row.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.Host, &ds.Port, &ds.User, &ds.PasswordEnc, &ds.Database, &ds.SSLMode, &ds.CreatedAt); err != nil {
		return DataSourceRecord{}, ErrNotFound
	}
	return ds, nil
}

func (r *Repository) ListDataSources(ctx context.Context) ([]DataSourceRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, name, type, host, port, user_name, password_enc, database, ssl_mode, created_at
		FROM data_sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []DataSourceRecord{}
	for rows.Next() {
		var ds DataSourceRecord
		if err := rows.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.Host, &ds.Port, &ds.User, &ds.PasswordEnc, &ds.Database, &ds.SSLMode, &ds.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, ds)
	}
	return results, nil
}

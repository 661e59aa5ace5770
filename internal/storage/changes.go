package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"statboard-backend/internal/audit"
)

// insertChange appends one change row inside the caller's transaction so the
// entity write and its audit record land together or not at all.
func insertChange(ctx context.Context, tx pgx.Tx, objectType audit.ObjectType, objectID string, version int, userID string, change map[string]audit.FieldDiff) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO changes (id, object_type, object_id, object_version, user_id, change, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())`,
		uuid.NewString(), string(objectType), objectID, version, userID, payload,
	)
	return err
}

func (r *Repository) ListChanges(ctx context.Context, objectType audit.ObjectType, objectID string) ([]audit.ChangeRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, object_type, object_id, object_version, user_id, change, created_at
		FROM changes WHERE object_type=$1 AND object_id=$2 ORDER BY object_version ASC`,
		string(objectType), objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []audit.ChangeRecord{}
	for rows.Next() {
		var rec audit.ChangeRecord
		var objType string
		var payload []byte
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &objType, &rec.ObjectID, &rec.ObjectVersion, &rec.UserID, &payload, &createdAt); err != nil {
			return nil, err
		}
		rec.ObjectType = audit.ObjectType(objType)
		rec.CreatedAt = createdAt
		if err := json.Unmarshal(payload, &rec.Change); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

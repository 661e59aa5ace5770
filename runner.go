package queryrunner

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// QueryRunner executes ad-hoc query text against a single configured data
// source. Implementations wrap a database/sql driver and are safe to share
// across goroutines.
type QueryRunner interface {
	TestConnection(ctx context.Context) error

	RunQuery(ctx context.Context, query string) (*QueryOutcome, error)

	Close() error
}

type ConnectionConfig struct {
	Type     string // mysql | postgres | mssql
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResultData is the serialized shape of one query execution: column metadata
// plus rows keyed by column name.
type ResultData struct {
	Columns []Column         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// QueryOutcome carries the payload of a completed execution together with the
// wall-clock duration in seconds and the completion timestamp (UTC).
type QueryOutcome struct {
	Data        ResultData
	Runtime     float64
	RetrievedAt time.Time
}

type baseRunner struct {
	cfg ConnectionConfig
	db  *sql.DB
}

func (b *baseRunner) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *baseRunner) runQuery(ctx context.Context, query string) (*QueryOutcome, error) {
	started := time.Now()
	rows, err := b.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	data, err := collectResultData(rows)
	if err != nil {
		return nil, err
	}
	return &QueryOutcome{
		Data:        *data,
		Runtime:     time.Since(started).Seconds(),
		RetrievedAt: time.Now().UTC(),
	}, nil
}

func collectResultData(rows *sql.Rows) (*ResultData, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	columns := make([]Column, len(cols))
	for i, name := range cols {
		columns[i] = Column{Name: name, Type: friendlyType(types[i].DatabaseTypeName())}
	}
	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		for i := range values {
			var v any
			values[i] = &v
		}
		if err := rows.Scan(values...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			v := *(values[i].(*any))
			row[col] = normalizeValue(v)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ResultData{Columns: columns, Rows: results}, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC()
	default:
		return t
	}
}

func friendlyType(dbType string) string {
	switch strings.ToUpper(dbType) {
	case "INT", "INT2", "INT4", "INT8", "BIGINT", "SMALLINT", "TINYINT", "INTEGER", "SERIAL", "BIGSERIAL":
		return "integer"
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DECIMAL", "NUMERIC", "REAL", "MONEY":
		return "float"
	case "BOOL", "BOOLEAN", "BIT":
		return "boolean"
	case "DATE", "TIME", "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "DATETIME2", "DATETIMEOFFSET", "SMALLDATETIME":
		return "datetime"
	default:
		return "string"
	}
}

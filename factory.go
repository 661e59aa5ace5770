package queryrunner

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

func NewRunner(cfg ConnectionConfig) (QueryRunner, error) {
	if strings.TrimSpace(cfg.Type) == "" {
		return nil, errors.New("connection type is required")
	}
	switch strings.ToLower(cfg.Type) {
	case "mysql":
		return newMySQLRunner(cfg)
	case "postgres", "postgresql":
		return newPostgresRunner(cfg)
	case "mssql", "sqlserver":
		return newMSSQLRunner(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}

func openDatabase(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

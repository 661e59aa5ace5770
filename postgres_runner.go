package queryrunner

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

type PostgresRunner struct {
	baseRunner
}

func buildPostgresDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

func newPostgresRunner(cfg ConnectionConfig) (*PostgresRunner, error) {
	db, err := openDatabase("postgres", buildPostgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	return &PostgresRunner{baseRunner{cfg: cfg, db: db}}, nil
}

func (r *PostgresRunner) TestConnection(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (r *PostgresRunner) RunQuery(ctx context.Context, query string) (*QueryOutcome, error) {
	outcome, err := r.runQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run postgres query: %w", err)
	}
	return outcome, nil
}

package queryrunner

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLRunner struct {
	baseRunner
}

func buildMySQLDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	if sslMode == "disable" {
		dsn += "&tls=false"
	} else if sslMode != "" {
		dsn += "&tls=true"
	}
	return dsn
}

func newMySQLRunner(cfg ConnectionConfig) (*MySQLRunner, error) {
	db, err := openDatabase("mysql", buildMySQLDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	return &MySQLRunner{baseRunner{cfg: cfg, db: db}}, nil
}

func (r *MySQLRunner) TestConnection(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mysql: %w", err)
	}
	return nil
}

func (r *MySQLRunner) RunQuery(ctx context.Context, query string) (*QueryOutcome, error) {
	outcome, err := r.runQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run mysql query: %w", err)
	}
	return outcome, nil
}

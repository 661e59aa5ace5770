package queryrunner

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"
)

type MSSQLRunner struct {
	baseRunner
}

func buildMSSQLDSN(cfg ConnectionConfig) string {
	if cfg.Port == 0 {
		cfg.Port = 1433
	}
	user := url.QueryEscape(cfg.User)
	pass := url.QueryEscape(cfg.Password)
	sslMode := strings.ToLower(strings.TrimSpace(cfg.SSLMode))
	encrypt := "true"
	if sslMode == "disable" {
		encrypt = "disable"
	}
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s&encrypt=%s", user, pass, cfg.Host, cfg.Port, cfg.Database, encrypt)
}

func newMSSQLRunner(cfg ConnectionConfig) (*MSSQLRunner, error) {
	db, err := openDatabase("sqlserver", buildMSSQLDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open mssql connection: %w", err)
	}
	return &MSSQLRunner{baseRunner{cfg: cfg, db: db}}, nil
}

func (r *MSSQLRunner) TestConnection(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping mssql: %w", err)
	}
	return nil
}

func (r *MSSQLRunner) RunQuery(ctx context.Context, query string) (*QueryOutcome, error) {
	outcome, err := r.runQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("run mssql query: %w", err)
	}
	return outcome, nil
}

// Package postgres mirrors progress ledger entries into a Postgres table so
// crawl progress can be queried while a run is in flight.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/search-harvester/internal/ledger"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "progress_entries"

// LedgerMirrorConfig controls the Postgres connection pool used for ledger rows.
type LedgerMirrorConfig struct {
	DSN             string
	Table           string
	RunID           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// LedgerMirror writes ledger entries into Postgres.
type LedgerMirror struct {
	pool  execCloser
	table string
	runID string
}

// NewLedgerMirror creates a Postgres-backed LedgerMirror using the provided config.
func NewLedgerMirror(ctx context.Context, cfg LedgerMirrorConfig) (*LedgerMirror, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.postgres_dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &LedgerMirror{
		pool:  pool,
		table: table,
		runID: cfg.RunID,
	}, nil
}

// NewLedgerMirrorWithPool constructs a mirror from an existing pool (primarily for testing).
func NewLedgerMirrorWithPool(pool execCloser, table, runID string) (*LedgerMirror, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &LedgerMirror{pool: pool, table: name, runID: runID}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (m *LedgerMirror) Close() {
	if m == nil || m.pool == nil {
		return
	}
	m.pool.Close()
}

// EnsureSchema creates the mirror table when it does not exist.
func (m *LedgerMirror) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id             TEXT        NOT NULL,
	log_date           TIMESTAMPTZ NOT NULL,
	language           TEXT        NOT NULL,
	base_filter        TEXT        NOT NULL,
	created_range      TEXT        NOT NULL,
	pushed_date        DATE        NOT NULL,
	page               INTEGER     NOT NULL,
	total_count        INTEGER     NOT NULL,
	incomplete_results BOOLEAN     NOT NULL,
	complete_query     TEXT        NOT NULL,
	PRIMARY KEY (run_id, base_filter, created_range, pushed_date, page)
)`, m.table)
	if _, err := m.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", m.table, err)
	}
	return nil
}

// RecordEntry upserts one ledger entry for the current run.
func (m *LedgerMirror) RecordEntry(ctx context.Context, entry ledger.Entry) error {
	if m == nil || m.pool == nil {
		return fmt.Errorf("ledger mirror is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	log_date,
	language,
	base_filter,
	created_range,
	pushed_date,
	page,
	total_count,
	incomplete_results,
	complete_query
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (run_id, base_filter, created_range, pushed_date, page) DO UPDATE SET
	log_date = EXCLUDED.log_date,
	total_count = EXCLUDED.total_count,
	incomplete_results = EXCLUDED.incomplete_results,
	complete_query = EXCLUDED.complete_query`, m.table)

	args := []any{
		m.runID,
		entry.LogDate,
		entry.Language,
		entry.Key.Base,
		entry.Key.Created,
		entry.Key.Pushed,
		entry.Page,
		entry.TotalCount,
		entry.IncompleteResults,
		entry.CompleteQuery,
	}
	if _, err := m.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

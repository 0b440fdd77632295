// Package postgres provides Postgres-backed checkpoint and result stores. They
// honor the same contracts as the file stores: every Record and Append is
// committed before it returns.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
)

// Default table names.
const (
	DefaultCheckpointTable = "creator_checkpoints"
	DefaultResultTable     = "creator_results"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	CheckpointTable string
	ResultTable     string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// Connect opens a connection pool for cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: storage.postgres.dsn is required", crawler.ErrConfig)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %w", crawler.ErrConfig, err)
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
		return nil, errors.Join(crawler.ErrIO, fmt.Errorf("connect postgres: %w", err))
	}
	return pool, nil
}

// EnsureSchema creates the checkpoint and result tables when missing.
func EnsureSchema(ctx context.Context, db DB, checkpointTable, resultTable string) error {
	checkpointTable, err := tableName(checkpointTable, DefaultCheckpointTable)
	if err != nil {
		return err
	}
	resultTable, err = tableName(resultTable, DefaultResultTable)
	if err != nil {
		return err
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	candidate   TEXT PRIMARY KEY,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, checkpointTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq                BIGSERIAL PRIMARY KEY,
	username           TEXT NOT NULL UNIQUE,
	search_term        TEXT NOT NULL,
	provenance         TEXT NOT NULL,
	bio                TEXT NOT NULL,
	affiliate_shop     TEXT NOT NULL,
	affiliate_platform TEXT NOT NULL,
	imprint            TEXT NOT NULL,
	website            TEXT NOT NULL,
	locale             TEXT NOT NULL,
	reason             TEXT NOT NULL,
	accepted_at        TIMESTAMPTZ NOT NULL
)`, resultTable),
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return errors.Join(crawler.ErrIO, fmt.Errorf("ensure schema: %w", err))
		}
	}
	return nil
}

func tableName(name, fallback string) (string, error) {
	if name == "" {
		name = fallback
	}
	if !validTableName.MatchString(name) {
		return "", fmt.Errorf("%w: invalid table name %q", crawler.ErrConfig, name)
	}
	return name, nil
}

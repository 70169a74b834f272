// Package database contains the logic for establishing
// connections to the PostgreSQL database.
//
// It handles:
//   - creating a pgx connection pool (pgxpool) tuned from config
//   - wiring query tracing/logging (pgx tracelog, slow query log)
//   - optional New Relic instrumentation (nrpgx5)
//   - running work inside a transaction with Postgres settings applied
//     (the role and jwt.claims.* values GraphQL requests run with)
package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"

	"github.com/deppfellow/graphile-starter/internal/config"
	loggerConfig "github.com/deppfellow/graphile-starter/internal/logger"
)

// Database wraps the pgx connection pool and a logger.
type Database struct {
	Pool *pgxpool.Pool
	log  *zerolog.Logger
}

// DatabasePingTimeout is how long startup waits for the first ping.
const DatabasePingTimeout = 10 * time.Second

// New creates a PostgreSQL connection pool with instrumentation.
//
// In local env every query is logged through pgx tracelog. Queries slower
// than the observability slow query threshold are always logged as warnings.
// The pool is pinged before returning; failure is a startup error.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService) (*Database, error) {
	pgxPoolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx pool config: %w", err)
	}

	pgxPoolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgxPoolConfig.MinConns = int32(min(cfg.Database.MaxIdleConns, cfg.Database.MaxOpenConns))
	pgxPoolConfig.MaxConnLifetime = time.Duration(cfg.Database.ConnMaxLifetime) * time.Second
	pgxPoolConfig.MaxConnIdleTime = time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second

	var tracers []any

	if loggerService.GetApplication() != nil {
		tracers = append(tracers, nrpgx5.NewTracer())
	}

	if cfg.Primary.Env == "local" {
		globalLevel := logger.GetLevel()
		pgxLogger := loggerConfig.NewPgxLogger(globalLevel)

		tracers = append(tracers, &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(pgxLogger),
			LogLevel: loggerConfig.GetPgxTraceLogLevel(globalLevel),
		})
	}

	if threshold := cfg.Observability.Logging.SlowQueryThreshold; threshold > 0 {
		tracers = append(tracers, &slowQueryTracer{threshold: threshold, log: logger})
	}

	switch len(tracers) {
	case 0:
	case 1:
		pgxPoolConfig.ConnConfig.Tracer = tracers[0].(pgx.QueryTracer)
	default:
		pgxPoolConfig.ConnConfig.Tracer = &multiTracer{tracers: tracers}
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), pgxPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	database := &Database{
		Pool: pool,
		log:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), DatabasePingTimeout)
	defer cancel()
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Int32("max_conns", pgxPoolConfig.MaxConns).
		Msg("connected to the database")

	return database, nil
}

// Close closes the database connection pool.
func (db *Database) Close() error {
	db.log.Info().Msg("closing database connection pool")
	db.Pool.Close()
	return nil
}

// Beginner is the part of a pool WithSettings needs.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithSettings runs fn inside a transaction on the pool.
// See RunWithSettings.
func (db *Database) WithSettings(ctx context.Context, settings map[string]string, fn func(tx pgx.Tx) error) error {
	return RunWithSettings(ctx, db.Pool, settings, fn)
}

// RunWithSettings opens a transaction, applies every setting with
// set_config(key, value, true) so they only live for this transaction,
// and runs fn. The transaction commits when fn succeeds and rolls back
// otherwise.
//
// The "role" key switches the current role, like `set local role`.
func RunWithSettings(ctx context.Context, db Beginner, settings map[string]string, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		if query, args := settingsQuery(settings); query != "" {
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("applying transaction settings: %w", err)
			}
		}
		return fn(tx)
	})
}

// settingsQuery renders one select with a set_config call per setting,
// keys sorted so the statement is stable.
func settingsQuery(settings map[string]string) (string, []any) {
	if len(settings) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	calls := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2)
	for i, k := range keys {
		calls = append(calls, fmt.Sprintf("set_config($%d, $%d, true)", i*2+1, i*2+2))
		args = append(args, k, settings[k])
	}

	return "select " + strings.Join(calls, ", "), args
}

package db

import (
	"context"
	"regexp"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/wumpus-archiver/archiver/src/config"
	"github.com/wumpus-archiver/archiver/src/logging"
	"github.com/wumpus-archiver/archiver/src/oops"
	"github.com/wumpus-archiver/archiver/src/utils"
)

// This interface should match both a direct pgx connection or a pgx transaction.
type ConnOrTx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults

	// Both raw database connections and transactions in pgx can begin/commit
	// transactions. For database connections it does the obvious thing; for
	// transactions it creates a "pseudo-nested transaction" but conceptually
	// works the same. See the documentation of pgx.Tx.Begin.
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Creates a single connection to the archive database, for things like
// migrations that want a dedicated session.
// This connection is not safe for concurrent use.
func NewConn(ctx context.Context, cfg config.PostgresConfig) (*pgx.Conn, error) {
	cfg = overrideDefaultConfig(cfg)

	pgcfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, oops.New(err, "invalid postgres DSN")
	}
	pgcfg.Tracer = newTracer(cfg)

	conn, err := pgx.ConnectConfig(ctx, pgcfg)
	if err != nil {
		return nil, oops.New(err, "failed to connect to database")
	}
	return conn, nil
}

// Creates a connection pool for the archive database.
// The resulting pool is safe for concurrent use.
func NewConnPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	cfg = overrideDefaultConfig(cfg)

	pgcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, oops.New(err, "invalid postgres DSN")
	}
	pgcfg.MinConns = cfg.MinConn
	pgcfg.MaxConns = cfg.MaxConn
	pgcfg.ConnConfig.Tracer = newTracer(cfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgcfg)
	if err != nil {
		return nil, oops.New(err, "failed to create database connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.New(err, "failed to reach database")
	}
	return pool, nil
}

func overrideDefaultConfig(cfg config.PostgresConfig) config.PostgresConfig {
	return config.PostgresConfig{
		DSN:      utils.OrDefault(cfg.DSN, config.Config.Storage.Postgres.DSN),
		LogLevel: utils.OrDefault(cfg.LogLevel, config.Config.Storage.Postgres.LogLevel),
		MinConn:  utils.OrDefault(cfg.MinConn, config.Config.Storage.Postgres.MinConn),
		MaxConn:  utils.OrDefault(cfg.MaxConn, config.Config.Storage.Postgres.MaxConn),
	}
}

func newTracer(cfg config.PostgresConfig) pgx.QueryTracer {
	return &tracelog.TraceLog{
		Logger:   queryNameLogger{zerologadapter.NewLogger(*logging.GlobalLogger())},
		LogLevel: cfg.LogLevel,
	}
}

var reQueryName = regexp.MustCompile("---- (.*)\n")

// Queries may start with a line like "---- Advance channel cursor" to give
// them a readable name in the logs.
func GetQueryName(sql string) (string, bool) {
	m := reQueryName.FindStringSubmatch(sql)
	if m != nil {
		return m[1], true
	}
	return "", false
}

// queryNameLogger adds the query name, if there is one, to every pgx log line.
type queryNameLogger struct {
	inner tracelog.Logger
}

func (l queryNameLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	if sql, ok := data["sql"].(string); ok {
		if name, ok := GetQueryName(sql); ok {
			data["query"] = name
		}
	}
	l.inner.Log(ctx, level, msg, data)
}

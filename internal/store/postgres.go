package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
)

// CopyDB is the subset of *pgxpool.Pool the COPY store needs.
type CopyDB interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgStore loads trips with the PostgreSQL COPY protocol. A COPY is a single
// statement, so a failed load leaves the table unchanged.
type PgStore struct {
	db    CopyDB
	table pgx.Identifier
	close func()
}

// NewPgStore wraps db. table may be schema-qualified ("etl.taxi_trips").
func NewPgStore(db CopyDB, table string) *PgStore {
	return &PgStore{db: db, table: pgx.Identifier(strings.Split(table, "."))}
}

// ConnectPg opens and pings a pgx pool configured from cfg.
func ConnectPg(ctx context.Context, cfg config.DatabaseConfig) (*PgStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", "pgx", "name", strings.TrimPrefix(u.Path, "/"))
	}

	s := NewPgStore(pool, cfg.Table)
	s.close = pool.Close
	return s, nil
}

// BulkLoad copies trips into the table in TripColumns order.
func (s *PgStore) BulkLoad(ctx context.Context, trips []core.Trip) (int64, error) {
	if len(trips) == 0 {
		return 0, nil
	}

	n, err := s.db.CopyFrom(ctx, s.table, core.TripColumns, pgx.CopyFromSlice(len(trips), func(i int) ([]any, error) {
		return trips[i].CopyRow(), nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", s.table.Sanitize(), err)
	}
	return n, nil
}

// CountTrips returns the table's row count.
func (s *PgStore) CountTrips(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM "+s.table.Sanitize()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table.Sanitize(), err)
	}
	return n, nil
}

// Truncate removes every row from the table.
func (s *PgStore) Truncate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "TRUNCATE TABLE "+s.table.Sanitize()); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table.Sanitize(), err)
	}
	return nil
}

// Close releases the pool when the store owns one.
func (s *PgStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Package store loads kept trips into the destination database. PostgreSQL
// through pgx uses COPY; the database/sql drivers use batched INSERTs.
package store

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
)

// Store is a trip loader that owns a connection pool.
type Store interface {
	core.TripLoader
	Truncate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PgStore)(nil)
	_ Store = (*SQLStore)(nil)
)

// Open connects to the database named by cfg.Database.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	db := cfg.Database
	switch db.Driver {
	case "pgx":
		return ConnectPg(ctx, db)
	case "postgres", "mysql", "sqlite":
		s, err := OpenSQL(ctx, db, cfg.Load.BatchSize)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to database", "driver", db.Driver, "table", db.Table)
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", db.Driver)
	}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
)

// Dialect captures the SQL differences between database/sql drivers.
type Dialect struct {
	Name        string
	QuoteIdent  func(string) string
	Placeholder func(n int) string
}

func doubleQuote(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }
func backQuote(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" }

func dollar(n int) string { return "$" + strconv.Itoa(n) }
func question(int) string { return "?" }

// Dialects by driver name.
var Dialects = map[string]Dialect{
	"postgres": {Name: "postgres", QuoteIdent: doubleQuote, Placeholder: dollar},
	"mysql":    {Name: "mysql", QuoteIdent: backQuote, Placeholder: question},
	"sqlite":   {Name: "sqlite", QuoteIdent: doubleQuote, Placeholder: question},
}

// SQLStore loads trips through database/sql with multi-row INSERTs inside a
// single transaction.
type SQLStore struct {
	db        *sql.DB
	dialect   Dialect
	table     string
	columns   string
	batchSize int
}

// NewSQLStore wraps db for the named driver.
func NewSQLStore(db *sql.DB, driver, table string, batchSize int) (*SQLStore, error) {
	d, ok := Dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if batchSize <= 0 {
		batchSize = 500
	}

	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdent(p)
	}
	cols := make([]string, len(core.TripColumns))
	for i, c := range core.TripColumns {
		cols[i] = d.QuoteIdent(c)
	}

	return &SQLStore{
		db:        db,
		dialect:   d,
		table:     strings.Join(parts, "."),
		columns:   strings.Join(cols, ", "),
		batchSize: batchSize,
	}, nil
}

// OpenSQL opens and pings a database/sql pool configured from cfg.
func OpenSQL(ctx context.Context, cfg config.DatabaseConfig, batchSize int) (*SQLStore, error) {
	db, err := sql.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s, err := NewSQLStore(db, cfg.Driver, cfg.Table, batchSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// BulkLoad inserts trips in chunks of batchSize rows. Either every row is
// committed or none is.
func (s *SQLStore) BulkLoad(ctx context.Context, trips []core.Trip) (n int64, err error) {
	if len(trips) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(trips); start += s.batchSize {
		end := min(start+s.batchSize, len(trips))
		query, args := s.insertStatement(trips[start:end])
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return 0, fmt.Errorf("insert rows %d-%d: %w", start+1, end, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int64(len(trips)), nil
}

func (s *SQLStore) insertStatement(trips []core.Trip) (string, []any) {
	width := len(core.TripColumns)
	args := make([]any, 0, len(trips)*width)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(s.table)
	b.WriteString(" (")
	b.WriteString(s.columns)
	b.WriteString(") VALUES ")

	for i := range trips {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s.dialect.Placeholder(len(args) + j + 1))
		}
		b.WriteByte(')')
		args = append(args, sqlRow(&trips[i])...)
	}
	return b.String(), args
}

// sqlRow is CopyRow with driver-neutral values: decimals as text.
func sqlRow(t *core.Trip) []any {
	return []any{
		t.PickupUTC,
		t.DropoffUTC,
		t.PassengerCount,
		t.TripDistance,
		string(t.StoreAndForward),
		t.PULocationID,
		t.DOLocationID,
		core.FormatDecimal(t.FareAmount),
		core.FormatDecimal(t.TipAmount),
	}
}

// CountTrips returns the table's row count.
func (s *SQLStore) CountTrips(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return n, nil
}

// Truncate removes every row from the table. SQLite has no TRUNCATE.
func (s *SQLStore) Truncate(ctx context.Context) error {
	stmt := "TRUNCATE TABLE " + s.table
	if s.dialect.Name == "sqlite" {
		stmt = "DELETE FROM " + s.table
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("truncate %s: %w", s.table, err)
	}
	return nil
}

// Close closes the pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

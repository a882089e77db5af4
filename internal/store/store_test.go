package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
)

func trips(t *testing.T, n int) []core.Trip {
	t.Helper()
	fare, err := core.ParseDecimal("9.75")
	require.NoError(t, err)

	out := make([]core.Trip, n)
	for i := range out {
		pickup := time.Date(2023, 3, 1, 7, i, 0, 0, time.UTC)
		out[i] = core.Trip{
			PickupUTC:       pickup,
			DropoffUTC:      pickup.Add(15 * time.Minute),
			PassengerCount:  1 + i%4,
			TripDistance:    1.5,
			StoreAndForward: core.StoreAndForwardNo,
			PULocationID:    100,
			DOLocationID:    200,
			FareAmount:      fare,
			TipAmount:       core.ZeroDecimal(),
		}
	}
	return out
}

// fakeCopyDB records the rows handed to CopyFrom.
type fakeCopyDB struct {
	table   pgx.Identifier
	columns []string
	rows    [][]any
	copyErr error
	count   int64
	query   string
	exec    string
}

func (f *fakeCopyDB) CopyFrom(_ context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.table, f.columns = table, cols
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.rows = append(f.rows, vals)
	}
	return int64(len(f.rows)), src.Err()
}

func (f *fakeCopyDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.query = sql
	return countRow{n: f.count}
}

func (f *fakeCopyDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.exec = sql
	return pgconn.NewCommandTag("TRUNCATE TABLE"), nil
}

type countRow struct{ n int64 }

func (r countRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.n
	return nil
}

func TestPgStore_BulkLoad(t *testing.T) {
	db := &fakeCopyDB{}
	s := NewPgStore(db, "etl.taxi_trips")

	n, err := s.BulkLoad(context.Background(), trips(t, 3))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, pgx.Identifier{"etl", "taxi_trips"}, db.table)
	assert.Equal(t, core.TripColumns, db.columns)
	require.Len(t, db.rows, 3)
	assert.Len(t, db.rows[0], len(core.TripColumns))
	assert.Equal(t, "No", db.rows[0][4])
}

func TestPgStore_BulkLoad_Empty(t *testing.T) {
	db := &fakeCopyDB{copyErr: errors.New("must not be called")}
	n, err := NewPgStore(db, "taxi_trips").BulkLoad(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPgStore_BulkLoad_Error(t *testing.T) {
	db := &fakeCopyDB{copyErr: errors.New("connection reset")}
	_, err := NewPgStore(db, "taxi_trips").BulkLoad(context.Background(), trips(t, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Contains(t, err.Error(), `"taxi_trips"`)
}

func TestPgStore_CountTrips(t *testing.T) {
	db := &fakeCopyDB{count: 42}
	n, err := NewPgStore(db, "taxi_trips").CountTrips(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	assert.Equal(t, `SELECT COUNT(*) FROM "taxi_trips"`, db.query)
}

func TestPgStore_Truncate(t *testing.T) {
	db := &fakeCopyDB{}
	require.NoError(t, NewPgStore(db, "etl.taxi_trips").Truncate(context.Background()))
	assert.Equal(t, `TRUNCATE TABLE "etl"."taxi_trips"`, db.exec)
}

func TestSQLStore_Truncate(t *testing.T) {
	tests := []struct {
		driver string
		stmt   string
	}{
		{"postgres", `TRUNCATE TABLE "taxi_trips"`},
		{"mysql", "TRUNCATE TABLE `taxi_trips`"},
		{"sqlite", `DELETE FROM "taxi_trips"`},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(tt.stmt).WillReturnResult(sqlmock.NewResult(0, 0))

			s, err := NewSQLStore(db, tt.driver, "taxi_trips", 10)
			require.NoError(t, err)
			require.NoError(t, s.Truncate(context.Background()))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStore_InsertStatement(t *testing.T) {
	tests := []struct {
		driver string
		prefix string
		marks  string
	}{
		{"postgres", `INSERT INTO "taxi_trips" ("tpep_pickup_datetime"`, "($1, $2, $3, $4, $5, $6, $7, $8, $9), ($10,"},
		{"mysql", "INSERT INTO `taxi_trips` (`tpep_pickup_datetime`", "(?, ?, ?, ?, ?, ?, ?, ?, ?), (?,"},
		{"sqlite", `INSERT INTO "taxi_trips" ("tpep_pickup_datetime"`, "(?, ?, ?, ?, ?, ?, ?, ?, ?), (?,"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s, err := NewSQLStore(nil, tt.driver, "taxi_trips", 10)
			require.NoError(t, err)

			query, args := s.insertStatement(trips(t, 2))
			assert.True(t, strings.HasPrefix(query, tt.prefix), query)
			assert.Contains(t, query, tt.marks)
			assert.Len(t, args, 2*len(core.TripColumns))
			assert.Equal(t, "9.75", args[7])
		})
	}
}

func TestNewSQLStore_UnknownDriver(t *testing.T) {
	_, err := NewSQLStore(nil, "oracle", "taxi_trips", 10)
	assert.Error(t, err)
}

func TestSQLStore_BulkLoad_Chunks(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "taxi_trips"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "taxi_trips"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := NewSQLStore(db, "postgres", "taxi_trips", 2)
	require.NoError(t, err)

	n, err := s.BulkLoad(context.Background(), trips(t, 3))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_BulkLoad_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "taxi_trips"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO "taxi_trips"`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s, err := NewSQLStore(db, "sqlite", "taxi_trips", 2)
	require.NoError(t, err)

	n, err := s.BulkLoad(context.Background(), trips(t, 4))
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Contains(t, err.Error(), "rows 3-4")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_CountTrips(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM `taxi_trips`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	s, err := NewSQLStore(db, "mysql", "taxi_trips", 2)
	require.NoError(t, err)

	n, err := s.CountTrips(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const sqliteSchema = `CREATE TABLE taxi_trips (
	tpep_pickup_datetime  TIMESTAMP NOT NULL,
	tpep_dropoff_datetime TIMESTAMP NOT NULL,
	passenger_count       INTEGER NOT NULL,
	trip_distance         REAL NOT NULL,
	store_and_fwd_flag    TEXT NOT NULL,
	PULocationID          INTEGER NOT NULL,
	DOLocationID          INTEGER NOT NULL,
	fare_amount           NUMERIC NOT NULL,
	tip_amount            NUMERIC NOT NULL
)`

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trips.db")

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, sqliteSchema)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Driver:   "sqlite",
			URL:      path,
			Table:    "taxi_trips",
			MaxConns: 1,
		},
		Load: config.LoadConfig{BatchSize: 2},
	}

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.BulkLoad(ctx, trips(t, 5))
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	count, err := s.CountTrips(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)

	require.NoError(t, s.Truncate(ctx))
	count, err = s.CountTrips(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Database: config.DatabaseConfig{Driver: "oracle"}})
	assert.Error(t, err)
}

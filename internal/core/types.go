package core

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Source column names. They double as the destination column names.
const (
	ColPickup          = "tpep_pickup_datetime"
	ColDropoff         = "tpep_dropoff_datetime"
	ColPassengerCount  = "passenger_count"
	ColTripDistance    = "trip_distance"
	ColStoreAndForward = "store_and_fwd_flag"
	ColPULocationID    = "PULocationID"
	ColDOLocationID    = "DOLocationID"
	ColFareAmount      = "fare_amount"
	ColTipAmount       = "tip_amount"
)

// TripColumns lists the destination columns in load order.
var TripColumns = []string{
	ColPickup,
	ColDropoff,
	ColPassengerCount,
	ColTripDistance,
	ColStoreAndForward,
	ColPULocationID,
	ColDOLocationID,
	ColFareAmount,
	ColTipAmount,
}

// StoreAndForward is the normalized store-and-forward flag.
type StoreAndForward string

const (
	StoreAndForwardYes StoreAndForward = "Yes"
	StoreAndForwardNo  StoreAndForward = "No"
)

// Trip is one parsed taxi trip on its way through the pipeline.
// PickupUTC and DropoffUTC are zero until the row has been normalized.
type Trip struct {
	PickupRaw  string
	DropoffRaw string
	PickupUTC  time.Time
	DropoffUTC time.Time

	PassengerCount  int
	TripDistance    float64
	StoreAndForward StoreAndForward
	PULocationID    int
	DOLocationID    int
	FareAmount      pgtype.Numeric
	TipAmount       pgtype.Numeric

	// Defaulted names the columns whose text could not be parsed and fell
	// back to zero (or were clamped to zero, for currency).
	Defaulted []string
}

// CopyRow returns the trip's values in TripColumns order.
func (t *Trip) CopyRow() []any {
	return []any{
		t.PickupUTC,
		t.DropoffUTC,
		t.PassengerCount,
		t.TripDistance,
		string(t.StoreAndForward),
		t.PULocationID,
		t.DOLocationID,
		t.FareAmount,
		t.TipAmount,
	}
}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

// RawRow is one input line as column name to cell text.
// Cells keep their input order; lookups go through the header index.
type RawRow struct {
	Index HeaderIndex
	Cells []string
}

// NewRawRow builds a RawRow from a header and cell values. Intended for
// callers that already hold a decoded line, tests mostly.
func NewRawRow(header, cells []string) RawRow {
	return RawRow{Index: MakeHeaderIndex(header), Cells: cells}
}

// Get returns the cleaned cell for column and whether the column exists
// in this row at all.
func (r RawRow) Get(column string) (string, bool) {
	pos, ok := r.Index[strings.ToLower(column)]
	if !ok || pos >= len(r.Cells) {
		return "", false
	}
	return CleanCell(r.Cells[pos]), true
}

// Rejection records a row discarded by the parser, validator or normalizer.
type Rejection struct {
	Row    int
	Rule   string
	Reason string
	Err    error
}

// RowResult is the outcome of pushing one row through parse, validate and
// normalize. Exactly one of Trip and Err is set.
type RowResult struct {
	Row  int
	Trip *Trip
	Err  error
}

// OK reports whether the row survived.
func (r RowResult) OK() bool { return r.Err == nil }

// Batch is the classified output of one run.
type Batch struct {
	RowsRead   int
	Kept       []Trip
	Duplicates []Trip
	Rejected   []Rejection
}

// TripLoader is the bulk destination for kept trips (sink A).
type TripLoader interface {
	// BulkLoad writes all trips atomically and returns the row count written.
	BulkLoad(ctx context.Context, trips []Trip) (int64, error)
	// CountTrips returns the total row count of the destination table.
	CountTrips(ctx context.Context) (int64, error)
}

// DuplicateSink receives the duplicate trips of a run (sink B).
type DuplicateSink interface {
	// CheckWritable checks the destination is writable before any work starts.
	CheckWritable(path string) error
	// WriteDuplicates replaces the destination with trips.
	WriteDuplicates(path string, trips []Trip) error
}

// KeptArchiver writes an optional secondary copy of the kept trips.
type KeptArchiver interface {
	WriteKept(path string, trips []Trip) error
}

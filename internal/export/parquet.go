package export

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/JonMunkholm/TaxiETL/internal/core"
)

// TripRecord is the Parquet row layout of a kept trip. Timestamps are
// milliseconds since the Unix epoch, UTC. Money stays exact as text.
type TripRecord struct {
	PickupRaw        string  `parquet:"original_pickup_datetime"`
	DropoffRaw       string  `parquet:"original_dropoff_datetime"`
	PickupUTCMillis  int64   `parquet:"tpep_pickup_datetime_ms"`
	DropoffUTCMillis int64   `parquet:"tpep_dropoff_datetime_ms"`
	PassengerCount   int32   `parquet:"passenger_count"`
	TripDistance     float64 `parquet:"trip_distance"`
	StoreAndForward  string  `parquet:"store_and_fwd_flag"`
	PULocationID     int32   `parquet:"PULocationID"`
	DOLocationID     int32   `parquet:"DOLocationID"`
	FareAmount       string  `parquet:"fare_amount"`
	TipAmount        string  `parquet:"tip_amount"`
}

// NewTripRecord converts a trip to its Parquet layout.
func NewTripRecord(t *core.Trip) TripRecord {
	return TripRecord{
		PickupRaw:        t.PickupRaw,
		DropoffRaw:       t.DropoffRaw,
		PickupUTCMillis:  t.PickupUTC.UnixMilli(),
		DropoffUTCMillis: t.DropoffUTC.UnixMilli(),
		PassengerCount:   int32(t.PassengerCount),
		TripDistance:     t.TripDistance,
		StoreAndForward:  string(t.StoreAndForward),
		PULocationID:     int32(t.PULocationID),
		DOLocationID:     int32(t.DOLocationID),
		FareAmount:       core.FormatDecimal(t.FareAmount),
		TipAmount:        core.FormatDecimal(t.TipAmount),
	}
}

// ParquetArchive writes kept trips to a Parquet file. It implements
// core.KeptArchiver.
type ParquetArchive struct{}

// WriteKept replaces path with trips.
func (ParquetArchive) WriteKept(path string, trips []core.Trip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	rows := make([]TripRecord, len(trips))
	for i := range trips {
		rows[i] = NewTripRecord(&trips[i])
	}

	pw := parquet.NewGenericWriter[TripRecord](f)
	n, err := pw.Write(rows)
	if err != nil {
		f.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if n != len(rows) {
		f.Close()
		return fmt.Errorf("wrote %d of %d parquet rows", n, len(rows))
	}
	if err := pw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return f.Close()
}

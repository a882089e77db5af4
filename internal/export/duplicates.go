// Package export writes the side outputs of a run: the duplicates CSV and
// an optional Parquet copy of the kept trips.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/JonMunkholm/TaxiETL/internal/core"
)

// TimestampLayout formats UTC timestamps in the duplicates file.
const TimestampLayout = "2006-01-02 15:04:05"

// DuplicateHeader is the column order of the duplicates file.
var DuplicateHeader = append([]string{
	"original_pickup_datetime",
	"original_dropoff_datetime",
}, core.TripColumns...)

// DuplicateFile writes duplicate trips as CSV. It implements
// core.DuplicateSink.
type DuplicateFile struct{}

// CheckWritable creates or truncates path to prove it is writable.
func (DuplicateFile) CheckWritable(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

// WriteDuplicates replaces path with a header line and one line per trip.
func (DuplicateFile) WriteDuplicates(path string, trips []core.Trip) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(DuplicateHeader); err != nil {
		return err
	}
	for i := range trips {
		if err := w.Write(DuplicateRecord(&trips[i])); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// DuplicateRecord renders one trip in DuplicateHeader order.
func DuplicateRecord(t *core.Trip) []string {
	return []string{
		t.PickupRaw,
		t.DropoffRaw,
		formatUTC(t.PickupUTC),
		formatUTC(t.DropoffUTC),
		strconv.Itoa(t.PassengerCount),
		strconv.FormatFloat(t.TripDistance, 'f', -1, 64),
		string(t.StoreAndForward),
		strconv.Itoa(t.PULocationID),
		strconv.Itoa(t.DOLocationID),
		core.FormatDecimal(t.FareAmount),
		core.FormatDecimal(t.TipAmount),
	}
}

func formatUTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

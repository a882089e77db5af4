package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// row builds a RawRow from alternating column names and values.
func row(kv ...string) RawRow {
	var header, cells []string
	for i := 0; i+1 < len(kv); i += 2 {
		header = append(header, kv[i])
		cells = append(cells, kv[i+1])
	}
	return NewRawRow(header, cells)
}

// validRow returns a row that passes every rule. Overrides replace or add
// columns.
func validRow(overrides ...string) RawRow {
	base := map[string]string{
		ColPickup:          "03/01/2023 02:30:00 AM",
		ColDropoff:         "03/01/2023 02:45:00 AM",
		ColPassengerCount:  "1",
		ColTripDistance:    "2.5",
		ColStoreAndForward: "N",
		ColPULocationID:    "100",
		ColDOLocationID:    "200",
		ColFareAmount:      "12.50",
		ColTipAmount:       "2.00",
	}
	for i := 0; i+1 < len(overrides); i += 2 {
		base[overrides[i]] = overrides[i+1]
	}
	var kv []string
	for _, col := range TripColumns {
		if v, ok := base[col]; ok {
			kv = append(kv, col, v)
			delete(base, col)
		}
	}
	for col, v := range base {
		kv = append(kv, col, v)
	}
	return row(kv...)
}

func TestParseRow_Valid(t *testing.T) {
	trip, err := ParseRow(validRow(), 1)
	require.NoError(t, err)

	assert.Equal(t, "03/01/2023 02:30:00 AM", trip.PickupRaw)
	assert.Equal(t, "03/01/2023 02:45:00 AM", trip.DropoffRaw)
	assert.Equal(t, 1, trip.PassengerCount)
	assert.Equal(t, 2.5, trip.TripDistance)
	assert.Equal(t, StoreAndForwardNo, trip.StoreAndForward)
	assert.Equal(t, 100, trip.PULocationID)
	assert.Equal(t, 200, trip.DOLocationID)
	assert.Equal(t, "12.50", FormatDecimal(trip.FareAmount))
	assert.Equal(t, "2.00", FormatDecimal(trip.TipAmount))
	assert.Empty(t, trip.Defaulted)
	assert.True(t, trip.PickupUTC.IsZero(), "parser must not convert timestamps")
}

func TestParseRow_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		row   RawRow
		field string
	}{
		{"pickup column absent", row(ColDropoff, "03/01/2023 02:45:00 AM"), ColPickup},
		{"pickup empty", validRow(ColPickup, "  "), ColPickup},
		{"dropoff column absent", row(ColPickup, "03/01/2023 02:30:00 AM"), ColDropoff},
		{"dropoff empty", validRow(ColDropoff, ""), ColDropoff},
		{"short record", NewRawRow([]string{ColPickup, ColDropoff}, []string{"03/01/2023 02:30:00 AM"}), ColDropoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRow(tt.row, 7)
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, tt.field, missing.Field)
			assert.Equal(t, 7, missing.Row)
		})
	}
}

func TestParseRow_ParseOrZero(t *testing.T) {
	trip, err := ParseRow(validRow(
		ColPassengerCount, "abc",
		ColTripDistance, "far",
		ColPULocationID, "",
		ColDOLocationID, "x1",
		ColFareAmount, "n/a",
		ColTipAmount, "-4.00",
	), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, trip.PassengerCount)
	assert.Equal(t, 0.0, trip.TripDistance)
	assert.Equal(t, 0, trip.PULocationID)
	assert.Equal(t, 0, trip.DOLocationID)
	assert.Equal(t, "0", FormatDecimal(trip.FareAmount))
	assert.Equal(t, "0", FormatDecimal(trip.TipAmount))
	assert.ElementsMatch(t, []string{
		ColPassengerCount, ColTripDistance, ColPULocationID, ColDOLocationID, ColFareAmount, ColTipAmount,
	}, trip.Defaulted)
}

func TestParseRow_OptionalColumnsAbsent(t *testing.T) {
	trip, err := ParseRow(row(
		ColPickup, "03/01/2023 02:30:00 AM",
		ColDropoff, "03/01/2023 02:45:00 AM",
	), 1)
	require.NoError(t, err)

	assert.Equal(t, 0, trip.PassengerCount)
	assert.Equal(t, StoreAndForwardYes, trip.StoreAndForward)
	assert.True(t, trip.FareAmount.Valid)
	assert.Len(t, trip.Defaulted, 6)
}

func TestParseRow_HeaderCaseInsensitive(t *testing.T) {
	trip, err := ParseRow(row(
		"TPEP_PICKUP_DATETIME", "03/01/2023 02:30:00 AM",
		"Tpep_Dropoff_Datetime", "03/01/2023 02:45:00 AM",
		"pulocationid", "42",
	), 1)
	require.NoError(t, err)
	assert.Equal(t, 42, trip.PULocationID)
}

func TestParseStoreAndForward(t *testing.T) {
	tests := []struct {
		in   string
		want StoreAndForward
	}{
		{"N", StoreAndForwardNo},
		{"Y", StoreAndForwardYes},
		{"n", StoreAndForwardYes},
		{"No", StoreAndForwardYes},
		{"", StoreAndForwardYes},
		{"anything", StoreAndForwardYes},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStoreAndForward(tt.in), "ParseStoreAndForward(%q)", tt.in)
	}
}

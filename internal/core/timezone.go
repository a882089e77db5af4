package core

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone data must not depend on the host
)

// SourceLayout is the timestamp layout of the input columns,
// e.g. "03/01/2023 02:30:00 AM".
const SourceLayout = "01/02/2006 03:04:05 PM"

// DefaultSourceZone is the zone the input timestamps are recorded in.
const DefaultSourceZone = "America/New_York"

// Normalizer converts source-local wall clock timestamps to UTC.
type Normalizer struct {
	loc    *time.Location
	layout string
}

// NewNormalizer loads the named IANA zone.
func NewNormalizer(zone string) (*Normalizer, error) {
	if zone == "" {
		zone = DefaultSourceZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", zone, err)
	}
	return &Normalizer{loc: loc, layout: SourceLayout}, nil
}

// Location returns the source zone.
func (n *Normalizer) Location() *time.Location { return n.loc }

// Normalize fills in PickupUTC and DropoffUTC from the raw text, pickup
// first. The trip is left untouched on error.
func (n *Normalizer) Normalize(trip *Trip, row int) error {
	pickup, err := n.ToUTC(trip.PickupRaw, ColPickup, row)
	if err != nil {
		return err
	}
	dropoff, err := n.ToUTC(trip.DropoffRaw, ColDropoff, row)
	if err != nil {
		return err
	}
	trip.PickupUTC, trip.DropoffUTC = pickup, dropoff
	return nil
}

// ToUTC parses one local timestamp and returns the UTC instant.
//
// A wall clock time skipped by a daylight saving transition yields a
// ConversionError. A time that occurs twice resolves to standard time.
func (n *Normalizer) ToUTC(value, field string, row int) (time.Time, error) {
	wall, err := time.Parse(n.layout, value)
	if err != nil {
		return time.Time{}, &FormatError{Row: row, Field: field, Value: value, Layout: n.layout, Err: err}
	}

	t := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), 0, n.loc)
	if !sameWallClock(t, wall) {
		return time.Time{}, &ConversionError{
			Row:    row,
			Field:  field,
			Value:  value,
			Reason: fmt.Sprintf("local time does not exist in %s", n.loc),
		}
	}

	if t.IsDST() {
		for _, shift := range []time.Duration{-time.Hour, time.Hour} {
			alt := t.Add(shift)
			if !alt.IsDST() && sameWallClock(alt, wall) {
				t = alt
				break
			}
		}
	}

	return t.UTC(), nil
}

// sameWallClock compares the calendar fields of t in its own location with
// those of wall.
func sameWallClock(t, wall time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := wall.Date()
	h1, mi1, s1 := t.Clock()
	h2, mi2, s2 := wall.Clock()
	return y1 == y2 && m1 == m2 && d1 == d2 && h1 == h2 && mi1 == mi2 && s1 == s2
}

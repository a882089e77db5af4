package core

import (
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// IdentityKey is the duplicate-detection key of a trip: raw pickup text,
// raw dropoff text and passenger count. Fare, distance and locations do
// not participate.
func IdentityKey(t *Trip) string {
	var b strings.Builder
	b.Grow(len(t.PickupRaw) + len(t.DropoffRaw) + 4)
	b.WriteString(t.PickupRaw)
	b.WriteByte('|')
	b.WriteString(t.DropoffRaw)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(t.PassengerCount))
	return b.String()
}

// Deduplicator classifies trips by first occurrence within one batch.
// It is not safe for concurrent use.
type Deduplicator struct {
	seen mapset.Set[string]
}

// NewDeduplicator returns an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: mapset.NewThreadUnsafeSet[string]()}
}

// Observe records t and reports whether its key was new.
func (d *Deduplicator) Observe(t *Trip) bool {
	return d.seen.Add(IdentityKey(t))
}

// Len returns the number of distinct keys seen.
func (d *Deduplicator) Len() int {
	return d.seen.Cardinality()
}

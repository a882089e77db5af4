package core

// validation.go holds the ordered rule chain every trip must pass.
//
// Field rules run on the parsed candidate before timezone conversion;
// temporal rules run after it. Within each phase the first violated rule
// rejects the row and later rules are not evaluated.

import (
	"fmt"
	"time"
)

// Rule names, in evaluation order.
const (
	RulePassengerCount = "passenger_count"
	RuleTripDistance   = "trip_distance"
	RulePULocation     = "pu_location"
	RuleDOLocation     = "do_location"
	RuleFareAmount     = "fare_amount"
	RuleTipAmount      = "tip_amount"
	RuleTripOrder      = "trip_order"
	RuleTripDuration   = "trip_duration"
	RulePickupRange    = "pickup_range"
	RuleDropoffRange   = "dropoff_range"
)

// Limits enforced by the rule chain.
const (
	MaxPassengers   = 10
	MaxTripDistance = 1000.0
	MinLocationID   = 1
	MaxLocationID   = 265
	MaxFareAmount   = 500
	MaxTipAmount    = 100
	MaxTripDuration = 24 * time.Hour
)

// EarliestTrip is the lower bound for both trip timestamps.
var EarliestTrip = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Rule is one named check. Check returns the message and offending value
// when the trip violates the rule.
type Rule struct {
	Name  string
	Check func(t *Trip, now time.Time) (msg string, value any, ok bool)
}

// Validator evaluates the rule chain.
type Validator struct {
	fieldRules    []Rule
	temporalRules []Rule
	now           func() time.Time
}

// NewValidator returns a validator with the standard rule chain. now
// supplies the upper bound for timestamps; nil means time.Now.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		fieldRules:    FieldRules(),
		temporalRules: TemporalRules(),
		now:           now,
	}
}

// ValidateFields runs the rules that only need parsed values.
func (v *Validator) ValidateFields(t *Trip, row int) error {
	return v.apply(v.fieldRules, t, row)
}

// ValidateTimes runs the rules that need UTC timestamps.
func (v *Validator) ValidateTimes(t *Trip, row int) error {
	return v.apply(v.temporalRules, t, row)
}

// RuleNames lists every rule in evaluation order.
func (v *Validator) RuleNames() []string {
	names := make([]string, 0, len(v.fieldRules)+len(v.temporalRules))
	for _, r := range v.fieldRules {
		names = append(names, r.Name)
	}
	for _, r := range v.temporalRules {
		names = append(names, r.Name)
	}
	return names
}

func (v *Validator) apply(rules []Rule, t *Trip, row int) error {
	now := v.now().UTC()
	for _, r := range rules {
		if msg, value, ok := r.Check(t, now); !ok {
			return &RuleViolation{Rule: r.Name, Row: row, Value: value, Message: msg}
		}
	}
	return nil
}

// FieldRules returns the pre-conversion rules in order.
func FieldRules() []Rule {
	return []Rule{
		{Name: RulePassengerCount, Check: func(t *Trip, _ time.Time) (string, any, bool) {
			if t.PassengerCount < 0 || t.PassengerCount > MaxPassengers {
				return fmt.Sprintf("passenger count must be between 0 and %d", MaxPassengers), t.PassengerCount, false
			}
			return "", nil, true
		}},
		{Name: RuleTripDistance, Check: func(t *Trip, _ time.Time) (string, any, bool) {
			switch {
			case t.TripDistance < 0:
				return "trip distance cannot be negative", t.TripDistance, false
			case t.TripDistance > MaxTripDistance:
				return fmt.Sprintf("trip distance exceeds %g miles", MaxTripDistance), t.TripDistance, false
			}
			return "", nil, true
		}},
		locationRule(RulePULocation, "pickup", func(t *Trip) int { return t.PULocationID }),
		locationRule(RuleDOLocation, "dropoff", func(t *Trip) int { return t.DOLocationID }),
		{Name: RuleFareAmount, Check: func(t *Trip, _ time.Time) (string, any, bool) {
			if CompareDecimal(t.FareAmount, MaxFareAmount) > 0 {
				return fmt.Sprintf("fare amount exceeds %d", MaxFareAmount), FormatDecimal(t.FareAmount), false
			}
			return "", nil, true
		}},
		{Name: RuleTipAmount, Check: func(t *Trip, _ time.Time) (string, any, bool) {
			if CompareDecimal(t.TipAmount, MaxTipAmount) > 0 {
				return fmt.Sprintf("tip amount exceeds %d", MaxTipAmount), FormatDecimal(t.TipAmount), false
			}
			return "", nil, true
		}},
	}
}

func locationRule(name, which string, id func(*Trip) int) Rule {
	return Rule{Name: name, Check: func(t *Trip, _ time.Time) (string, any, bool) {
		v := id(t)
		switch {
		case v < MinLocationID:
			return fmt.Sprintf("%s location id must be positive", which), v, false
		case v > MaxLocationID:
			return fmt.Sprintf("%s location id exceeds %d", which, MaxLocationID), v, false
		}
		return "", nil, true
	}}
}

// TemporalRules returns the post-conversion rules in order.
func TemporalRules() []Rule {
	return []Rule{
		{Name: RuleTripOrder, Check: func(t *Trip, _ time.Time) (string, any, bool) {
			if t.DropoffUTC.Before(t.PickupUTC) {
				return "dropoff is before pickup", t.DropoffRaw, false
			}
			return "", nil, true
		}},
		{Name: RuleTripDuration, Check: func(t *Trip, _ time.Time) (string, any, bool) {
			if d := t.DropoffUTC.Sub(t.PickupUTC); d > MaxTripDuration {
				return fmt.Sprintf("trip lasts longer than %s", MaxTripDuration), d.String(), false
			}
			return "", nil, true
		}},
		{Name: RulePickupRange, Check: func(t *Trip, now time.Time) (string, any, bool) {
			if !inTripRange(t.PickupUTC, now) {
				return "pickup time out of range", t.PickupRaw, false
			}
			return "", nil, true
		}},
		{Name: RuleDropoffRange, Check: func(t *Trip, now time.Time) (string, any, bool) {
			if !inTripRange(t.DropoffUTC, now) {
				return "dropoff time out of range", t.DropoffRaw, false
			}
			return "", nil, true
		}},
	}
}

func inTripRange(ts, now time.Time) bool {
	return !ts.Before(EarliestTrip) && !ts.After(now)
}

package core

// ParseRow converts one raw row into a trip candidate. Only the two
// timestamp columns are required; every numeric column falls back to zero
// and is listed in Trip.Defaulted when its text does not parse.
// The returned trip carries raw timestamps only; see Normalizer.
func ParseRow(row RawRow, index int) (*Trip, error) {
	pickup, ok := row.Get(ColPickup)
	if !ok || pickup == "" {
		return nil, &MissingFieldError{Row: index, Field: ColPickup}
	}
	dropoff, ok := row.Get(ColDropoff)
	if !ok || dropoff == "" {
		return nil, &MissingFieldError{Row: index, Field: ColDropoff}
	}

	trip := &Trip{
		PickupRaw:  pickup,
		DropoffRaw: dropoff,
	}

	cell := func(col string) string {
		v, _ := row.Get(col)
		return v
	}
	note := func(col string, defaulted bool) {
		if defaulted {
			trip.Defaulted = append(trip.Defaulted, col)
		}
	}

	passengers := ParseOrDefault(cell(ColPassengerCount), ParseInt)
	trip.PassengerCount = passengers.Value
	note(ColPassengerCount, passengers.Defaulted)

	distance := ParseOrDefault(cell(ColTripDistance), ParseFloat)
	trip.TripDistance = distance.Value
	note(ColTripDistance, distance.Defaulted)

	trip.StoreAndForward = ParseStoreAndForward(cell(ColStoreAndForward))

	pu := ParseOrDefault(cell(ColPULocationID), ParseInt)
	trip.PULocationID = pu.Value
	note(ColPULocationID, pu.Defaulted)

	do := ParseOrDefault(cell(ColDOLocationID), ParseInt)
	trip.DOLocationID = do.Value
	note(ColDOLocationID, do.Defaulted)

	fare := ParseMoney(cell(ColFareAmount))
	trip.FareAmount = fare.Value
	note(ColFareAmount, fare.Defaulted)

	tip := ParseMoney(cell(ColTipAmount))
	trip.TipAmount = tip.Value
	note(ColTipAmount, tip.Defaulted)

	return trip, nil
}

// ParseStoreAndForward maps exactly "N" to No and anything else, including
// an empty or missing cell, to Yes.
func ParseStoreAndForward(s string) StoreAndForward {
	if s == "N" {
		return StoreAndForwardNo
	}
	return StoreAndForwardYes
}

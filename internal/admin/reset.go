// Package admin provides administrative operations on the destination table.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

// ErrNotConfirmed is returned when a reset is requested without confirmation.
var ErrNotConfirmed = errors.New("reset not confirmed")

// Table is a destination table that can be emptied and counted.
type Table interface {
	Truncate(ctx context.Context) error
	CountTrips(ctx context.Context) (int64, error)
}

// Reset empties the destination table and returns how many rows it held.
// This is destructive, so confirm must be true.
func Reset(ctx context.Context, t Table, confirm bool) (int64, error) {
	if !confirm {
		return 0, ErrNotConfirmed
	}

	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	before, err := t.CountTrips(ctx)
	if err != nil {
		return 0, err
	}
	if err := t.Truncate(ctx); err != nil {
		return 0, fmt.Errorf("reset: %w", err)
	}

	slog.Warn("destination table reset", "rows_removed", before)
	return before, nil
}

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ContextCheckInterval is how often, in rows, Process checks for cancellation.
// Values below 1 check on every row.
var ContextCheckInterval = 1000

// Pipeline parses, validates, normalizes and deduplicates raw rows.
type Pipeline struct {
	validator  *Validator
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewPipeline wires the stages together. A nil logger discards rejection
// diagnostics.
func NewPipeline(v *Validator, n *Normalizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{validator: v, normalizer: n, logger: logger}
}

// ProcessRow runs one row through parse, field rules, timezone conversion
// and temporal rules. index is the 1-based data row number.
func (p *Pipeline) ProcessRow(row RawRow, index int) RowResult {
	trip, err := ParseRow(row, index)
	if err != nil {
		return RowResult{Row: index, Err: err}
	}
	if err := p.validator.ValidateFields(trip, index); err != nil {
		return RowResult{Row: index, Err: err}
	}
	if err := p.normalizer.Normalize(trip, index); err != nil {
		return RowResult{Row: index, Err: err}
	}
	if err := p.validator.ValidateTimes(trip, index); err != nil {
		return RowResult{Row: index, Err: err}
	}
	return RowResult{Row: index, Trip: trip}
}

// Process folds every row of src into a Batch. Row-scoped failures are
// logged and recorded in Batch.Rejected; a source read error or context
// cancellation aborts and returns the error.
func (p *Pipeline) Process(ctx context.Context, src Source) (*Batch, error) {
	batch := &Batch{}
	dedup := NewDeduplicator()
	interval := max(ContextCheckInterval, 1)

	for index := 1; ; index++ {
		if index%interval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w at row %d: %v", ErrSourceRead, index, err)
		}
		batch.RowsRead++

		res := p.ProcessRow(row, index)
		if !res.OK() {
			rej, ok := RejectionOf(index, res.Err)
			if !ok {
				return nil, res.Err
			}
			batch.Rejected = append(batch.Rejected, rej)
			p.logRejection(rej, res.Err)
			continue
		}

		if len(res.Trip.Defaulted) > 0 {
			p.logger.Debug("row values defaulted to zero", "row", index, "columns", res.Trip.Defaulted)
		}

		if dedup.Observe(res.Trip) {
			batch.Kept = append(batch.Kept, *res.Trip)
		} else {
			batch.Duplicates = append(batch.Duplicates, *res.Trip)
		}
	}

	return batch, nil
}

func (p *Pipeline) logRejection(rej Rejection, err error) {
	attrs := []any{"row", rej.Row, "rule", rej.Rule, "reason", rej.Reason}
	var violation *RuleViolation
	if errors.As(err, &violation) {
		attrs = append(attrs, "value", violation.Value)
	}
	p.logger.Warn("row rejected", attrs...)
}

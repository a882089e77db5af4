package core

import (
	"errors"
	"fmt"
)

// Run-scoped failures. A run that hits one of these aborts.
var (
	ErrInputNotFound         = errors.New("input file not found")
	ErrDuplicatesNotWritable = errors.New("duplicates file not writable")
	ErrSourceRead            = errors.New("reading source")
	ErrLoad                  = errors.New("bulk load failed")
	ErrCount                 = errors.New("counting loaded trips failed")
)

// ErrRunBusy is returned when all run slots stay occupied for the wait
// timeout. Callers should retry after a short delay.
var ErrRunBusy = errors.New("another run is in progress, please try again later")

// Rule names reported for row-scoped errors that are not rule violations.
const (
	RuleMissingField = "missing_field"
	RuleFormat       = "timestamp_format"
	RuleConversion   = "timezone_conversion"
)

// MissingFieldError is returned when a required column is absent or empty.
type MissingFieldError struct {
	Row   int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d: missing required field %s", e.Row, e.Field)
}

// RuleViolation is returned when a row breaks a validation rule.
type RuleViolation struct {
	Rule    string
	Row     int
	Value   any
	Message string
}

func (e *RuleViolation) Error() string {
	return fmt.Sprintf("row %d: %s: %s (value %v)", e.Row, e.Rule, e.Message, e.Value)
}

// FormatError is returned when a timestamp does not match the source layout.
type FormatError struct {
	Row    int
	Field  string
	Value  string
	Layout string
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("row %d: %s %q does not match layout %q", e.Row, e.Field, e.Value, e.Layout)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ConversionError is returned when a well-formed local timestamp cannot be
// resolved to a single UTC instant.
type ConversionError struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("row %d: %s %q: %s", e.Row, e.Field, e.Value, e.Reason)
}

// RejectionOf describes a row-scoped error as a Rejection. It reports false
// for errors that are not row-scoped.
func RejectionOf(row int, err error) (Rejection, bool) {
	var (
		missing   *MissingFieldError
		violation *RuleViolation
		format    *FormatError
		conv      *ConversionError
	)

	switch {
	case errors.As(err, &violation):
		return Rejection{Row: row, Rule: violation.Rule, Reason: violation.Message, Err: err}, true
	case errors.As(err, &missing):
		return Rejection{Row: row, Rule: RuleMissingField, Reason: "missing " + missing.Field, Err: err}, true
	case errors.As(err, &format):
		return Rejection{Row: row, Rule: RuleFormat, Reason: format.Error(), Err: err}, true
	case errors.As(err, &conv):
		return Rejection{Row: row, Rule: RuleConversion, Reason: conv.Reason, Err: err}, true
	default:
		return Rejection{}, false
	}
}

// IsRowError reports whether err only affects a single row.
func IsRowError(err error) bool {
	_, ok := RejectionOf(0, err)
	return ok
}

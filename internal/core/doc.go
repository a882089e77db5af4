// Package core implements the taxi-trip ETL: reading raw CSV rows,
// turning them into typed trips, validating and normalizing them, and
// separating first occurrences from duplicates.
//
// # Flow
//
// Each data row passes through the same stages in order:
//
//  1. [ParseRow] builds a [Trip] from the raw cells. Only the two timestamp
//     columns are required; numeric columns fall back to zero.
//  2. [Validator.ValidateFields] applies the field rules.
//  3. [Normalizer.Normalize] converts the US Eastern wall clock timestamps
//     to UTC.
//  4. [Validator.ValidateTimes] applies the temporal rules.
//  5. [Deduplicator] keeps the first trip per [IdentityKey].
//
// [Pipeline.Process] folds a [Source] into a [Batch]. [Service.Run] wraps
// that fold with the file checks, the bulk load into a [TripLoader], the
// duplicates file and the final row count.
//
// # Error Handling
//
// Errors are either row-scoped or run-scoped. Row-scoped errors
// ([MissingFieldError], [RuleViolation], [FormatError], [ConversionError])
// reject a single row: it is logged with its row number and rule and the
// run continues. Anything else aborts the run and is returned wrapped
// around one of the sentinel errors such as [ErrInputNotFound] or [ErrLoad].
//
// # Concurrency
//
// A Pipeline run is single-threaded. [Service] serializes whole runs with a
// [RunLimiter], so HTTP and directory-watch triggers never interleave loads.
package core

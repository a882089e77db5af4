package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/TaxiETL/internal/logging"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// Timezone is the IANA zone of the source timestamps.
	Timezone string
	// KeptArchivePath, when set together with an Archiver, receives a copy
	// of the kept trips after they are loaded.
	KeptArchivePath string
	Archiver        KeptArchiver
	// MaxConcurrentRuns and MaxWait configure the run limiter.
	MaxConcurrentRuns int
	MaxWait           time.Duration
	// RunTimeout bounds a whole run; zero means no bound.
	RunTimeout time.Duration
	// Now supplies the current time for the timestamp range rules.
	Now func() time.Time
}

// Service runs the extract, transform and load sequence.
type Service struct {
	loader     TripLoader
	duplicates DuplicateSink
	validator  *Validator
	normalizer *Normalizer
	limiter    *RunLimiter
	opts       ServiceOptions
}

// NewService creates a Service writing kept trips to loader and duplicates
// to dups.
func NewService(loader TripLoader, dups DuplicateSink, opts ServiceOptions) (*Service, error) {
	if loader == nil || dups == nil {
		return nil, errors.New("core: loader and duplicate sink are required")
	}
	normalizer, err := NewNormalizer(opts.Timezone)
	if err != nil {
		return nil, err
	}
	return &Service{
		loader:     loader,
		duplicates: dups,
		validator:  NewValidator(opts.Now),
		normalizer: normalizer,
		limiter:    NewRunLimiter(opts.MaxConcurrentRuns, opts.MaxWait),
		opts:       opts,
	}, nil
}

// Limiter exposes the run limiter for shutdown and status reporting.
func (s *Service) Limiter() *RunLimiter { return s.limiter }

// RunRequest names the input and duplicates files of a run.
type RunRequest struct {
	InputPath      string
	DuplicatesPath string
}

// RunResult summarizes a completed run.
type RunResult struct {
	RunID          string         `json:"run_id" yaml:"run_id"`
	Input          string         `json:"input" yaml:"input"`
	DuplicatesPath string         `json:"duplicates_path" yaml:"duplicates_path"`
	RowsRead       int            `json:"rows_read" yaml:"rows_read"`
	Kept           int            `json:"kept" yaml:"kept"`
	Duplicates     int            `json:"duplicates" yaml:"duplicates"`
	Rejected       int            `json:"rejected" yaml:"rejected"`
	RejectedByRule map[string]int `json:"rejected_by_rule,omitempty" yaml:"rejected_by_rule,omitempty"`
	Loaded         int64          `json:"loaded" yaml:"loaded"`
	TableCount     int64          `json:"table_count" yaml:"table_count"`
	StartedAt      time.Time      `json:"started_at" yaml:"started_at"`
	Duration       time.Duration  `json:"duration_ns" yaml:"duration"`
}

// Run processes the CSV file at req.InputPath.
func (s *Service) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	if _, err := os.Stat(req.InputPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, req.InputPath)
		}
		return nil, fmt.Errorf("stat input %s: %w", req.InputPath, err)
	}

	return s.execute(ctx, req.InputPath, req.DuplicatesPath, func() (*CSVSource, error) {
		return OpenCSVSource(req.InputPath)
	})
}

// RunReader processes a CSV stream, such as an HTTP upload. name only
// labels the run.
func (s *Service) RunReader(ctx context.Context, name string, r io.Reader, duplicatesPath string) (*RunResult, error) {
	return s.execute(ctx, name, duplicatesPath, func() (*CSVSource, error) {
		return NewCSVSource(r)
	})
}

// CountTrips returns the destination row count.
func (s *Service) CountTrips(ctx context.Context) (int64, error) {
	n, err := s.loader.CountTrips(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCount, err)
	}
	return n, nil
}

func (s *Service) execute(ctx context.Context, input, duplicatesPath string, open func() (*CSVSource, error)) (*RunResult, error) {
	result := &RunResult{
		RunID:          uuid.New().String(),
		Input:          input,
		DuplicatesPath: duplicatesPath,
	}

	release, err := s.limiter.Acquire(ctx, ActiveRun{RunID: result.RunID, Input: input})
	if err != nil {
		return nil, err
	}
	defer release()
	result.StartedAt = time.Now()

	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	ctx = logging.WithRunID(ctx, result.RunID)
	logger := logging.WithFields(ctx, "input", input)
	logger.Info("run started", "duplicates", duplicatesPath)

	if err := s.duplicates.CheckWritable(duplicatesPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDuplicatesNotWritable, duplicatesPath, err)
	}

	src, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	defer src.Close()

	batch, err := NewPipeline(s.validator, s.normalizer, logger).Process(ctx, src)
	if err != nil {
		return nil, err
	}
	result.RowsRead = batch.RowsRead
	result.Kept = len(batch.Kept)
	result.Duplicates = len(batch.Duplicates)
	result.Rejected = len(batch.Rejected)
	result.RejectedByRule = rejectionsByRule(batch.Rejected)

	logger.Info("rows classified",
		"rows", batch.RowsRead,
		"kept", result.Kept,
		"duplicates", result.Duplicates,
		"rejected", result.Rejected,
	)

	loaded, err := s.loader.BulkLoad(ctx, batch.Kept)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}
	result.Loaded = loaded

	if s.opts.Archiver != nil && s.opts.KeptArchivePath != "" {
		if err := s.opts.Archiver.WriteKept(s.opts.KeptArchivePath, batch.Kept); err != nil {
			return nil, fmt.Errorf("archive kept trips: %w", err)
		}
		logger.Debug("kept trips archived", "path", s.opts.KeptArchivePath)
	}

	if err := s.duplicates.WriteDuplicates(duplicatesPath, batch.Duplicates); err != nil {
		return nil, fmt.Errorf("write duplicates: %w", err)
	}

	count, err := s.CountTrips(ctx)
	if err != nil {
		return nil, err
	}
	result.TableCount = count
	result.Duration = time.Since(result.StartedAt)

	logger.Info("ETL completed",
		slog.Int64("loaded", loaded),
		slog.Int64("table_rows", count),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

func rejectionsByRule(rejected []Rejection) map[string]int {
	if len(rejected) == 0 {
		return nil
	}
	out := make(map[string]int)
	for _, r := range rejected {
		out[r.Rule]++
	}
	return out
}

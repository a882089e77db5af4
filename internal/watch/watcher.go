// Package watch runs the ETL for CSV files dropped into a directory.
//
// Files are processed one at a time in arrival order. A processed file and
// its duplicates report are moved into the Uploaded subdirectory; a file
// whose run fails stays where it is so it can be retried.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
)

// DoneDir is the subdirectory processed files are moved to.
const DoneDir = "Uploaded"

// DuplicatesSuffix is appended to a processed file's base name to name its
// duplicates report.
const DuplicatesSuffix = " - duplicates.csv"

// Runner is the part of core.Service the watcher drives.
type Runner interface {
	Run(ctx context.Context, req core.RunRequest) (*core.RunResult, error)
}

// Watcher feeds CSV files from a directory to a Runner.
type Watcher struct {
	runner   Runner
	dir      string
	doneDir  string
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	queue  chan string
}

// New creates a Watcher for cfg.Dir, creating the directory and its
// Uploaded subdirectory when missing.
func New(runner Runner, cfg config.WatchConfig) (*Watcher, error) {
	doneDir := filepath.Join(cfg.Dir, DoneDir)
	if err := os.MkdirAll(doneDir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", doneDir, err)
	}
	return &Watcher{
		runner:   runner,
		dir:      cfg.Dir,
		doneDir:  doneDir,
		debounce: cfg.Debounce,
		timers:   make(map[string]*time.Timer),
		queue:    make(chan string, 64),
	}, nil
}

// DuplicatesPathFor returns where the duplicates of input are written.
func (w *Watcher) DuplicatesPathFor(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(w.doneDir, base+DuplicatesSuffix)
}

// Process runs the ETL for one file and moves it into the Uploaded
// directory when the run succeeds. A failed file stays where it is.
func (w *Watcher) Process(ctx context.Context, path string) (*core.RunResult, error) {
	result, err := w.runner.Run(ctx, core.RunRequest{
		InputPath:      path,
		DuplicatesPath: w.DuplicatesPathFor(path),
	})
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(w.doneDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return result, fmt.Errorf("move %s to %s: %w", path, w.doneDir, err)
	}
	slog.Info("file processed", "file", path, "moved_to", dest, "run_id", result.RunID)
	return result, nil
}

// ProcessExisting processes the CSV files already in the directory, in name
// order. Every file is attempted; the failures are returned together.
func (w *Watcher) ProcessExisting(ctx context.Context) error {
	files, err := w.pending()
	if err != nil {
		return err
	}

	var errs *multierror.Error
	for _, path := range files {
		if ctx.Err() != nil {
			errs = multierror.Append(errs, ctx.Err())
			break
		}
		if _, err := w.Process(ctx, path); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
	}
	return errs.ErrorOrNil()
}

func (w *Watcher) pending() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isCSV(e.Name()) {
			files = append(files, filepath.Join(w.dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Run processes existing files, then watches the directory until ctx is
// cancelled. Failed runs are logged and do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	if err := w.ProcessExisting(ctx); err != nil {
		slog.Warn("some existing files failed", "dir", w.dir, "error", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case path := <-w.queue:
				if _, err := os.Stat(path); err != nil {
					continue
				}
				if _, err := w.Process(ctx, path); err != nil {
					slog.Error("file not processed", "file", path, "error", err)
				}
			}
		}
	}()

	slog.Info("watching for CSV files", "dir", w.dir, "debounce", w.debounce)

	var errs *multierror.Error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case event, ok := <-fsw.Events:
			if !ok {
				break loop
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !isCSV(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				break loop
			}
			slog.Error("watcher error", "dir", w.dir, "error", err)
		}
	}

	w.stopTimers()
	if err := fsw.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close watcher: %w", err))
	}
	wg.Wait()

	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// schedule queues path once it has been quiet for the debounce interval.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.queue <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func isCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JonMunkholm/TaxiETL/internal/config"
	"github.com/JonMunkholm/TaxiETL/internal/core"
	"github.com/JonMunkholm/TaxiETL/internal/export"
	"github.com/JonMunkholm/TaxiETL/internal/logging"
	"github.com/JonMunkholm/TaxiETL/internal/store"
)

// flags is the viper instance command-line flags are bound to.
var flags = viper.New()

var rootCmd = &cobra.Command{
	Use:           "taxietl",
	Short:         "Load NYC taxi trip CSV files into a database",
	Long:          `Parse, validate and deduplicate taxi trips from CSV, convert their timestamps from US Eastern to UTC, and bulk load the unique trips.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (env "+config.FileEnv+")")
	pf.String("db-url", "", "database connection string (env DATABASE_URL)")
	pf.String("driver", "", "database driver: pgx, postgres, mysql or sqlite (env DATABASE_DRIVER)")
	pf.String("table", "", "destination table (env DB_TABLE)")
	pf.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	pf.String("log-format", "", "text or json (env LOG_FORMAT)")

	bindFlags(rootCmd, map[string]string{
		"config":     config.FileEnv,
		"db-url":     "DATABASE_URL",
		"driver":     "DATABASE_DRIVER",
		"table":      "DB_TABLE",
		"log-level":  "LOG_LEVEL",
		"log-format": "LOG_FORMAT",
	})

	rootCmd.AddCommand(runCmd, countCmd, serveCmd, watchCmd, resetCmd)
}

// bindFlags binds flags to the config keys they override. Only string flags
// with empty defaults are bound, so an unset flag never hides the env.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		f := cmd.PersistentFlags().Lookup(flag)
		if f == nil {
			f = cmd.Flags().Lookup(flag)
		}
		if err := flags.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	store   store.Store
	service *core.Service
	logs    io.Closer
}

// setup loads configuration, configures logging and connects to the
// database.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadFrom(flags)
	if err != nil {
		return nil, err
	}

	logs, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return nil, err
	}
	slog.Debug("configuration loaded", "config", cfg.String())

	st, err := store.Open(cmd.Context(), cfg)
	if err != nil {
		logs.Close()
		return nil, err
	}

	opts := core.ServiceOptions{
		Timezone:          cfg.Input.Timezone,
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		MaxWait:           cfg.Server.MaxWaitTime,
		RunTimeout:        cfg.Load.Timeout,
	}
	if cfg.Export.KeptParquetPath != "" {
		opts.KeptArchivePath = cfg.Export.KeptParquetPath
		opts.Archiver = export.ParquetArchive{}
	}

	svc, err := core.NewService(st, export.DuplicateFile{}, opts)
	if err != nil {
		st.Close()
		logs.Close()
		return nil, err
	}

	return &app{cfg: cfg, store: st, service: svc, logs: logs}, nil
}

func (a *app) Close() error {
	var errs *multierror.Error
	if err := a.store.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.logs.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close log file: %w", err))
	}
	return errs.ErrorOrNil()
}

// Package config provides centralized configuration management for taxietl.
// Values come from environment variables, an optional config file and bound
// command-line flags. Everything is validated on startup to fail fast on
// misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Input    InputConfig
	Database DatabaseConfig
	Load     LoadConfig
	Export   ExportConfig
	Server   ServerConfig
	Watch    WatchConfig
	Logging  LoggingConfig
}

// InputConfig describes where a run reads trips from and writes duplicates to.
type InputConfig struct {
	// Path is the CSV file a single run extracts from
	Path string `env:"INPUT_PATH" default:"data/sample-cab-data.csv"`

	// DuplicatesPath is overwritten on every run with the duplicate trips
	DuplicatesPath string `env:"DUPLICATES_PATH" default:"duplicates.csv"`

	// Timezone is the IANA zone the source timestamps are recorded in
	Timezone string `env:"SOURCE_TIMEZONE" default:"America/New_York"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the sink: pgx (COPY), postgres, mysql or sqlite
	Driver string `env:"DATABASE_DRIVER" default:"pgx"`

	// URL is the connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// Table receives the kept trips (default: taxi_trips)
	Table string `env:"DB_TABLE" default:"taxi_trips"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// LoadConfig controls how the kept batch reaches the database.
type LoadConfig struct {
	// BatchSize is rows per INSERT statement for database/sql drivers (default: 500)
	BatchSize int `env:"LOAD_BATCH_SIZE" default:"500"`

	// Timeout bounds a whole run, load included (default: 10m)
	Timeout time.Duration `env:"LOAD_TIMEOUT" default:"10m"`
}

// ExportConfig holds optional side outputs.
type ExportConfig struct {
	// KeptParquetPath, when set, receives a Parquet copy of the kept trips
	KeptParquetPath string `env:"KEPT_PARQUET_PATH"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxUploadSize is the largest accepted CSV upload in bytes (default: 100MB)
	MaxUploadSize int64 `env:"SERVER_MAX_UPLOAD_SIZE" default:"104857600"`

	// MaxConcurrentRuns is how many runs may execute at once (default: 1)
	MaxConcurrentRuns int `env:"RUN_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long a triggered run waits for a free slot (default: 30s)
	MaxWaitTime time.Duration `env:"RUN_MAX_WAIT" default:"30s"`
}

// WatchConfig holds directory watcher settings.
type WatchConfig struct {
	// Dir is the drop directory for incoming CSV files
	Dir string `env:"WATCH_DIR" default:"incoming"`

	// Debounce is how long a file must stay quiet before it is processed
	Debounce time.Duration `env:"WATCH_DEBOUNCE" default:"500ms"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File additionally receives every record as JSON when set
	File string `env:"LOG_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// FileEnv names the environment variable pointing at an explicit config file.
const FileEnv = "ETL_CONFIG_FILE"

// Load reads configuration from environment variables and an optional
// taxietl.{yaml,toml,json} in the working directory.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom is Load with a caller-supplied viper instance, so command-line
// flags bound with BindPFlag take precedence over the environment.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	if path := v.GetString(FileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("taxietl")
		v.AddConfigPath(".")
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := loadStruct(v, reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from viper keys named by
// the env tags.
func loadStruct(v *viper.Viper, rv reflect.Value) error {
	t := rv.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := rv.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(v, fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		value := strings.TrimSpace(v.GetString(envName))
		if value == "" && envAlt != "" {
			value = strings.TrimSpace(v.GetString(envAlt))
		}

		if value == "" {
			if required {
				return fmt.Errorf("required setting %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// The returned error lists every failure, not just the first.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Input.Path == "" {
		errs = multierror.Append(errs, errors.New("INPUT_PATH is required"))
	}
	if c.Input.DuplicatesPath == "" {
		errs = multierror.Append(errs, errors.New("DUPLICATES_PATH is required"))
	}
	if _, err := time.LoadLocation(c.Input.Timezone); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("SOURCE_TIMEZONE (%q) is not a known zone: %w", c.Input.Timezone, err))
	}

	validDrivers := map[string]bool{"pgx": true, "postgres": true, "mysql": true, "sqlite": true}
	if !validDrivers[c.Database.Driver] {
		errs = multierror.Append(errs, fmt.Errorf("DATABASE_DRIVER (%q) must be one of: pgx, postgres, mysql, sqlite", c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = multierror.Append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Database.Table == "" {
		errs = multierror.Append(errs, errors.New("DB_TABLE is required"))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = multierror.Append(errs, fmt.Errorf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = multierror.Append(errs, errors.New("DB_MAX_CONNS must be positive"))
	}
	if c.Database.MinConns < 0 {
		errs = multierror.Append(errs, errors.New("DB_MIN_CONNS must be non-negative"))
	}

	if c.Load.BatchSize <= 0 {
		errs = multierror.Append(errs, errors.New("LOAD_BATCH_SIZE must be positive"))
	}
	if c.Load.Timeout <= 0 {
		errs = multierror.Append(errs, errors.New("LOAD_TIMEOUT must be positive"))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierror.Append(errs, fmt.Errorf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = multierror.Append(errs, errors.New("SERVER_READ_TIMEOUT must be non-negative"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = multierror.Append(errs, errors.New("SERVER_SHUTDOWN_TIMEOUT must be positive"))
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = multierror.Append(errs, errors.New("SERVER_MAX_UPLOAD_SIZE must be positive"))
	}
	if c.Server.MaxConcurrentRuns <= 0 {
		errs = multierror.Append(errs, errors.New("RUN_MAX_CONCURRENT must be positive"))
	}
	if c.Server.MaxWaitTime <= 0 {
		errs = multierror.Append(errs, errors.New("RUN_MAX_WAIT must be positive"))
	}

	if c.Watch.Debounce < 0 {
		errs = multierror.Append(errs, errors.New("WATCH_DEBOUNCE must be non-negative"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = multierror.Append(errs, fmt.Errorf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = multierror.Append(errs, fmt.Errorf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	return errs.ErrorOrNil()
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Input: {Path: %q, DuplicatesPath: %q, Timezone: %q}, ",
		c.Input.Path, c.Input.DuplicatesPath, c.Input.Timezone))
	b.WriteString(fmt.Sprintf("Database: {Driver: %q, URL: [MASKED], Table: %q, MaxConns: %d, MinConns: %d}, ",
		c.Database.Driver, c.Database.Table, c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Load: {BatchSize: %d, Timeout: %s}, ", c.Load.BatchSize, c.Load.Timeout))
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d, MaxConcurrentRuns: %d}, ",
		c.Server.Host, c.Server.Port, c.Server.MaxConcurrentRuns))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

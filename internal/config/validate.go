package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minInterval        = 100 * time.Millisecond
	minShutdownTimeout = 1 * time.Second
	maxLatencyCeiling  = 1 * time.Minute
	minFailureRate     = 0.0
	maxFailureRate     = 1.0
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks cross-field constraints after the override chain
// has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.DBPath == "" {
		errs = append(errs, errors.New("db_path: cannot determine a database location; set store.db_path"))
	} else if !filepath.IsAbs(r.DBPath) {
		errs = append(errs, fmt.Errorf("db_path: must be absolute after expansion, got %q", r.DBPath))
	}

	if r.Remote.MaxLatency < r.Remote.MinLatency {
		errs = append(errs, fmt.Errorf("max_latency: must be >= min_latency (%s), got %s",
			r.Remote.MinLatency, r.Remote.MaxLatency))
	}

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("interval", s.Interval, minInterval)...)
	errs = append(errs, validateDurationMin("shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	if s.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch_size: must be >= 0 (0 = unbounded), got %d", s.BatchSize))
	}

	return errs
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	errs = append(errs, validateDurationRange("min_latency", r.MinLatency, 0, maxLatencyCeiling)...)
	errs = append(errs, validateDurationRange("max_latency", r.MaxLatency, 0, maxLatencyCeiling)...)

	if r.FailureRate < minFailureRate || r.FailureRate > maxFailureRate {
		errs = append(errs, fmt.Errorf("failure_rate: must be between %.1f and %.1f, got %g",
			minFailureRate, maxFailureRate, r.FailureRate))
	}

	if r.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit: must be >= 0 (0 = unlimited), got %g", r.RateLimit))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateDurationRange(field, value string, minimum, maximum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum || d > maximum {
		return []error{fmt.Errorf("%s: must be between %s and %s, got %s", field, minimum, maximum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for edgeledger. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Duration fields are kept as strings so the file stays human-editable and
// validation can report the original text; Resolve converts them.
type Config struct {
	Store   StoreConfig   `toml:"store"`
	Sync    SyncConfig    `toml:"sync"`
	Remote  RemoteConfig  `toml:"remote"`
	Logging LoggingConfig `toml:"logging"`
}

// StoreConfig locates the local SQLite database.
type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

// SyncConfig controls the reconciliation engine and background scheduler.
type SyncConfig struct {
	Interval        string `toml:"interval"`
	BatchSize       int    `toml:"batch_size"`
	StartOnline     bool   `toml:"start_online"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// RemoteConfig parameterizes the simulated remote endpoint.
type RemoteConfig struct {
	MinLatency  string  `toml:"min_latency"`
	MaxLatency  string  `toml:"max_latency"`
	FailureRate float64 `toml:"failure_rate"`
	RateLimit   float64 `toml:"rate_limit"`
	Seed        int64   `toml:"seed"`
}

// LoggingConfig controls log output behavior: level, destination, format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	DBPath     string  // --db flag
	Online     *bool   // --online flag
	Interval   *string // --interval flag
}

// Resolved is the effective configuration after the override chain has been
// applied, with every duration parsed.
type Resolved struct {
	ConfigPath      string
	DBPath          string
	Interval        time.Duration
	BatchSize       int
	StartOnline     bool
	ShutdownTimeout time.Duration
	Remote          ResolvedRemote
	Logging         LoggingConfig
}

// ResolvedRemote is RemoteConfig with parsed durations.
type ResolvedRemote struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64
	RateLimit   float64
	Seed        int64
}

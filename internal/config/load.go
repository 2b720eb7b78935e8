package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the zero-config
// first-run experience.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns a fully parsed and validated configuration.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.DBPath != "" {
		cfg.Store.DBPath = env.DBPath
	}

	if env.Online != nil {
		cfg.Sync.StartOnline = *env.Online
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.DBPath != "" {
		cfg.Store.DBPath = cli.DBPath
	}

	if cli.Online != nil {
		cfg.Sync.StartOnline = *cli.Online
	}

	if cli.Interval != nil {
		cfg.Sync.Interval = *cli.Interval
	}

	// 5. Re-validate: env and CLI values have not been checked yet.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve converts a validated Config into a Resolved, parsing durations
// and filling the default database path.
func resolve(cfg *Config) (*Resolved, error) {
	durations := map[string]string{
		"interval":         cfg.Sync.Interval,
		"shutdown_timeout": cfg.Sync.ShutdownTimeout,
		"min_latency":      cfg.Remote.MinLatency,
		"max_latency":      cfg.Remote.MaxLatency,
	}

	parsed := make(map[string]time.Duration, len(durations))

	for field, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
		}

		parsed[field] = d
	}

	dbPath := cfg.Store.DBPath
	if dbPath == "" {
		dbPath = DefaultDBPath()
	}

	return &Resolved{
		DBPath:          expandHome(dbPath),
		Interval:        parsed["interval"],
		BatchSize:       cfg.Sync.BatchSize,
		StartOnline:     cfg.Sync.StartOnline,
		ShutdownTimeout: parsed["shutdown_timeout"],
		Remote: ResolvedRemote{
			MinLatency:  parsed["min_latency"],
			MaxLatency:  parsed["max_latency"],
			FailureRate: cfg.Remote.FailureRate,
			RateLimit:   cfg.Remote.RateLimit,
			Seed:        cfg.Remote.Seed,
		},
		Logging: cfg.Logging,
	}, nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return home + path[1:]
}

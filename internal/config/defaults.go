package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultInterval        = "5s"
	defaultBatchSize       = 0
	defaultShutdownTimeout = "30s"
	defaultMinLatency      = "100ms"
	defaultMaxLatency      = "500ms"
	defaultFailureRate     = 0.2
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Interval:        defaultInterval,
			BatchSize:       defaultBatchSize,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Remote: RemoteConfig{
			MinLatency:  defaultMinLatency,
			MaxLatency:  defaultMaxLatency,
			FailureRate: defaultFailureRate,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

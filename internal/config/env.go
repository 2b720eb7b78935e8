package config

import (
	"os"
	"strconv"
)

// Environment variable names for overrides.
const (
	EnvConfig = "EDGELEDGER_CONFIG"
	EnvDB     = "EDGELEDGER_DB"
	EnvOnline = "EDGELEDGER_ONLINE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // EDGELEDGER_CONFIG: override config file path
	DBPath     string // EDGELEDGER_DB: database path override
	Online     *bool  // EDGELEDGER_ONLINE: start online (parsed with strconv.ParseBool)
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// An unparsable EDGELEDGER_ONLINE is ignored.
func ReadEnvOverrides() EnvOverrides {
	env := EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDB),
	}

	if v := os.Getenv(EnvOnline); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			env.Online = &b
		}
	}

	return env
}

// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	Datasets DatasetsConfig
	Bridge   BridgeConfig
	Log      LogConfig
}

// DatasetsConfig locates the datasets directory.
type DatasetsConfig struct {
	Root string
}

// BridgeConfig configures the external search process.
type BridgeConfig struct {
	Python        string
	Script        string
	SearchTimeout time.Duration
	CheckTimeout  time.Duration
}

// LogConfig configures logging and the query log.
type LogConfig struct {
	Level        string
	QueryLogPath string // empty disables query logging
}

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultDatasetsRoot      = "./datasets"
	DefaultPython            = "python3"
	DefaultBridgeScript      = "./python/bridge.py"
	DefaultSearchTimeoutSecs = 10
	DefaultCheckTimeoutSecs  = 5
	DefaultLogLevel          = "info"
)

// New creates settings from environment variables.
// Returns an error if a variable contains an invalid value.
func New() (Settings, error) {
	searchTimeoutSecs, err := getEnvInt("MNEMOSYNE_SEARCH_TIMEOUT_SECS", DefaultSearchTimeoutSecs)
	if err != nil {
		return Settings{}, err
	}
	if searchTimeoutSecs <= 0 {
		return Settings{}, fmt.Errorf("MNEMOSYNE_SEARCH_TIMEOUT_SECS must be positive, got %d", searchTimeoutSecs)
	}

	checkTimeoutSecs, err := getEnvInt("MNEMOSYNE_CHECK_TIMEOUT_SECS", DefaultCheckTimeoutSecs)
	if err != nil {
		return Settings{}, err
	}
	if checkTimeoutSecs <= 0 {
		return Settings{}, fmt.Errorf("MNEMOSYNE_CHECK_TIMEOUT_SECS must be positive, got %d", checkTimeoutSecs)
	}

	return Settings{
		Datasets: DatasetsConfig{
			Root: getEnv("MNEMOSYNE_DATASETS_ROOT", DefaultDatasetsRoot),
		},
		Bridge: BridgeConfig{
			Python:        getEnv("MNEMOSYNE_PYTHON", DefaultPython),
			Script:        getEnv("MNEMOSYNE_BRIDGE_SCRIPT", DefaultBridgeScript),
			SearchTimeout: time.Duration(searchTimeoutSecs) * time.Second,
			CheckTimeout:  time.Duration(checkTimeoutSecs) * time.Second,
		},
		Log: LogConfig{
			Level:        getEnv("MNEMOSYNE_LOG_LEVEL", DefaultLogLevel),
			QueryLogPath: os.Getenv("MNEMOSYNE_QUERY_LOG"),
		},
	}, nil
}

// MustNew creates settings, panicking on invalid environment values.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

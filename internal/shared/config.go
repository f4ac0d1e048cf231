package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Polling    PollingConfig    `toml:"polling"`
	Simulation SimulationConfig `toml:"simulation"`
	Stall      StallConfig      `toml:"stall"`
	Heartbeat  HeartbeatConfig  `toml:"heartbeat"`
	Cancel     CancelConfig     `toml:"cancel"`
	Database   DatabaseConfig   `toml:"database"`
}

// ServerConfig contains NeuroGen server connection settings.
type ServerConfig struct {
	BaseURL  string `toml:"base_url"`
	PushURL  string `toml:"push_url"`
	APIToken string `toml:"api_token"`
}

// PollingConfig tunes the status poll loop. Intervals are milliseconds.
type PollingConfig struct {
	WarmupPolls    int     `toml:"warmup_polls"`
	MinIntervalMS  int     `toml:"min_interval_ms"`
	MidIntervalMS  int     `toml:"mid_interval_ms"`
	MaxIntervalMS  int     `toml:"max_interval_ms"`
	ErrorThreshold int     `toml:"error_threshold"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
}

// SimulationConfig tunes synthetic progress during plateaus.
type SimulationConfig struct {
	TickMS        int     `toml:"tick_ms"`
	BaseCeiling   float64 `toml:"base_ceiling"`
	MaxCeiling    float64 `toml:"max_ceiling"`
	MaxDurationMS int     `toml:"max_duration_ms"`
}

// StallConfig tunes stall detection and the stall-safety fallback.
type StallConfig struct {
	AfterMS              int `toml:"after_ms"`
	NearCompleteSafetyMS int `toml:"near_complete_safety_ms"`
	MidRangeSafetyMS     int `toml:"mid_range_safety_ms"`
}

// HeartbeatConfig tunes push-channel liveness probing.
type HeartbeatConfig struct {
	IntervalMS int `toml:"interval_ms"`
}

// CancelConfig tunes cancellation fallback behavior.
type CancelConfig struct {
	FallbackMS int `toml:"fallback_ms"`
}

// DatabaseConfig contains task history database settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, ErrInvalidInput)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

package track

import (
	"time"

	"github.com/LosAICode/neurogen-client/internal/shared"
)

// Config holds every tunable threshold of the tracking engine. The
// completion heuristics (progress >= 99, success + output, safety timers)
// are empirical; keeping them here means they can be retuned, or replaced by
// a real server-pushed terminal event, without touching the components.
type Config struct {
	// Polling
	WarmupPolls     int
	MinPollInterval time.Duration
	MidPollInterval time.Duration
	MaxPollInterval time.Duration
	ErrorThreshold  int

	// Stall detection and safety fallback
	StallAfter         time.Duration
	NearCompleteSafety time.Duration // no update while progress >= 90
	MidRangeSafety     time.Duration // no update while progress in [50,90), ping must succeed

	// Simulation
	SimulationTick time.Duration
	BaseCeiling    float64
	MaxCeiling     float64
	MaxSimulation  time.Duration

	// Heartbeat
	HeartbeatInterval time.Duration

	// Cancellation
	CancelFallback time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		WarmupPolls:        5,
		MinPollInterval:    2 * time.Second,
		MidPollInterval:    5 * time.Second,
		MaxPollInterval:    30 * time.Second,
		ErrorThreshold:     4,
		StallAfter:         5 * time.Second,
		NearCompleteSafety: 90 * time.Second,
		MidRangeSafety:     60 * time.Second,
		SimulationTick:     time.Second,
		BaseCeiling:        75,
		MaxCeiling:         95,
		MaxSimulation:      45 * time.Second,
		HeartbeatInterval:  20 * time.Second,
		CancelFallback:     3 * time.Second,
	}
}

// ConfigFromShared maps the TOML configuration onto engine thresholds,
// falling back to defaults for absent values.
func ConfigFromShared(c *shared.Config) Config {
	cfg := DefaultConfig()
	if c == nil {
		return cfg
	}

	if c.Polling.WarmupPolls > 0 {
		cfg.WarmupPolls = c.Polling.WarmupPolls
	}
	setMS(&cfg.MinPollInterval, c.Polling.MinIntervalMS)
	setMS(&cfg.MidPollInterval, c.Polling.MidIntervalMS)
	setMS(&cfg.MaxPollInterval, c.Polling.MaxIntervalMS)
	if c.Polling.ErrorThreshold > 0 {
		cfg.ErrorThreshold = c.Polling.ErrorThreshold
	}

	setMS(&cfg.StallAfter, c.Stall.AfterMS)
	setMS(&cfg.NearCompleteSafety, c.Stall.NearCompleteSafetyMS)
	setMS(&cfg.MidRangeSafety, c.Stall.MidRangeSafetyMS)

	setMS(&cfg.SimulationTick, c.Simulation.TickMS)
	if c.Simulation.BaseCeiling > 0 {
		cfg.BaseCeiling = c.Simulation.BaseCeiling
	}
	if c.Simulation.MaxCeiling > 0 {
		cfg.MaxCeiling = c.Simulation.MaxCeiling
	}
	setMS(&cfg.MaxSimulation, c.Simulation.MaxDurationMS)

	setMS(&cfg.HeartbeatInterval, c.Heartbeat.IntervalMS)
	setMS(&cfg.CancelFallback, c.Cancel.FallbackMS)

	return cfg
}

func setMS(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

package scheduler

import (
	"time"

	"github.com/smallbiznis/donara/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval      time.Duration
	BatchSize        int
	JobTimeout       time.Duration
	StalePending     time.Duration
	SessionRetention time.Duration
	// EnabledJobs restricts the run to the named jobs. Empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:      30 * time.Second,
		BatchSize:        50,
		JobTimeout:       2 * time.Minute,
		StalePending:     24 * time.Hour,
		SessionRetention: 7 * 24 * time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:      cfg.Scheduler.Interval,
		BatchSize:        cfg.Scheduler.BatchSize,
		JobTimeout:       cfg.Scheduler.JobTimeout,
		StalePending:     cfg.Scheduler.StalePending,
		SessionRetention: cfg.Admin.SessionRetention,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.StalePending <= 0 {
		c.StalePending = defaults.StalePending
	}
	if c.SessionRetention <= 0 {
		c.SessionRetention = defaults.SessionRetention
	}
	return c
}

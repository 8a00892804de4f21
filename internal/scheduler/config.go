package scheduler

import (
	"time"

	"github.com/smallbiznis/bizledger/internal/config"
)

// Config controls which jobs run and how often.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	JobTimeout  time.Duration
	LockTTL     time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: time.Hour,
		JobTimeout:  2 * time.Minute,
		LockTTL:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	out.Enabled = cfg.SchedulerEnabled
	if cfg.SchedulerIntervalSeconds > 0 {
		out.RunInterval = time.Duration(cfg.SchedulerIntervalSeconds) * time.Second
	}
	return out
}

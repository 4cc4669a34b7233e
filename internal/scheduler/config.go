package scheduler

import (
	"time"

	"github.com/smallbiznis/hightide/internal/config"
)

// Config controls job intervals, batch sizes and leases.
type Config struct {
	DispatchInterval   time.Duration
	DispatchBatchSize  int
	PayoutAutoGenerate bool
	PayoutInterval     time.Duration
	JobTimeout         time.Duration
	LockTTL            time.Duration
}

func DefaultConfig() Config {
	return Config{
		DispatchInterval:  30 * time.Second,
		DispatchBatchSize: 50,
		PayoutInterval:    24 * time.Hour,
		JobTimeout:        2 * time.Minute,
		LockTTL:           5 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		DispatchInterval:   cfg.Scheduler.DispatchInterval,
		DispatchBatchSize:  cfg.Scheduler.DispatchBatchSize,
		PayoutAutoGenerate: cfg.Scheduler.PayoutAutoGenerate,
		PayoutInterval:     cfg.Scheduler.PayoutInterval,
		JobTimeout:         cfg.Scheduler.JobTimeout,
		LockTTL:            cfg.Scheduler.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DispatchInterval <= 0 {
		c.DispatchInterval = defaults.DispatchInterval
	}
	if c.DispatchBatchSize <= 0 {
		c.DispatchBatchSize = defaults.DispatchBatchSize
	}
	if c.PayoutInterval <= 0 {
		c.PayoutInterval = defaults.PayoutInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout
	}
	return c
}

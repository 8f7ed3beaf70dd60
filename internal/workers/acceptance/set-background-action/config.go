package setbackgroundaction

import (
	"fmt"
	"time"

	"payplan-workers/internal/common/camunda"
	"payplan-workers/internal/common/config"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 10,
		Timeout:       30 * time.Second,
	}
}

// FromWorkerConfig maps the shared worker section onto this worker.
func FromWorkerConfig(wc config.WorkerConfig) *Config {
	c := DefaultConfig()
	c.Enabled = wc.Enabled
	if wc.MaxJobsActive > 0 {
		c.MaxJobsActive = wc.MaxJobsActive
	}
	if wc.Concurrency > 0 {
		c.Concurrency = wc.Concurrency
	}
	if wc.Timeout > 0 {
		c.Timeout = config.GetDuration(wc.Timeout)
	}
	return c
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}

func (c *Config) WorkerOptions() camunda.WorkerOptions {
	return camunda.WorkerOptions{
		Enabled:       c.Enabled,
		MaxJobsActive: c.MaxJobsActive,
		Concurrency:   c.Concurrency,
		Timeout:       c.Timeout,
		Name:          TaskType + "-worker",
	}
}

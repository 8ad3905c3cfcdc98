package orchestrator

import "time"

// Config controls run budgets and concurrency.
type Config struct {
	// RunTimeout bounds one source's extraction and reconciliation.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
	// ExtractAttempts is how many times a network failure is retried within the run budget.
	ExtractAttempts      int           `mapstructure:"extract_attempts"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	MaxConcurrent        int           `mapstructure:"max_concurrent"`
	MaxRenderers         int           `mapstructure:"max_renderers"`
	// ZeroYieldThreshold deactivates a source after that many consecutive empty successful runs. 0 disables.
	ZeroYieldThreshold int `mapstructure:"zero_yield_threshold"`
	// Schedule is the cron expression used by the schedule command.
	Schedule string `mapstructure:"schedule"`
}

const (
	defaultRunTimeout           = 5 * time.Minute
	defaultExtractAttempts      = 2
	defaultRetryInitialInterval = 2 * time.Second
	defaultMaxConcurrent        = 8
	defaultMaxRenderers         = 2
	defaultSchedule             = "0 */6 * * *"

	finalizeTimeout = 10 * time.Second
)

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaultRunTimeout
	}
	if c.ExtractAttempts <= 0 {
		c.ExtractAttempts = defaultExtractAttempts
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = defaultRetryInitialInterval
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.MaxRenderers <= 0 {
		c.MaxRenderers = defaultMaxRenderers
	}
	if c.ZeroYieldThreshold < 0 {
		c.ZeroYieldThreshold = 0
	}
	if c.Schedule == "" {
		c.Schedule = defaultSchedule
	}
}

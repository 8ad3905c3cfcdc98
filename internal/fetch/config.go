package fetch

import "time"

// Defaults.
const (
	DefaultUserAgent         = "north-cloud-event-crawler/1.0 (+https://northcloud.one/bot)"
	DefaultTimeout           = 30 * time.Second
	DefaultRequestsPerSecond = 1.0
	DefaultBurst             = 2
	DefaultMaxAttempts       = 3
	DefaultInitialBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff        = 10 * time.Second
	DefaultMaxBodyBytes      = 10 << 20
	DefaultRobotsCacheTTL    = 24 * time.Hour
)

// Config configures the shared HTTP fetcher.
type Config struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond and Burst bound requests to a single host.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`

	RespectRobots  bool          `mapstructure:"respect_robots"`
	RobotsCacheTTL time.Duration `mapstructure:"robots_cache_ttl"`

	// MaxAttempts includes the first try.
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`

	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.RobotsCacheTTL == 0 {
		c.RobotsCacheTTL = DefaultRobotsCacheTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

package merge

const (
	defaultConflictRetries = 3
	defaultFuzzyThreshold  = 0.90
)

// Config controls reconciliation.
type Config struct {
	// ConflictRetries bounds how often a lost insert race is retried as an update.
	ConflictRetries int     `mapstructure:"conflict_retries"`
	FuzzyEnabled    bool    `mapstructure:"fuzzy_enabled"`
	FuzzyThreshold  float64 `mapstructure:"fuzzy_threshold"`
}

// SetDefaults fills zero values. FuzzyEnabled is left to the caller.
func (c *Config) SetDefaults() {
	if c.ConflictRetries <= 0 {
		c.ConflictRetries = defaultConflictRetries
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		c.FuzzyThreshold = defaultFuzzyThreshold
	}
}

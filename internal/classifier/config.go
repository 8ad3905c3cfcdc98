package classifier

// Defaults.
const (
	DefaultMinTextRatio  = 0.10
	DefaultMinTextChars  = 200
	DefaultMaxFeedProbes = 5
)

// DefaultAggregatorDomains are ticketing and listing platforms whose pages or widgets
// mark a source as an aggregator.
var DefaultAggregatorDomains = []string{
	"eventbrite.com",
	"ticketmaster.com",
	"livenation.com",
	"axs.com",
	"dice.fm",
	"seetickets.us",
	"seetickets.com",
	"etix.com",
	"ticketweb.com",
	"songkick.com",
	"bandsintown.com",
	"tixr.com",
	"showclix.com",
	"universe.com",
	"ra.co",
	"freshtix.com",
	"eventim.com",
}

// DefaultAPIPathPatterns mark URLs that address a JSON API rather than a page.
var DefaultAPIPathPatterns = []string{
	"/api/",
	"/wp-json/",
	"/graphql",
	"/v1/",
	"/v2/",
	"/v3/",
	".json",
}

// Config tunes the classifier.
type Config struct {
	AggregatorDomains []string `mapstructure:"aggregator_domains"`
	APIPathPatterns   []string `mapstructure:"api_path_patterns"`
	// MinTextRatio is visible text bytes over total body bytes.
	MinTextRatio  float64 `mapstructure:"min_text_ratio"`
	MinTextChars  int     `mapstructure:"min_text_chars"`
	MaxFeedProbes int     `mapstructure:"max_feed_probes"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if len(c.AggregatorDomains) == 0 {
		c.AggregatorDomains = DefaultAggregatorDomains
	}
	if len(c.APIPathPatterns) == 0 {
		c.APIPathPatterns = DefaultAPIPathPatterns
	}
	if c.MinTextRatio <= 0 {
		c.MinTextRatio = DefaultMinTextRatio
	}
	if c.MinTextChars <= 0 {
		c.MinTextChars = DefaultMinTextChars
	}
	if c.MaxFeedProbes <= 0 {
		c.MaxFeedProbes = DefaultMaxFeedProbes
	}
}

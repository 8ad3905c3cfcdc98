// Package search publishes canonical events to Elasticsearch for downstream consumers.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

// Config holds Elasticsearch configuration.
type Config struct {
	Enabled     bool          `mapstructure:"enabled"`
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	APIKey      string        `mapstructure:"api_key"`
	Index       string        `mapstructure:"index"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

const (
	defaultIndex       = "events"
	defaultMaxRetries  = 3
	defaultPingTimeout = 5 * time.Second
	maxPingElapsed     = 30 * time.Second
)

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:9200"
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		c.URL = "http://" + c.URL
	}
	if c.Index == "" {
		c.Index = defaultIndex
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
}

// NewClient creates an Elasticsearch client and waits for the cluster to answer a ping.
func NewClient(ctx context.Context, cfg Config, log logger.Logger) (*es.Client, error) {
	cfg.SetDefaults()

	clientConfig := es.Config{
		Addresses:  []string{cfg.URL},
		MaxRetries: cfg.MaxRetries,
	}
	switch {
	case cfg.APIKey != "":
		clientConfig.APIKey = cfg.APIKey
	case cfg.Username != "" && cfg.Password != "":
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	client, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", cfg.URL))

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxPingElapsed
	if pingErr := backoff.Retry(func() error {
		return ping(ctx, client, cfg.PingTimeout)
	}, backoff.WithContext(policy, ctx)); pingErr != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch after retries: %w", pingErr)
	}

	return client, nil
}

func ping(ctx context.Context, client *es.Client, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("ping returned %s", res.Status())
	}
	return nil
}

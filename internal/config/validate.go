package config

import (
	"fmt"
	"strconv"

	"github.com/robfig/cron/v3"
)

const maxPort = 65535

// ValidationError reports one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Message)
}

// Validate checks values that would fail at runtime. It returns the first *ValidationError.
func (c *Config) Validate() error {
	checks := []func() *ValidationError{
		c.validateApp,
		c.validateLogger,
		c.validateDatabase,
		c.validateOptionalServices,
		c.validateCrawl,
		c.validateServer,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateApp() *ValidationError {
	switch c.App.Environment {
	case EnvDevelopment, EnvProduction, "staging", "test":
		return nil
	default:
		return &ValidationError{Field: "app.environment", Message: fmt.Sprintf("unknown environment %q", c.App.Environment)}
	}
}

func (c *Config) validateLogger() *ValidationError {
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Field: "logger.level", Message: "must be debug, info, warn or error"}
	}
	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return &ValidationError{Field: "logger.format", Message: "must be json or console"}
	}
	return nil
}

func (c *Config) validateDatabase() *ValidationError {
	if c.Database.Host == "" {
		return &ValidationError{Field: "database.host", Message: "is required"}
	}
	if port, err := strconv.Atoi(c.Database.Port); err != nil || port <= 0 || port > maxPort {
		return &ValidationError{Field: "database.port", Message: "must be a port number"}
	}
	if c.Database.DBName == "" {
		return &ValidationError{Field: "database.dbname", Message: "is required"}
	}
	return nil
}

func (c *Config) validateOptionalServices() *ValidationError {
	if c.Redis.Enabled && c.Redis.Address == "" {
		return &ValidationError{Field: "redis.address", Message: "is required when redis is enabled"}
	}
	if c.Elasticsearch.Enabled && c.Elasticsearch.URL == "" {
		return &ValidationError{Field: "elasticsearch.url", Message: "is required when elasticsearch is enabled"}
	}
	return nil
}

func (c *Config) validateCrawl() *ValidationError {
	if c.Fetch.MaxBodyBytes < 1024 {
		return &ValidationError{Field: "fetch.max_body_bytes", Message: "must be at least 1024"}
	}
	if c.Orchestrator.MaxRenderers > c.Orchestrator.MaxConcurrent {
		return &ValidationError{Field: "orchestrator.max_renderers", Message: "must not exceed max_concurrent"}
	}
	if c.Orchestrator.ZeroYieldThreshold < 0 {
		return &ValidationError{Field: "orchestrator.zero_yield_threshold", Message: "must not be negative"}
	}
	if _, err := cron.ParseStandard(c.Orchestrator.Schedule); err != nil {
		return &ValidationError{Field: "orchestrator.schedule", Message: err.Error()}
	}
	return nil
}

func (c *Config) validateServer() *ValidationError {
	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return &ValidationError{Field: "server.port", Message: "must be a port number"}
	}
	return nil
}

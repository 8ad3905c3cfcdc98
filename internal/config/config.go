// Package config loads the event crawler configuration from a YAML file, .env files
// and environment variables. Environment keys replace "." with "_", so DATABASE_HOST
// overrides database.host.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/llm"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/adapter/rendered"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/classifier"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/coordination"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/database"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/fetch"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/merge"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/event-crawler/internal/search"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const defaultZeroYieldThreshold = 5

// AppConfig identifies the running service.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// Config is the full application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logger        logger.Config       `mapstructure:"logger"`
	Database      database.Config     `mapstructure:"database"`
	Redis         coordination.Config `mapstructure:"redis"`
	Elasticsearch search.Config       `mapstructure:"elasticsearch"`
	Fetch         fetch.Config        `mapstructure:"fetch"`
	Classifier    classifier.Config   `mapstructure:"classifier"`
	Merge         merge.Config        `mapstructure:"merge"`
	Orchestrator  orchestrator.Config `mapstructure:"orchestrator"`
	Browser       rendered.Config     `mapstructure:"browser"`
	LLM           llm.Config          `mapstructure:"llm"`
	Server        api.Config          `mapstructure:"server"`
}

// Default returns the configuration used when no file or environment sets a value.
func Default() *Config {
	cfg := &Config{
		App: AppConfig{Name: "event-crawler", Environment: EnvProduction},
		Database: database.Config{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "events",
			SSLMode: "disable",
		},
		Redis:         coordination.Config{Address: "localhost:6379"},
		Elasticsearch: search.Config{URL: "http://localhost:9200"},
		Fetch:         fetch.Config{RespectRobots: true},
		Merge:         merge.Config{FuzzyEnabled: true},
		Orchestrator:  orchestrator.Config{ZeroYieldThreshold: defaultZeroYieldThreshold},
	}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	c.Logger.SetDefaults()
	c.Database.SetDefaults()
	c.Redis.SetDefaults()
	c.Elasticsearch.SetDefaults()
	c.Fetch.SetDefaults()
	c.Classifier.SetDefaults()
	c.Merge.SetDefaults()
	c.Orchestrator.SetDefaults()
	c.Browser.SetDefaults()
	c.LLM.SetDefaults()
	c.Server.SetDefaults()
	if c.App.Environment == EnvDevelopment {
		c.Logger.Development = true
	}
}

// Load reads path (or ./config.yml, ./config/config.yml when empty), applies .env files
// and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := registerDefaults(v, Default()); err != nil {
		return nil, fmt.Errorf("register defaults: %w", err)
	}
	if err := v.BindEnv("llm.api_key", "LLM_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("bind llm api key: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnvFiles loads .env.local then .env. Missing files are ignored and set variables win.
func loadEnvFiles() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")
}

// registerDefaults flattens cfg into dotted keys so AutomaticEnv can reach every leaf.
func registerDefaults(v *viper.Viper, cfg *Config) error {
	var tree map[string]any
	if err := mapstructure.Decode(cfg, &tree); err != nil {
		return err
	}
	setLeaves(v, "", tree)
	return nil
}

func setLeaves(v *viper.Viper, prefix string, tree map[string]any) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setLeaves(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

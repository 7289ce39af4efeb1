// Package config loads orgfinder settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeGROOVE-dev/orgfinder/pkg/batch"
	"github.com/codeGROOVE-dev/orgfinder/pkg/match"
	"github.com/codeGROOVE-dev/orgfinder/pkg/score"
)

// Config is the full runtime configuration.
type Config struct {
	Database    Database         `yaml:"database"`
	GitHub      Catalog          `yaml:"github"`
	HuggingFace Catalog          `yaml:"huggingface"`
	Cache       Cache            `yaml:"cache"`
	Batch       Batch            `yaml:"batch"`
	Match       match.Rules      `yaml:"match"`
	Thresholds  score.Thresholds `yaml:"thresholds"`
	Server      Server           `yaml:"server"`
}

// Database selects the store backend. An empty DSN with the sqlite driver uses
// a file under the user cache directory.
type Database struct {
	Driver string `yaml:"driver"` // "sqlite", "postgres" or "memory"
	DSN    string `yaml:"dsn"`
}

// Catalog holds per-catalog client settings.
type Catalog struct {
	Token string `yaml:"token"`
}

// Cache configures the HTTP response cache.
type Cache struct {
	Dir      string        `yaml:"dir"` // empty means the user cache directory
	TTL      time.Duration `yaml:"ttl"`
	Disabled bool          `yaml:"disabled"`
}

// Batch configures batch runs.
type Batch struct {
	Limit        int           `yaml:"limit"`
	SafetyMargin int           `yaml:"safety_margin"`
	EntityDelay  time.Duration `yaml:"entity_delay"`
}

// Server configures the HTTP trigger surface.
type Server struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: Database{Driver: "sqlite"},
		Cache:    Cache{TTL: 24 * time.Hour},
		Batch: Batch{
			Limit:        50,
			SafetyMargin: batch.DefaultSafetyMargin,
			EntityDelay:  time.Second,
		},
		Match:      match.DefaultRules(),
		Thresholds: score.Defaults(),
		Server:     Server{Addr: ":8080"},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("ORGFINDER_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("ORGFINDER_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("GITHUB_TOKEN"); v != "" && c.GitHub.Token == "" {
		c.GitHub.Token = v
	}
	if v := getenv("HF_TOKEN"); v != "" && c.HuggingFace.Token == "" {
		c.HuggingFace.Token = v
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if t := c.Match.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("match.similarity_threshold %v must be in (0,1]", t))
	}
	if c.Batch.SafetyMargin < 0 {
		errs = append(errs, fmt.Errorf("batch.safety_margin %d must not be negative", c.Batch.SafetyMargin))
	}
	if c.Batch.EntityDelay < 0 {
		errs = append(errs, fmt.Errorf("batch.entity_delay %v must not be negative", c.Batch.EntityDelay))
	}
	if c.Thresholds.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("thresholds.stale_after %v must be positive", c.Thresholds.StaleAfter))
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3", "postgres", "postgresql", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}
	return errors.Join(errs...)
}

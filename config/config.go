package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Config holds scraper configuration.
type Config struct {
	SeedPath        string        `yaml:"seed_path"`
	PagesPerProduct int           `yaml:"pages_per_product"`
	UserAgent       string        `yaml:"user_agent"`
	AcceptLanguage  string        `yaml:"accept_language"`
	DBPath          string        `yaml:"db_path"`
	Timeout         time.Duration `yaml:"timeout"`
	DateCacheSize   int           `yaml:"date_cache_size"`
	ExportFile      string        `yaml:"export_file"`
	ExportFormat    string        `yaml:"export_format"` // csv, json, or dual; empty disables export
	MetricsAddr     string        `yaml:"metrics_addr"`
	Verbose         bool          `yaml:"verbose"`
}

// DefaultConfig returns the defaults for a plain ETL run.
func DefaultConfig() *Config {
	return &Config{
		SeedPath:        "terms.txt",
		PagesPerProduct: 10,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		AcceptLanguage:  "en-GB,en;q=0.9",
		DBPath:          "amazon.db",
		Timeout:         30 * time.Second,
		DateCacheSize:   1024,
		ExportFile:      "",
		ExportFormat:    "",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Load overlays the YAML file at path on top of DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config %q: %w", models.ErrConfig, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config %q: %w", models.ErrConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from REVIEWS_* environment variables.
func (c *Config) ApplyEnv() error {
	if value, ok := EnvString("REVIEWS_SEED_PATH"); ok {
		c.SeedPath = value
	}
	if value, ok, err := EnvInt("REVIEWS_PAGES"); err != nil {
		return fmt.Errorf("%w: invalid REVIEWS_PAGES: %w", models.ErrConfig, err)
	} else if ok {
		c.PagesPerProduct = value
	}
	if value, ok := EnvString("REVIEWS_USER_AGENT"); ok {
		c.UserAgent = value
	}
	if value, ok := EnvString("REVIEWS_DB_PATH"); ok {
		c.DBPath = value
	}
	if value, ok := EnvString("REVIEWS_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.SeedPath == "" {
		return fmt.Errorf("seed path cannot be empty")
	}
	if c.PagesPerProduct <= 0 {
		return fmt.Errorf("pages per product must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DateCacheSize < 0 {
		return fmt.Errorf("date cache size cannot be negative")
	}
	switch c.ExportFormat {
	case "":
		if c.ExportFile != "" {
			return fmt.Errorf("export format must be set when export file is %q", c.ExportFile)
		}
	case "csv", "json", "dual":
		if c.ExportFile == "" {
			return fmt.Errorf("export file cannot be empty when export format is %s", c.ExportFormat)
		}
	default:
		return fmt.Errorf("export format must be csv, json, or dual")
	}
	return nil
}

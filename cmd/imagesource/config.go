package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration. Flags override values loaded from a file.
type Config struct {
	Workers     uint   `yaml:"workers"`
	QueueSize   uint   `yaml:"queue_size"`
	Observers   int    `yaml:"observers"`
	BandHeight  int    `yaml:"band_height"`
	MaxPixels   int    `yaml:"max_pixels"`
	TrustTag    string `yaml:"trust_tag"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultCLIConfig() Config {
	return Config{
		Workers:    4,
		QueueSize:  64,
		Observers:  1,
		BandHeight: 16,
		MaxPixels:  64 << 20,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// loadConfig reads a YAML file over the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(c *cli.Context, cfg *Config) {
	if c.IsSet("workers") {
		cfg.Workers = c.Uint("workers")
	}
	if c.IsSet("queue-size") {
		cfg.QueueSize = c.Uint("queue-size")
	}
	if c.IsSet("observers") {
		cfg.Observers = c.Int("observers")
	}
	if c.IsSet("band-height") {
		cfg.BandHeight = c.Int("band-height")
	}
	if c.IsSet("max-pixels") {
		cfg.MaxPixels = c.Int("max-pixels")
	}
	if c.IsSet("trust-tag") {
		cfg.TrustTag = c.String("trust-tag")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
}

func validateCLIConfig(cfg Config) error {
	switch {
	case cfg.Workers == 0:
		return fmt.Errorf("workers must be > 0")
	case cfg.Observers < 1:
		return fmt.Errorf("observers must be >= 1")
	case cfg.LogFormat != "text" && cfg.LogFormat != "json":
		return fmt.Errorf("log format %q: want text or json", cfg.LogFormat)
	}
	return nil
}

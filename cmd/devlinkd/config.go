package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration wraps time.Duration so YAML values like "25ms" decode.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig is the YAML daemon configuration.
type fileConfig struct {
	StorageDir    string   `yaml:"storage_dir"`
	PrimaryPool   int      `yaml:"primary_pool_bytes"`
	SecondaryPool int      `yaml:"secondary_pool_bytes"`
	Pacing        duration `yaml:"pacing"`
	TickInterval  duration `yaml:"tick_interval"`
	LogLevel      string   `yaml:"log_level"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		StorageDir: "./apps",
		LogLevel:   "info",
	}
}

// loadConfig reads a YAML config file, layering it over defaults. An empty
// path returns the defaults unchanged.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

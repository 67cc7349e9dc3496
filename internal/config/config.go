// Package config loads the drilld service configuration from YAML.
// A missing config file is fine; every field has a working default.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Budget bounds each run attempt the service executes.
type Budget struct {
	SliceSteps int `yaml:"slice_steps"`
	TotalSteps int `yaml:"total_steps"`
	MaxTicks   int `yaml:"max_ticks"`
}

// Config is the full drilld configuration.
type Config struct {
	Listen     string `yaml:"listen"`
	DBPath     string `yaml:"db_path"`
	LevelsPath string `yaml:"levels_path"`
	TraceDir   string `yaml:"trace_dir"`
	Budget     Budget `yaml:"budget"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:     ":8090",
		DBPath:     "drillcore.db",
		LevelsPath: "data/levels.json",
		TraceDir:   "traces",
		Budget: Budget{
			SliceSteps: 200,
			TotalSteps: 8000,
			MaxTicks:   256,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.LevelsPath == "" {
		return fmt.Errorf("levels_path must not be empty")
	}
	if c.Budget.SliceSteps < 1 {
		return fmt.Errorf("budget.slice_steps must be at least 1, got %d", c.Budget.SliceSteps)
	}
	if c.Budget.TotalSteps < c.Budget.SliceSteps {
		return fmt.Errorf("budget.total_steps (%d) must be at least budget.slice_steps (%d)", c.Budget.TotalSteps, c.Budget.SliceSteps)
	}
	if c.Budget.MaxTicks < 1 {
		return fmt.Errorf("budget.max_ticks must be at least 1, got %d", c.Budget.MaxTicks)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drilld.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9001"
trace_dir: /var/lib/drillcore/traces
budget:
  total_steps: 20000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9001" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.TraceDir != "/var/lib/drillcore/traces" {
		t.Errorf("trace_dir = %q", cfg.TraceDir)
	}
	if cfg.Budget.TotalSteps != 20000 {
		t.Errorf("total_steps = %d", cfg.Budget.TotalSteps)
	}
	// Untouched fields keep their defaults.
	if cfg.DBPath != Default().DBPath || cfg.Budget.SliceSteps != 200 {
		t.Errorf("defaults clobbered: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "listen: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
		want string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"empty levels path", func(c *Config) { c.LevelsPath = "" }, "levels_path"},
		{"zero slice", func(c *Config) { c.Budget.SliceSteps = 0 }, "slice_steps"},
		{"total below slice", func(c *Config) { c.Budget.TotalSteps = 10 }, "total_steps"},
		{"zero ticks", func(c *Config) { c.Budget.MaxTicks = 0 }, "max_ticks"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mod(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

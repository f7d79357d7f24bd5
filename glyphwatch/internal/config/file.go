// Package config handles glyphwatch configuration from YAML files or SQLite.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level glyphwatch configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	Targets  []TargetConfig `yaml:"targets"`
	DebugAPI DebugAPIConfig `yaml:"debug_api"`
}

// BrowserConfig controls how Chrome is reached.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headful          bool     `yaml:"headful"`
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// OverlayConfig tunes scanning and painting.
type OverlayConfig struct {
	TargetSelector   string        `yaml:"target_selector"`
	RootSelector     string        `yaml:"root_selector"`
	ClassPrefix      string        `yaml:"class_prefix"`
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxRetries       int           `yaml:"max_retries"`
	MaxClasses       int           `yaml:"max_classes"`
	Debug            bool          `yaml:"debug"`
	DumpInterval     time.Duration `yaml:"dump_interval"`
}

// TargetConfig is a page to overlay. With Match set, open tabs whose URL
// matches are attached; URL is opened when none match.
type TargetConfig struct {
	ID    string   `yaml:"id"`
	URL   string   `yaml:"url"`
	Match []string `yaml:"match"`
}

// DebugAPIConfig controls the debug HTTP listener. Empty Addr disables it.
type DebugAPIConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no targets.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "fonts", "media"}
	}
	if c.Overlay.TargetSelector == "" {
		c.Overlay.TargetSelector = `[data-testid="task-instance"]`
	}
	if c.Overlay.RootSelector == "" {
		c.Overlay.RootSelector = `#root, #react-container, [id*="react"]`
	}
	if c.Overlay.ClassPrefix == "" {
		c.Overlay.ClassPrefix = "c-"
	}
	if c.Overlay.ThrottleInterval <= 0 {
		c.Overlay.ThrottleInterval = time.Second
	}
	if c.Overlay.RetryDelay <= 0 {
		c.Overlay.RetryDelay = 300 * time.Millisecond
	}
	if c.Overlay.DumpInterval <= 0 {
		c.Overlay.DumpInterval = 10 * time.Second
	}
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.ID == "" {
			t.ID = fmt.Sprintf("target-%d", i+1)
		}
	}
}

func (c *Config) validate() error {
	for _, t := range c.Targets {
		if t.URL == "" && len(t.Match) == 0 {
			return fmt.Errorf("config: target %q: url or match required", t.ID)
		}
	}
	if c.Overlay.MaxRetries < 0 || c.Overlay.MaxClasses < 0 {
		return fmt.Errorf("config: overlay: max_retries and max_classes must be >= 0")
	}
	return nil
}

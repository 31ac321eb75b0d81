package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/brendandebeasi/floatchart/pkg/chartload"
	"github.com/brendandebeasi/floatchart/pkg/interaction"
	"github.com/brendandebeasi/floatchart/pkg/paths"
)

// DefaultRestrictedPrefixes are browser-internal pages that refuse injection.
var DefaultRestrictedPrefixes = []string{"chrome://", "chrome-extension://", "edge://", "about:", "moz-extension://"}

// LoadConfig reads path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// SaveConfig writes the config to the specified path
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Hub.StateFile == "" {
		cfg.Hub.StateFile = paths.StatePath("state.json")
	}
	if cfg.Hub.RestrictedPrefixes == nil {
		cfg.Hub.RestrictedPrefixes = append([]string(nil), DefaultRestrictedPrefixes...)
	}

	def := chartload.DefaultConfig()
	if cfg.Chart.LibraryURL == "" {
		cfg.Chart.LibraryURL = def.LibraryURL
	}
	if cfg.Chart.LoadTimeout == 0 {
		cfg.Chart.LoadTimeout = def.Timeout
	}
	if cfg.Chart.MaxRetries == 0 {
		cfg.Chart.MaxRetries = def.MaxRetries
	}
	if cfg.Chart.RetryDelay == 0 {
		cfg.Chart.RetryDelay = def.RetryDelay
	}
	if cfg.Chart.PollInterval == 0 {
		cfg.Chart.PollInterval = def.PollInterval
	}
	if cfg.Chart.Timezone == "" {
		cfg.Chart.Timezone = def.Timezone
	}
	if cfg.Chart.Locale == "" {
		cfg.Chart.Locale = def.Locale
	}

	if cfg.Widget.ToggleKey == "" {
		cfg.Widget.ToggleKey = "ctrl+shift+f"
	}
	if cfg.Widget.ResizeMargin == 0 {
		cfg.Widget.ResizeMargin = interaction.DefaultMargin
	}
}

package config

import (
	"time"

	"github.com/brendandebeasi/floatchart/pkg/chartload"
	"github.com/brendandebeasi/floatchart/pkg/paths"
)

type Config struct {
	Hub    Hub    `yaml:"hub"`
	Chart  Chart  `yaml:"chart"`
	Widget Widget `yaml:"widget"`
}

type Hub struct {
	StateFile          string   `yaml:"state_file"`          // default: <state dir>/state.json
	WebSocketAddr      string   `yaml:"websocket_addr"`      // loopback listen address for browser tabs, empty disables
	WebSocketToken     string   `yaml:"websocket_token"`     // required ?token= for browser tabs
	RestrictedPrefixes []string `yaml:"restricted_prefixes"` // tab URLs never injected or broadcast to
	WatchStateFile     bool     `yaml:"watch_state_file"`    // reload and broadcast on external edits
}

type Chart struct {
	LibraryURL   string        `yaml:"library_url" validate:"url"`
	LoadTimeout  time.Duration `yaml:"load_timeout" validate:"gt=0"`
	MaxRetries   int           `yaml:"max_retries" validate:"gte=0"`
	RetryDelay   time.Duration `yaml:"retry_delay" validate:"gte=0"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	Timezone     string        `yaml:"timezone"`
	Locale       string        `yaml:"locale"`
}

type Widget struct {
	ToggleKey    string `yaml:"toggle_key"` // default: ctrl+shift+f
	ResizeMargin int    `yaml:"resize_margin" validate:"gte=0"`
}

// Loader returns the chart load policy.
func (c Chart) Loader() chartload.Config {
	return chartload.Config{
		LibraryURL:   c.LibraryURL,
		Timeout:      c.LoadTimeout,
		RetryDelay:   c.RetryDelay,
		PollInterval: c.PollInterval,
		MaxRetries:   c.MaxRetries,
		Timezone:     c.Timezone,
		Locale:       c.Locale,
	}
}

func DefaultConfigPath() string {
	return paths.ConfigPath()
}

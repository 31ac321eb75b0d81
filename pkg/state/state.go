// Package state defines the global widget record shared by every tab and the
// partial updates that are merged into it.
package state

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Theme is the chart color scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// Size and position limits shared with the interaction engine.
const (
	MinWidth  = 300
	MinHeight = 200
)

// Intervals accepted by the chart library.
var Intervals = []string{"1", "3", "5", "15", "30", "60", "120", "180", "240", "D", "W", "M"}

// Settings is the chart configuration plus the overlay rectangle.
type Settings struct {
	Symbol   string  `json:"symbol" yaml:"symbol" validate:"required"`
	Interval string  `json:"interval" yaml:"interval" validate:"oneof=1 3 5 15 30 60 120 180 240 D W M"`
	Theme    Theme   `json:"theme" yaml:"theme" validate:"oneof=dark light"`
	Style    string  `json:"style" yaml:"style" validate:"oneof=0 1 2 3 4 5 6 7 8 9"`
	Width    int     `json:"width" yaml:"width" validate:"gte=300"`
	Height   int     `json:"height" yaml:"height" validate:"gte=200"`
	X        int     `json:"x" yaml:"x" validate:"gte=0"`
	Y        int     `json:"y" yaml:"y" validate:"gte=0"`
	Opacity  float64 `json:"opacity" yaml:"opacity" validate:"gte=0,lte=1"`
}

// GlobalState is the single authoritative visibility and settings record.
type GlobalState struct {
	IsVisible   bool     `json:"isVisible"`
	IsMinimized bool     `json:"isMinimized"`
	Settings    Settings `json:"settings"`
}

// DefaultSettings returns the settings seeded into an empty store.
func DefaultSettings() Settings {
	return Settings{
		Symbol:   "BTCUSD",
		Interval: "D",
		Theme:    ThemeDark,
		Style:    "1",
		Width:    600,
		Height:   400,
		X:        100,
		Y:        100,
		Opacity:  1,
	}
}

// Default returns a hidden, unminimized state with default settings.
func Default() GlobalState {
	return GlobalState{Settings: DefaultSettings()}
}

var validate = validator.New()

// Validate checks the settings against their field constraints.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// Validate checks the nested settings.
func (g GlobalState) Validate() error {
	return g.Settings.Validate()
}

// ChartChanged reports whether any setting that requires a fresh chart load differs.
// Geometry and opacity are applied to the surface in place.
func (s Settings) ChartChanged(other Settings) bool {
	return s.Symbol != other.Symbol ||
		s.Interval != other.Interval ||
		s.Theme != other.Theme ||
		s.Style != other.Style
}

// Package colors holds the chart overlay palettes and the color math used to
// render them in a terminal, where opacity has to be faked by blending
// toward the terminal background.
package colors

import (
	"github.com/brendandebeasi/floatchart/pkg/state"
)

// Palette is the set of colors one overlay is drawn with.
type Palette struct {
	Bg       string
	Fg       string
	Border   string
	HeaderBg string
	HeaderFg string
	Muted    string
	Accent   string
	Error    string
}

// Chart palettes follow the embedded chart's dark and light schemes.
var palettes = map[state.Theme]Palette{
	state.ThemeDark: {
		Bg:       "#131722",
		Fg:       "#d1d4dc",
		Border:   "#2a2e39",
		HeaderBg: "#1e222d",
		HeaderFg: "#d1d4dc",
		Muted:    "#787b86",
		Accent:   "#2962ff",
		Error:    "#f23645",
	},
	state.ThemeLight: {
		Bg:       "#ffffff",
		Fg:       "#131722",
		Border:   "#e0e3eb",
		HeaderBg: "#f1f3f6",
		HeaderFg: "#131722",
		Muted:    "#787b86",
		Accent:   "#2962ff",
		Error:    "#f23645",
	},
}

// ForTheme returns the palette for t. Unknown themes get the dark palette.
func ForTheme(t state.Theme) Palette {
	if p, ok := palettes[t]; ok {
		return p
	}
	return palettes[state.ThemeDark]
}

// minTextContrast keeps header and body text legible on their own
// backgrounds after blending.
const minTextContrast = 3.0

// WithOpacity blends every color toward the terminal background. Text keeps
// a minimum contrast against the blended background it sits on.
func (p Palette) WithOpacity(alpha float64, terminalBg string) Palette {
	if alpha >= 1 {
		return p
	}
	out := Palette{
		Bg:       Blend(p.Bg, terminalBg, alpha),
		Fg:       Blend(p.Fg, terminalBg, alpha),
		Border:   Blend(p.Border, terminalBg, alpha),
		HeaderBg: Blend(p.HeaderBg, terminalBg, alpha),
		HeaderFg: Blend(p.HeaderFg, terminalBg, alpha),
		Muted:    Blend(p.Muted, terminalBg, alpha),
		Accent:   Blend(p.Accent, terminalBg, alpha),
		Error:    Blend(p.Error, terminalBg, alpha),
	}
	out.Fg = EnsureContrast(out.Fg, out.Bg, minTextContrast)
	out.HeaderFg = EnsureContrast(out.HeaderFg, out.HeaderBg, minTextContrast)
	return out
}

package colors

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/muesli/termenv"
)

// ThemeMode selects how the terminal background is determined.
type ThemeMode string

const (
	ThemeModeAuto  ThemeMode = "auto"
	ThemeModeDark  ThemeMode = "dark"
	ThemeModeLight ThemeMode = "light"
)

// BackgroundDetector decides whether the terminal background is dark. The
// result is computed once.
type BackgroundDetector struct {
	mode ThemeMode

	once  sync.Once
	dark  bool
	color string
}

func NewBackgroundDetector(mode ThemeMode) *BackgroundDetector {
	return &BackgroundDetector{mode: mode}
}

// IsDarkBackground reports whether the background is dark.
func (d *BackgroundDetector) IsDarkBackground() bool {
	d.once.Do(d.detect)
	return d.dark
}

// Color returns the background as hex: the queried color when the terminal
// answered, otherwise black or white.
func (d *BackgroundDetector) Color() string {
	d.once.Do(d.detect)
	if d.color != "" {
		return d.color
	}
	if d.dark {
		return "#000000"
	}
	return "#ffffff"
}

func (d *BackgroundDetector) detect() {
	switch d.mode {
	case ThemeModeDark:
		d.dark = true
		return
	case ThemeModeLight:
		d.dark = false
		return
	}
	if dark, ok := checkCOLORFGBG(); ok {
		d.dark = dark
		return
	}
	if dark, hex, ok := checkTermenv(); ok {
		d.dark, d.color = dark, hex
		return
	}
	// Most terminal users run dark themes.
	d.dark = true
}

// checkCOLORFGBG reads "fg;bg" ANSI indexes. 0-7 are dark backgrounds.
func checkCOLORFGBG() (dark bool, ok bool) {
	v := os.Getenv("COLORFGBG")
	if v == "" {
		return false, false
	}
	parts := strings.Split(v, ";")
	if len(parts) < 2 {
		return false, false
	}
	bg, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return false, false
	}
	return bg < 8 || bg == 16, true
}

// checkTermenv queries the terminal with OSC 11. Multiplexers usually do not
// answer.
func checkTermenv() (dark bool, hex string, ok bool) {
	out := termenv.NewOutput(os.Stdout)
	bg := out.BackgroundColor()
	if bg == nil {
		return false, "", false
	}
	if _, none := bg.(termenv.NoColor); none {
		return false, "", false
	}
	return out.HasDarkBackground(), termenv.ConvertToRGB(bg).Hex(), true
}

package colors

import (
	"github.com/lucasb-eyer/go-colorful"
)

// Luminance returns the WCAG relative luminance of a hex color, 0 (black) to
// 1 (white). Invalid colors count as black.
func Luminance(hex string) float64 {
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0
	}
	r, g, b := c.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// ContrastRatio is the WCAG contrast ratio, 1 (none) to 21.
func ContrastRatio(fg, bg string) float64 {
	l1, l2 := Luminance(fg), Luminance(bg)
	if l1 < l2 {
		l1, l2 = l2, l1
	}
	return (l1 + 0.05) / (l2 + 0.05)
}

// IsLight reports whether the color is closer to white than black.
func IsLight(hex string) bool {
	return Luminance(hex) > 0.5
}

// EnsureContrast moves fg away from bg in 10% steps until the ratio is at
// least minRatio, falling back to black or white.
func EnsureContrast(fg, bg string, minRatio float64) string {
	if ContrastRatio(fg, bg) >= minRatio {
		return fg
	}
	c, err := colorful.Hex(fg)
	if err != nil {
		return fg
	}
	target := colorful.Color{}
	if Luminance(fg) > Luminance(bg) {
		target = colorful.Color{R: 1, G: 1, B: 1}
	}
	for step := 1; step <= 10; step++ {
		adjusted := c.BlendRgb(target, float64(step)/10).Clamped().Hex()
		if ContrastRatio(adjusted, bg) >= minRatio {
			return adjusted
		}
	}
	if IsLight(bg) {
		return "#000000"
	}
	return "#ffffff"
}

// Blend mixes fg over bg with the given alpha (1 is fg, 0 is bg). Invalid
// input returns fg unchanged.
func Blend(fg, bg string, alpha float64) string {
	f, err := colorful.Hex(fg)
	if err != nil {
		return fg
	}
	b, err := colorful.Hex(bg)
	if err != nil {
		return fg
	}
	switch {
	case alpha >= 1:
		return f.Hex()
	case alpha <= 0:
		return b.Hex()
	}
	return b.BlendRgb(f, alpha).Clamped().Hex()
}

package widget

import (
	"fmt"
	"strings"
)

// Chord is a key plus modifiers, written like "ctrl+shift+f".
type Chord struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Key   string
}

// KeyEvent is a key press reported by the host.
type KeyEvent = Chord

// ParseChord parses "mod+mod+key". Modifiers are ctrl, shift and alt; the key
// is compared case-insensitively.
func ParseChord(s string) (Chord, error) {
	var c Chord
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "+")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if i == len(parts)-1 {
			if p == "" {
				return Chord{}, fmt.Errorf("chord %q has no key", s)
			}
			c.Key = p
			break
		}
		switch p {
		case "ctrl", "control":
			c.Ctrl = true
		case "shift":
			c.Shift = true
		case "alt", "option":
			c.Alt = true
		default:
			return Chord{}, fmt.Errorf("chord %q: unknown modifier %q", s, p)
		}
	}
	return c, nil
}

// Matches reports whether ev is exactly this chord.
func (c Chord) Matches(ev KeyEvent) bool {
	return c.Ctrl == ev.Ctrl &&
		c.Shift == ev.Shift &&
		c.Alt == ev.Alt &&
		strings.EqualFold(c.Key, ev.Key)
}

func (c Chord) String() string {
	var parts []string
	if c.Ctrl {
		parts = append(parts, "ctrl")
	}
	if c.Alt {
		parts = append(parts, "alt")
	}
	if c.Shift {
		parts = append(parts, "shift")
	}
	return strings.Join(append(parts, c.Key), "+")
}

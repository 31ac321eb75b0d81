package main

import (
	"sync"

	"github.com/brendandebeasi/floatchart/pkg/interaction"
	"github.com/brendandebeasi/floatchart/pkg/state"
)

// Settings geometry is in pixels; the terminal draws in cells.
const (
	cellWidth  = 8
	cellHeight = 16
)

type chartPhase int

const (
	chartNone chartPhase = iota
	chartLoading
	chartLoaded
	chartError
)

// termSurface is the overlay as the terminal draws it. The widget instance
// and the loader's timers mutate it from different goroutines; View reads a
// snapshot.
type termSurface struct {
	mu        sync.Mutex
	rect      interaction.Rect
	vp        interaction.Viewport
	built     bool
	visible   bool
	minimized bool
	opacity   float64
	gesture   *interaction.Mode
	phase     chartPhase
	attempt   uint64
	frameSize int
	errText   string

	// onChange asks the program to redraw. Must not block.
	onChange func()
	// probe checks that the chart library is reachable for attempt and
	// reports the outcome to the loader.
	probe func(attempt uint64)
}

type surfaceSnapshot struct {
	Rect      interaction.Rect
	Built     bool
	Visible   bool
	Minimized bool
	Opacity   float64
	Dragging  bool
	Resizing  bool
	Phase     chartPhase
	Attempt   uint64
	FrameSize int
	ErrText   string
}

func newTermSurface() *termSurface {
	return &termSurface{opacity: 1, vp: interaction.Viewport{Width: 80 * cellWidth, Height: 24 * cellHeight}}
}

func (s *termSurface) snapshot() surfaceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := surfaceSnapshot{
		Rect:      s.rect,
		Built:     s.built,
		Visible:   s.visible,
		Minimized: s.minimized,
		Opacity:   s.opacity,
		Phase:     s.phase,
		Attempt:   s.attempt,
		FrameSize: s.frameSize,
		ErrText:   s.errText,
	}
	if s.gesture != nil {
		snap.Dragging = *s.gesture == interaction.ModeMove
		snap.Resizing = *s.gesture == interaction.ModeResize
	}
	return snap
}

func (s *termSurface) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// setTerminalSize records the terminal size in cells.
func (s *termSurface) setTerminalSize(cols, rows int) {
	s.mu.Lock()
	s.vp = interaction.Viewport{Width: cols * cellWidth, Height: rows * cellHeight}
	s.mu.Unlock()
}

func (s *termSurface) Rect() interaction.Rect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rect
}

func (s *termSurface) Viewport() interaction.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vp
}

func (s *termSurface) SetRect(r interaction.Rect) {
	s.mu.Lock()
	s.rect = r
	s.mu.Unlock()
}

// Terminal mouse reporting already delivers every event of a held button to
// the program, so capture is implicit.
func (s *termSurface) CapturePointer(int) {}
func (s *termSurface) ReleasePointer(int) {}

func (s *termSurface) BeginGesture(m interaction.Mode) {
	s.mu.Lock()
	s.gesture = &m
	s.mu.Unlock()
}

func (s *termSurface) EndGesture(interaction.Mode) {
	s.mu.Lock()
	s.gesture = nil
	s.mu.Unlock()
}

func (s *termSurface) Build(state.Settings) {
	s.mu.Lock()
	s.built = true
	s.mu.Unlock()
}

func (s *termSurface) SetVisible(v bool) {
	s.mu.Lock()
	s.visible = v
	s.mu.Unlock()
}

func (s *termSurface) SetMinimized(v bool) {
	s.mu.Lock()
	s.minimized = v
	s.mu.Unlock()
}

func (s *termSurface) SetOpacity(v float64) {
	s.mu.Lock()
	s.opacity = v
	s.mu.Unlock()
}

func (s *termSurface) Mount(attempt uint64, markup string) error {
	s.mu.Lock()
	s.attempt = attempt
	s.frameSize = len(markup)
	s.errText = ""
	probe := s.probe
	s.mu.Unlock()

	if probe != nil {
		go probe(attempt)
	}
	return nil
}

func (s *termSurface) ShowLoading() {
	s.setPhase(chartLoading, "")
}

func (s *termSurface) ShowLoaded() {
	s.setPhase(chartLoaded, "")
}

func (s *termSurface) ShowError(msg string) {
	s.setPhase(chartError, msg)
}

func (s *termSurface) setPhase(p chartPhase, errText string) {
	s.mu.Lock()
	s.phase = p
	s.errText = errText
	s.mu.Unlock()
	s.changed()
}

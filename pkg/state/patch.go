package state

// SettingsPatch is a partial Settings. Nil fields are absent and left untouched
// by Apply.
type SettingsPatch struct {
	Symbol   *string  `json:"symbol,omitempty"`
	Interval *string  `json:"interval,omitempty"`
	Theme    *Theme   `json:"theme,omitempty"`
	Style    *string  `json:"style,omitempty"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	X        *int     `json:"x,omitempty"`
	Y        *int     `json:"y,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
}

// Patch is a partial GlobalState. Settings are merged key by key rather than
// replaced wholesale.
type Patch struct {
	IsVisible   *bool          `json:"isVisible,omitempty"`
	IsMinimized *bool          `json:"isMinimized,omitempty"`
	Settings    *SettingsPatch `json:"settings,omitempty"`
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Apply returns s with every present field of p written over it.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.Symbol != nil {
		s.Symbol = *p.Symbol
	}
	if p.Interval != nil {
		s.Interval = *p.Interval
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.Style != nil {
		s.Style = *p.Style
	}
	if p.Width != nil {
		s.Width = *p.Width
	}
	if p.Height != nil {
		s.Height = *p.Height
	}
	if p.X != nil {
		s.X = *p.X
	}
	if p.Y != nil {
		s.Y = *p.Y
	}
	if p.Opacity != nil {
		s.Opacity = *p.Opacity
	}
	return s
}

// Apply returns g with p merged in.
func (g GlobalState) Apply(p Patch) GlobalState {
	if p.IsVisible != nil {
		g.IsVisible = *p.IsVisible
	}
	if p.IsMinimized != nil {
		g.IsMinimized = *p.IsMinimized
	}
	if p.Settings != nil {
		g.Settings = g.Settings.Apply(*p.Settings)
	}
	return g
}

// IsEmpty reports whether the patch carries no fields.
func (p SettingsPatch) IsEmpty() bool {
	return p == SettingsPatch{}
}

// FullPatch returns a patch that sets every field to the values in s.
func FullPatch(s Settings) SettingsPatch {
	return SettingsPatch{
		Symbol:   Ptr(s.Symbol),
		Interval: Ptr(s.Interval),
		Theme:    Ptr(s.Theme),
		Style:    Ptr(s.Style),
		Width:    Ptr(s.Width),
		Height:   Ptr(s.Height),
		X:        Ptr(s.X),
		Y:        Ptr(s.Y),
		Opacity:  Ptr(s.Opacity),
	}
}

// Snapshot returns a patch that carries the whole state.
func Snapshot(g GlobalState) Patch {
	sp := FullPatch(g.Settings)
	return Patch{
		IsVisible:   Ptr(g.IsVisible),
		IsMinimized: Ptr(g.IsMinimized),
		Settings:    &sp,
	}
}

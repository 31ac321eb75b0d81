package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/brendandebeasi/floatchart/pkg/state"
)

// quickPicks are offered as chips above the symbol field.
var quickPicks = []string{"BTCUSD", "ETHUSD", "AAPL", "SPX", "EURUSD"}

const (
	fieldSymbol = iota
	fieldInterval
	fieldTheme
	fieldStyle
	fieldWidth
	fieldHeight
	fieldOpacity
	fieldCount
)

var fieldLabels = [fieldCount]string{"Symbol", "Interval", "Theme", "Style", "Width", "Height", "Opacity"}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Width(10)
	chipStyle  = lipgloss.NewStyle().Padding(0, 1)
	activeChip = chipStyle.Reverse(true)
	helpStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef5350"))
)

// formModel edits the chart settings. Only fields that differ from base end
// up in the resulting patch.
type formModel struct {
	base   state.Settings
	inputs []textinput.Model
	focus  int
	err    error

	submitted bool
	result    state.SettingsPatch
}

func newFormModel(base state.Settings) formModel {
	values := [fieldCount]string{
		base.Symbol,
		base.Interval,
		string(base.Theme),
		base.Style,
		strconv.Itoa(base.Width),
		strconv.Itoa(base.Height),
		strconv.FormatFloat(base.Opacity, 'f', -1, 64),
	}
	m := formModel{base: base, inputs: make([]textinput.Model, fieldCount)}
	for i := range m.inputs {
		ti := textinput.New()
		ti.Prompt = "> "
		ti.CharLimit = 16
		ti.SetValue(values[i])
		m.inputs[i] = ti
	}
	m.inputs[fieldSymbol].Placeholder = "BTCUSD"
	m.inputs[fieldInterval].Placeholder = strings.Join(state.Intervals, " ")
	m.inputs[fieldTheme].Placeholder = "dark or light"
	m.inputs[fieldSymbol].Focus()
	return m
}

func (m formModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m formModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			cmd := m.moveFocus(1)
			return m, cmd
		case "shift+tab", "up":
			cmd := m.moveFocus(-1)
			return m, cmd
		case "ctrl+n":
			m.inputs[fieldSymbol].SetValue(nextPick(m.inputs[fieldSymbol].Value()))
			return m, nil
		case "enter":
			if m.focus < fieldCount-1 {
				cmd := m.moveFocus(1)
				return m, cmd
			}
			return m.submit()
		case "ctrl+s":
			return m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *formModel) moveFocus(delta int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	return m.inputs[m.focus].Focus()
}

func (m formModel) submit() (tea.Model, tea.Cmd) {
	p, err := m.patch()
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.submitted = true
	m.result = p
	return m, tea.Quit
}

// patch parses the fields and validates the merged settings.
func (m formModel) patch() (state.SettingsPatch, error) {
	var p state.SettingsPatch
	v := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }

	if s := normalizeSymbol(v(fieldSymbol)); s != m.base.Symbol {
		p.Symbol = &s
	}
	if s := v(fieldInterval); s != m.base.Interval {
		p.Interval = &s
	}
	if s := state.Theme(strings.ToLower(v(fieldTheme))); s != m.base.Theme {
		p.Theme = &s
	}
	if s := v(fieldStyle); s != m.base.Style {
		p.Style = &s
	}

	width, err := strconv.Atoi(v(fieldWidth))
	if err != nil {
		return p, fmt.Errorf("width: %q is not a number", v(fieldWidth))
	}
	if width != m.base.Width {
		p.Width = &width
	}
	height, err := strconv.Atoi(v(fieldHeight))
	if err != nil {
		return p, fmt.Errorf("height: %q is not a number", v(fieldHeight))
	}
	if height != m.base.Height {
		p.Height = &height
	}
	opacity, err := strconv.ParseFloat(v(fieldOpacity), 64)
	if err != nil {
		return p, fmt.Errorf("opacity: %q is not a number", v(fieldOpacity))
	}
	if opacity != m.base.Opacity {
		p.Opacity = &opacity
	}

	if err := m.base.Apply(p).Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (m formModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Floating chart settings"))
	b.WriteString("\n\n")

	current := normalizeSymbol(m.inputs[fieldSymbol].Value())
	chips := make([]string, len(quickPicks))
	for i, s := range quickPicks {
		if s == current {
			chips[i] = activeChip.Render(s)
		} else {
			chips[i] = chipStyle.Render(s)
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, chips...))
	b.WriteString("\n\n")

	for i, in := range m.inputs {
		b.WriteString(labelStyle.Render(fieldLabels[i]))
		b.WriteString(in.View())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab/shift+tab move · ctrl+n next pick · enter save · esc cancel"))
	b.WriteString("\n")
	return b.String()
}

// nextPick returns the quick pick after current, or the first one.
func nextPick(current string) string {
	current = normalizeSymbol(current)
	for i, s := range quickPicks {
		if s == current {
			return quickPicks[(i+1)%len(quickPicks)]
		}
	}
	return quickPicks[0]
}

func (s *session) form(ctx context.Context) error {
	reqCtx, cancel := s.request(ctx)
	g, err := s.c.GetGlobalState(reqCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}

	final, err := tea.NewProgram(newFormModel(g.Settings), tea.WithContext(ctx), tea.WithOutput(s.out)).Run()
	if err != nil {
		return err
	}
	fm, ok := final.(formModel)
	if !ok || !fm.submitted {
		fmt.Fprintln(s.out, "cancelled")
		return nil
	}
	if fm.result.IsEmpty() {
		fmt.Fprintln(s.out, "nothing changed")
		return nil
	}
	return s.set(ctx, fm.result)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/atotto/clipboard"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/brendandebeasi/floatchart/pkg/config"
	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/webbridge"
)

var errNothingToSet = errors.New("nothing to change: pass a symbol or at least one flag")

func (s *session) toggle(ctx context.Context) error {
	ctx, cancel := s.request(ctx)
	defer cancel()

	visible, err := s.c.ToggleVisibility(ctx)
	if err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	if visible {
		fmt.Fprintln(s.out, "widget shown")
	} else {
		fmt.Fprintln(s.out, "widget hidden")
	}
	return nil
}

// status asks a live widget first and falls back to the hub's record when no
// tab answers.
func (s *session) status(ctx context.Context, tabID string, asJSON bool) error {
	ctx, cancel := s.request(ctx)
	defer cancel()

	st, err := s.c.GetStatus(ctx, tabID)
	if err != nil {
		if tabID != "" {
			return fmt.Errorf("status of tab %q: %w", tabID, err)
		}
		g, gerr := s.c.GetGlobalState(ctx)
		if gerr != nil {
			return fmt.Errorf("status: %w", gerr)
		}
		st = hub.Status{IsVisible: g.IsVisible, Settings: g.Settings}
	}

	if asJSON {
		return writeJSON(s.out, st)
	}
	writeStatus(s.out, st)
	return nil
}

func (s *session) set(ctx context.Context, p state.SettingsPatch) error {
	ctx, cancel := s.request(ctx)
	defer cancel()

	settings, err := s.c.UpdateSettings(ctx, p)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	fmt.Fprintln(s.out, "settings saved")
	writeSettings(s.out, settings)
	return nil
}

func (s *session) reset(ctx context.Context) error {
	ctx, cancel := s.request(ctx)
	defer cancel()

	settings, err := s.c.ResetSettings(ctx)
	if err != nil {
		return fmt.Errorf("reset settings: %w", err)
	}
	fmt.Fprintln(s.out, "settings reset to defaults")
	writeSettings(s.out, settings)
	return nil
}

func settingsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "ticker, e.g. BTCUSD"},
		&cli.StringFlag{Name: "interval", Aliases: []string{"i"}, Usage: "bar interval: " + strings.Join(state.Intervals, ", ")},
		&cli.StringFlag{Name: "theme", Usage: "dark or light"},
		&cli.StringFlag{Name: "style", Usage: "chart style 0-9"},
		&cli.IntFlag{Name: "width", Usage: "width in px"},
		&cli.IntFlag{Name: "height", Usage: "height in px"},
		&cli.IntFlag{Name: "x", Usage: "left edge in px"},
		&cli.IntFlag{Name: "y", Usage: "top edge in px"},
		&cli.FloatFlag{Name: "opacity", Usage: "0 to 1"},
	}
}

// patchFromFlags builds a patch from the flags that were given. The symbol may
// also be passed as the first argument.
func patchFromFlags(cmd *cli.Command) (state.SettingsPatch, error) {
	var p state.SettingsPatch

	symbol := cmd.Args().First()
	if cmd.IsSet("symbol") {
		symbol = cmd.String("symbol")
	}
	if symbol = normalizeSymbol(symbol); symbol != "" {
		p.Symbol = &symbol
	}
	if cmd.IsSet("interval") {
		p.Interval = state.Ptr(cmd.String("interval"))
	}
	if cmd.IsSet("theme") {
		p.Theme = state.Ptr(state.Theme(strings.ToLower(cmd.String("theme"))))
	}
	if cmd.IsSet("style") {
		p.Style = state.Ptr(cmd.String("style"))
	}
	if cmd.IsSet("width") {
		p.Width = state.Ptr(int(cmd.Int("width")))
	}
	if cmd.IsSet("height") {
		p.Height = state.Ptr(int(cmd.Int("height")))
	}
	if cmd.IsSet("x") {
		p.X = state.Ptr(int(cmd.Int("x")))
	}
	if cmd.IsSet("y") {
		p.Y = state.Ptr(int(cmd.Int("y")))
	}
	if cmd.IsSet("opacity") {
		p.Opacity = state.Ptr(cmd.Float("opacity"))
	}

	if p.IsEmpty() {
		return p, errNothingToSet
	}
	return p, nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// pairAction prints the URL the extension's options page takes.
func pairAction(out io.Writer, cfg config.Hub, copyURL, showQR bool) error {
	if cfg.WebSocketAddr == "" {
		return errors.New("browser bridge disabled: set hub.websocket_addr in the config")
	}
	token := cfg.WebSocketToken
	if token == "" {
		var err error
		if token, err = webbridge.LoadOrGenerateToken(webbridge.TokenPath()); err != nil {
			return fmt.Errorf("failed to load token: %w", err)
		}
	}

	url := webbridge.ConnectURL(cfg.WebSocketAddr, token)
	fmt.Fprintln(out, url)

	if showQR {
		q, err := qrcode.New(url, qrcode.Medium)
		if err != nil {
			return fmt.Errorf("qr code: %w", err)
		}
		fmt.Fprint(out, q.ToSmallString(false))
	}
	if copyURL {
		if err := clipboard.WriteAll(url); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		fmt.Fprintln(out, "copied to clipboard")
	}
	return nil
}

func writeStatus(out io.Writer, st hub.Status) {
	visible := "hidden"
	if st.IsVisible {
		visible = "visible"
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "widget\t%s\n", visible)
	settingsRows(tw, st.Settings)
	tw.Flush()
}

func writeSettings(out io.Writer, s state.Settings) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	settingsRows(tw, s)
	tw.Flush()
}

func settingsRows(w io.Writer, s state.Settings) {
	fmt.Fprintf(w, "symbol\t%s\n", s.Symbol)
	fmt.Fprintf(w, "interval\t%s\n", s.Interval)
	fmt.Fprintf(w, "theme\t%s\n", s.Theme)
	fmt.Fprintf(w, "style\t%s\n", s.Style)
	fmt.Fprintf(w, "size\t%dx%d\n", s.Width, s.Height)
	fmt.Fprintf(w, "position\t%d,%d\n", s.X, s.Y)
	fmt.Fprintf(w, "opacity\t%.2f\n", s.Opacity)
}

// writeJSON pretty-prints v, with syntax colors when out is a terminal.
func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return quick.Highlight(out, string(data)+"\n", "json", "terminal256", "monokai")
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

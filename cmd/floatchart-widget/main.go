// Command floatchart-widget hosts one widget instance in a terminal. It
// subscribes to the profile's hub like a browser tab would and draws the
// floating chart panel with the terminal as its page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/muesli/termenv"
	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/chartload"
	"github.com/brendandebeasi/floatchart/pkg/colors"
	"github.com/brendandebeasi/floatchart/pkg/config"
	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/logging"
	"github.com/brendandebeasi/floatchart/pkg/paths"
	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/timer"
	"github.com/brendandebeasi/floatchart/pkg/widget"
)

var (
	profile    = flag.String("profile", "default", "hub profile to join")
	configPath = flag.String("config", "", "config file (default: ~/.config/floatchart/config.yaml)")
	tabID      = flag.String("tab", "", "tab id reported to the hub (default: term-<pid>)")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
	colorMode  = flag.String("color", "auto", "color profile: auto, truecolor, 256, 16, ascii")
	themeMode  = flag.String("theme-mode", "auto", "terminal background: auto, dark, light")
)

// clientLink sends local changes without waiting for the hub's reply; the
// resulting sync-state arrives through the subscription.
type clientLink struct {
	c *hub.Client
}

func (l clientLink) UpdateGlobalState(ctx context.Context, p state.Patch) error {
	return l.c.Send(ctx, hub.UpdateGlobalState{Patch: p})
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "floatchart-widget: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	loggers := logging.New(*profile, *debugMode)
	defer loggers.Sync()
	defer loggers.RecoverAndLog("widget")
	log := loggers.Event.With(zap.String("proc", "widget"))

	path := *configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := setColorProfile(*colorMode); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	tab := hub.Tab{ID: *tabID, URL: "terminal://" + *profile}
	if tab.ID == "" {
		tab.ID = "term-" + strconv.Itoa(os.Getpid())
	}

	var p *tea.Program
	client, err := hub.Dial(ctx, paths.SocketPath(*profile), hub.ClientOptions{
		ClientID: tab.ID,
		Logger:   log,
		OnMessage: func(f hub.Frame) {
			p.Send(hubFrameMsg(f))
		},
	})
	if err != nil {
		return fmt.Errorf("connect to hub %q: %w", *profile, err)
	}
	defer client.Close()

	surface := newTermSurface()
	w, err := widget.New(surface, clientLink{client}, widget.Options{
		Chart:        cfg.Chart.Loader(),
		Scheduler:    timer.Real{},
		Logger:       log,
		ToggleKey:    cfg.Widget.ToggleKey,
		ResizeMargin: cfg.Widget.ResizeMargin,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	surface.probe = newProbe(ctx, cfg.Chart.LibraryURL, cfg.Chart.LoadTimeout, w.Loader())
	surface.onChange = func() {
		// Loader callbacks can run inside Update, where Send would block.
		go p.Send(redrawMsg{})
	}

	zones := zone.New()
	defer zones.Close()

	bg := colors.NewBackgroundDetector(colors.ThemeMode(*themeMode))
	m := model{
		ctx:     ctx,
		widget:  w,
		surface: surface,
		client:  client,
		tab:     tab,
		zones:   zones,
		termBg:  bg.Color(),
		log:     log,
	}

	p = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if fm, ok := final.(model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}

// newProbe returns the terminal's readiness check: the chart counts as
// constructed once its library URL answers.
func newProbe(ctx context.Context, libraryURL string, timeout time.Duration, loader *chartload.Loader) func(uint64) {
	httpClient := &http.Client{Timeout: timeout}
	return func(attempt uint64) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, libraryURL, nil)
		if err != nil {
			loader.Fail(attempt, err)
			return
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			loader.Fail(attempt, err)
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			loader.Fail(attempt, fmt.Errorf("chart library returned %s", resp.Status))
			return
		}
		loader.Ready(attempt)
	}
}

func setColorProfile(mode string) error {
	switch mode {
	case "auto":
	case "truecolor":
		lipgloss.SetColorProfile(termenv.TrueColor)
	case "256":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "16":
		lipgloss.SetColorProfile(termenv.ANSI)
	case "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
	default:
		return fmt.Errorf("unknown color profile %q", mode)
	}
	return nil
}

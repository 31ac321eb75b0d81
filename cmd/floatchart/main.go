// Command floatchart is the command surface: it toggles the floating chart in
// every tab, edits its settings and reports status by talking to the hub.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/brendandebeasi/floatchart/pkg/config"
	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/paths"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "floatchart: %v\n", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "floatchart",
		Usage: "Control the floating chart shown in every tab",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "hub profile to talk to",
				Value:   "default",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "config file (default: ~/.config/floatchart/config.yaml)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the hub",
				Value: 5 * time.Second,
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "toggle",
				Usage:  "Show or hide the widget in every tab",
				Action: withSession(out, func(ctx context.Context, cmd *cli.Command, s *session) error { return s.toggle(ctx) }),
			},
			{
				Name:  "status",
				Usage: "Print visibility and chart settings",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print JSON"},
					&cli.StringFlag{Name: "tab", Usage: "ask a specific tab's widget"},
				},
				Action: withSession(out, func(ctx context.Context, cmd *cli.Command, s *session) error {
					return s.status(ctx, cmd.String("tab"), cmd.Bool("json"))
				}),
			},
			{
				Name:      "set",
				Usage:     "Change chart settings",
				ArgsUsage: "[SYMBOL]",
				Flags:     settingsFlags(),
				Action: withSession(out, func(ctx context.Context, cmd *cli.Command, s *session) error {
					p, err := patchFromFlags(cmd)
					if err != nil {
						return err
					}
					return s.set(ctx, p)
				}),
			},
			{
				Name:   "reset",
				Usage:  "Restore the default chart settings",
				Action: withSession(out, func(ctx context.Context, cmd *cli.Command, s *session) error { return s.reset(ctx) }),
			},
			{
				Name:  "form",
				Usage: "Edit settings interactively",
				Action: withSession(out, func(ctx context.Context, cmd *cli.Command, s *session) error {
					return s.form(ctx)
				}),
			},
			{
				Name:  "pair",
				Usage: "Print the URL browser tabs use to join the hub",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "copy", Usage: "copy the URL to the clipboard"},
					&cli.BoolFlag{Name: "qr", Usage: "also print a QR code"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return pairAction(out, cfg.Hub, cmd.Bool("copy"), cmd.Bool("qr"))
				},
			},
		},
	}
}

// session is one command's connection to the hub.
type session struct {
	c       *hub.Client
	out     io.Writer
	timeout time.Duration
}

// withSession connects to the profile's hub for the duration of fn.
func withSession(out io.Writer, fn func(context.Context, *cli.Command, *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		timeout := cmd.Duration("timeout")
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		profile := cmd.String("profile")
		c, err := hub.Dial(dialCtx, paths.SocketPath(profile), hub.ClientOptions{})
		if err != nil {
			return fmt.Errorf("hub %q not running: %w", profile, err)
		}
		defer c.Close()
		return fn(ctx, cmd, &session{c: c, out: out, timeout: timeout})
	}
}

// request bounds a single round trip to the hub.
func (s *session) request(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.LoadConfig(path)
}

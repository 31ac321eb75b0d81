// Command floatchart-hub owns the global widget state for a profile and
// serves widget instances and the command surface over a unix socket, and
// optionally browser tabs over a loopback WebSocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/config"
	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/logging"
	"github.com/brendandebeasi/floatchart/pkg/store"
	"github.com/brendandebeasi/floatchart/pkg/webbridge"
)

var (
	profile    = flag.String("profile", "default", "hub profile; one hub runs per profile")
	debugMode  = flag.Bool("debug", false, "Enable debug logging")
	configPath = flag.String("config", "", "config file (default: ~/.config/floatchart/config.yaml)")
	ephemeral  = flag.Bool("ephemeral", false, "keep state in memory only")
	regenToken = flag.Bool("regenerate-token", false, "regenerate the browser tab token on startup")
)

type options struct {
	profile    string
	configPath string
	debug      bool
	ephemeral  bool
	regenToken bool
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, options{
		profile:    *profile,
		configPath: *configPath,
		debug:      *debugMode,
		ephemeral:  *ephemeral,
		regenToken: *regenToken,
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "floatchart-hub: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done. ready, if non-nil, is closed once the socket
// accepts connections.
func run(ctx context.Context, opts options, ready chan<- struct{}) error {
	loggers := logging.New(opts.profile, opts.debug)
	defer loggers.Sync()
	defer loggers.RecoverAndLog("main")

	path := opts.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}

	var (
		st        store.Store
		fileStore *store.FileStore
	)
	if opts.ephemeral {
		st = store.NewMemoryStore()
	} else {
		fileStore = store.NewFileStore(cfg.Hub.StateFile)
		st = fileStore
	}

	h := hub.New(st, hub.Options{
		Logger:             loggers.Event,
		RestrictedPrefixes: cfg.Hub.RestrictedPrefixes,
	})
	if err := h.Load(ctx); err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	server := hub.NewServer(h, opts.profile)
	server.OnPanic = loggers.RecoverAndLog
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer server.Stop()
	loggers.Debug.Debug("server listening", zap.String("socket", server.SocketPath()))
	loggers.Event.Info("hub started",
		zap.String("profile", opts.profile),
		zap.Int("pid", os.Getpid()),
		zap.Bool("ephemeral", opts.ephemeral),
	)

	if cfg.Hub.WebSocketAddr != "" {
		bridge, err := startBridge(h, cfg.Hub, opts.regenToken, loggers.Event)
		if err != nil {
			return err
		}
		defer bridge.Stop()
	}

	if fileStore != nil && cfg.Hub.WatchStateFile {
		if err := h.Follow(ctx, fileStore); err != nil {
			loggers.Event.Warn("state file watch unavailable", zap.Error(err))
		}
	}

	// SIGHUP re-reads the state file and rebroadcasts it if it changed.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	if ready != nil {
		close(ready)
	}

	for {
		select {
		case <-ctx.Done():
			loggers.Event.Info("hub stopping", zap.Int("clients", server.ClientCount()))
			return nil
		case <-hup:
			if err := h.Reload(ctx); err != nil {
				loggers.Event.Warn("reload failed", zap.Error(err))
			}
		}
	}
}

func startBridge(h *hub.Hub, cfg config.Hub, regen bool, log *zap.Logger) (*webbridge.Bridge, error) {
	token := cfg.WebSocketToken
	if token == "" {
		tokenPath := webbridge.TokenPath()
		var err error
		if regen {
			token, err = webbridge.RegenerateToken(tokenPath)
		} else {
			token, err = webbridge.LoadOrGenerateToken(tokenPath)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load token: %w", err)
		}
	}

	bridge := webbridge.New(h, webbridge.Config{Addr: cfg.WebSocketAddr, Token: token}, log)
	if err := bridge.Start(); err != nil {
		return nil, err
	}
	log.Info("browser tabs can pair at", zap.String("url", "http://"+bridge.Addr()+"/connect"))
	return bridge, nil
}

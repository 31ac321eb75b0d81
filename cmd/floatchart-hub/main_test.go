package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brendandebeasi/floatchart/pkg/hub"
	"github.com/brendandebeasi/floatchart/pkg/paths"
	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/store"
)

func startHub(t *testing.T, configYAML string) (dir string, stop func() error) {
	t.Helper()
	dir, err := os.MkdirTemp("", "fchubmain")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	t.Setenv("FLOATCHART_RUNTIME_DIR", dir)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- run(ctx, options{profile: "test", configPath: cfgPath}, ready)
	}()

	select {
	case <-ready:
	case err := <-errc:
		cancel()
		t.Fatalf("hub exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("hub did not start")
	}
	return dir, func() error {
		cancel()
		return <-errc
	}
}

func TestRunPersistsCommandSurfaceChanges(t *testing.T) {
	stateDir := t.TempDir()
	stateFile := filepath.Join(stateDir, "state.json")
	_, stop := startHub(t, "hub:\n  state_file: "+stateFile+"\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := hub.Dial(ctx, paths.SocketPath("test"), hub.ClientOptions{})
	require.NoError(t, err)
	defer c.Close()

	visible, err := c.ToggleVisibility(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	_, err = c.UpdateSettings(ctx, state.SettingsPatch{Symbol: state.Ptr("AAPL")})
	require.NoError(t, err)

	require.NoError(t, stop())

	var saved state.GlobalState
	require.NoError(t, store.NewFileStore(stateFile).Get(context.Background(), store.GlobalStateKey, &saved))
	assert.True(t, saved.IsVisible)
	assert.Equal(t, "AAPL", saved.Settings.Symbol)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir, err := os.MkdirTemp("", "fchubmain")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	t.Setenv("FLOATCHART_RUNTIME_DIR", dir)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("chart:\n  max_retries: -1\n"), 0644))

	err = run(context.Background(), options{profile: "bad", configPath: cfgPath}, nil)
	assert.ErrorContains(t, err, "invalid config")
}

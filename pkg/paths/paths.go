// Package paths resolves where floatchart keeps its config, state and runtime files.
//
// Layout (XDG-style):
//
//	Config:  ~/.config/floatchart/config.yaml   (override: FLOATCHART_CONFIG_DIR)
//	State:   ~/.local/state/floatchart/         (override: FLOATCHART_STATE_DIR)
//	Runtime: /tmp/floatchart-hub-<profile>.*    (override: FLOATCHART_RUNTIME_DIR)
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const appName = "floatchart"

var (
	configDirOnce   sync.Once
	configDirCached string

	stateDirOnce   sync.Once
	stateDirCached string
)

// ConfigDir resolves the config directory.
// Priority: FLOATCHART_CONFIG_DIR env > ~/.config/floatchart/
func ConfigDir() string {
	configDirOnce.Do(func() {
		configDirCached = resolve("FLOATCHART_CONFIG_DIR", ".config", appName)
	})
	return configDirCached
}

// StateDir resolves the state directory.
// Priority: FLOATCHART_STATE_DIR env > ~/.local/state/floatchart/
func StateDir() string {
	stateDirOnce.Do(func() {
		stateDirCached = resolve("FLOATCHART_STATE_DIR", ".local", "state", appName)
	})
	return stateDirCached
}

func resolve(env string, homeRel ...string) string {
	if v := os.Getenv(env); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(append([]string{home}, homeRel...)...)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StatePath returns the full path to a state file (e.g. "state.json").
func StatePath(filename string) string {
	return filepath.Join(StateDir(), filename)
}

// RuntimeDir is where sockets, pidfiles and logs live. Not cached: tests
// point it at a temp dir per case.
func RuntimeDir() string {
	if v := os.Getenv("FLOATCHART_RUNTIME_DIR"); v != "" {
		return v
	}
	return os.TempDir()
}

// SocketPath returns the hub socket path for a profile.
func SocketPath(profile string) string {
	return runtimeFile(profile, "sock")
}

// PidPath returns the hub pidfile path for a profile.
func PidPath(profile string) string {
	return runtimeFile(profile, "pid")
}

// LogPath returns the path of a named hub log ("events", "crash") for a profile.
func LogPath(profile, name string) string {
	return runtimeFile(profile, name+".log")
}

func runtimeFile(profile, suffix string) string {
	if profile == "" {
		profile = "default"
	}
	return filepath.Join(RuntimeDir(), fmt.Sprintf("%s-hub-%s.%s", appName, profile, suffix))
}

// EnsureConfigDir creates the config directory if it doesn't exist and returns its path.
func EnsureConfigDir() (string, error) {
	return ensure(ConfigDir())
}

// EnsureStateDir creates the state directory if it doesn't exist and returns its path.
func EnsureStateDir() (string, error) {
	return ensure(StateDir())
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir %s: %w", dir, err)
	}
	return dir, nil
}

// ResetForTest clears cached values so tests can re-run resolution logic.
// Only use in tests.
func ResetForTest() {
	configDirOnce = sync.Once{}
	configDirCached = ""
	stateDirOnce = sync.Once{}
	stateDirCached = ""
}

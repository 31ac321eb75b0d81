// Package logging sets up the hub's structured loggers: an event log and a
// crash log per profile under the runtime dir, plus an optional debug logger
// on stderr.
package logging

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brendandebeasi/floatchart/pkg/paths"
)

// Loggers bundles the loggers a process writes to.
type Loggers struct {
	// Event records lifecycle and protocol events (connects, broadcasts, reloads).
	Event *zap.Logger
	// Crash records recovered panics with stack traces.
	Crash *zap.Logger
	// Debug is verbose and only enabled with -debug.
	Debug *zap.Logger
}

// New opens the event and crash logs for profile. A log file that cannot be
// opened falls back to stderr so the process still starts.
func New(profile string, debugMode bool) *Loggers {
	l := &Loggers{
		Event: fileLogger(paths.LogPath(profile, "events"), zapcore.InfoLevel),
		Crash: fileLogger(paths.LogPath(profile, "crash"), zapcore.ErrorLevel),
		Debug: zap.NewNop(),
	}
	if debugMode {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		if dl, err := cfg.Build(); err == nil {
			l.Debug = dl
		}
	}
	return l
}

// Nop returns loggers that discard everything. Used by tests and library
// callers that pass no logger.
func Nop() *Loggers {
	return &Loggers{Event: zap.NewNop(), Crash: zap.NewNop(), Debug: zap.NewNop()}
}

func fileLogger(path string, level zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil

	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "floatchart: log %s unavailable (%v), using stderr\n", path, err)
		cfg.OutputPaths = []string{"stderr"}
		if logger, err = cfg.Build(); err != nil {
			return zap.NewNop()
		}
	}
	return logger
}

// RecoverAndLog recovers a panic in the calling goroutine and records it in
// the crash log. Use as `defer l.RecoverAndLog("refresh-loop")`.
func (l *Loggers) RecoverAndLog(context string) {
	if r := recover(); r != nil {
		l.Crash.Error("panic recovered",
			zap.String("context", context),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}

// Sync flushes buffered entries.
func (l *Loggers) Sync() {
	for _, lg := range []*zap.Logger{l.Event, l.Crash, l.Debug} {
		if lg != nil {
			_ = lg.Sync()
		}
	}
}

// Track times fn and logs the duration at debug level.
func Track(log *zap.Logger, name string, fn func()) time.Duration {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	log.Debug("timing", zap.String("op", name), zap.Duration("elapsed", elapsed))
	return elapsed
}

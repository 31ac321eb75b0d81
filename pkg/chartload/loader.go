// Package chartload drives loading of the external chart widget into a fresh
// embedded frame, with a load timeout and a bounded, fixed-delay retry policy.
package chartload

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brendandebeasi/floatchart/pkg/state"
	"github.com/brendandebeasi/floatchart/pkg/timer"
)

// Phase is the state of the load sequence.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
	Retrying
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Retrying:
		return "retrying"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Config controls the library location and the retry policy.
type Config struct {
	LibraryURL   string
	Timeout      time.Duration
	RetryDelay   time.Duration
	PollInterval time.Duration
	MaxRetries   int
	Timezone     string
	Locale       string
}

// DefaultConfig returns the stock policy: 15s timeout, 3 retries 2s apart.
func DefaultConfig() Config {
	return Config{
		LibraryURL:   "https://s3.tradingview.com/tv.js",
		Timeout:      15 * time.Second,
		RetryDelay:   2 * time.Second,
		PollInterval: 100 * time.Millisecond,
		MaxRetries:   3,
		Timezone:     "Etc/UTC",
		Locale:       "en",
	}
}

// Frame is the render-surface capability that hosts the chart.
type Frame interface {
	// Mount discards any existing embedded frame and creates a new one
	// holding markup.
	Mount(attempt uint64, markup string) error
	// ShowLoading displays the loading indicator over the frame.
	ShowLoading()
	// ShowLoaded fades the frame in and removes the indicator.
	ShowLoaded()
	// ShowError replaces the frame with a static error surface that offers
	// a manual retry.
	ShowError(message string)
}

// Loader is the load state machine: idle -> loading -> {loaded, retrying, failed}.
type Loader struct {
	frame Frame
	sched timer.Scheduler
	cfg   Config
	log   *zap.Logger

	// OnPhase, if set, is called after every phase change.
	OnPhase func(Phase)

	// mountMu serializes frame mounts so a superseded attempt never replaces
	// the frame of a newer one.
	mountMu sync.Mutex

	mu       sync.Mutex
	phase    Phase
	attempt  uint64
	retries  int
	settings state.Settings
	timeout  *timer.Token
	retry    *timer.Token
}

// New returns an idle loader.
func New(frame Frame, sched timer.Scheduler, cfg Config, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	if sched == nil {
		sched = timer.Real{}
	}
	return &Loader{frame: frame, sched: sched, cfg: cfg, log: log}
}

// Phase returns the current phase.
func (l *Loader) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Attempt returns the number of the most recent attempt.
func (l *Loader) Attempt() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempt
}

// Retries returns how many retries the current sequence has used.
func (l *Loader) Retries() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retries
}

// Loaded reports whether a chart is currently shown.
func (l *Loader) Loaded() bool {
	return l.Phase() == Loaded
}

// Load starts a sequence for s unless one is loaded or in flight.
func (l *Loader) Load(s state.Settings) {
	l.mu.Lock()
	if l.phase != Idle && l.phase != Failed {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	l.Reload(s)
}

// Reload discards any in-flight attempt and starts a fresh sequence for s
// with a full retry budget.
func (l *Loader) Reload(s state.Settings) {
	l.mu.Lock()
	l.settings = s
	l.retries = 0
	attempt := l.beginAttemptLocked()
	l.mu.Unlock()

	l.runAttempt(attempt, s)
}

// ManualRetry resets the budget and re-enters loading. Used by the retry
// affordance on the error surface.
func (l *Loader) ManualRetry() {
	l.mu.Lock()
	s := l.settings
	l.mu.Unlock()
	l.Reload(s)
}

// Stop cancels pending timers and returns to idle.
func (l *Loader) Stop() {
	l.mu.Lock()
	l.cancelTimersLocked()
	l.attempt++
	l.phase = Idle
	l.mu.Unlock()
	l.notify(Idle)
}

func (l *Loader) cancelTimersLocked() {
	l.timeout.Cancel()
	l.retry.Cancel()
	l.timeout, l.retry = nil, nil
}

// beginAttemptLocked claims the next attempt number. Caller holds l.mu.
func (l *Loader) beginAttemptLocked() uint64 {
	l.cancelTimersLocked()
	l.attempt++
	l.phase = Loading
	return l.attempt
}

func (l *Loader) runAttempt(attempt uint64, s state.Settings) {
	l.notify(Loading)
	l.log.Debug("chart load attempt", zap.Uint64("attempt", attempt), zap.String("symbol", s.Symbol))

	markup, err := Bootstrap(s, l.cfg, attempt)
	if err == nil {
		var mounted bool
		if mounted, err = l.mount(attempt, markup); err == nil && !mounted {
			l.log.Debug("chart load attempt superseded", zap.Uint64("attempt", attempt))
			return
		}
	}
	if err != nil {
		l.log.Warn("chart frame mount failed", zap.Uint64("attempt", attempt), zap.Error(err))
		l.Fail(attempt, err)
		return
	}

	l.mu.Lock()
	if l.attempt == attempt && l.phase == Loading {
		l.timeout = l.sched.AfterFunc(l.cfg.Timeout, func() {
			l.Fail(attempt, fmt.Errorf("load timed out after %s", l.cfg.Timeout))
		})
	}
	l.mu.Unlock()
}

// mount installs markup unless a newer attempt has started.
func (l *Loader) mount(attempt uint64, markup string) (bool, error) {
	l.mountMu.Lock()
	defer l.mountMu.Unlock()
	if l.Attempt() != attempt {
		return false, nil
	}
	l.frame.ShowLoading()
	return true, l.frame.Mount(attempt, markup)
}

// Ready records that the chart of attempt finished constructing. Signals
// from superseded attempts are ignored.
func (l *Loader) Ready(attempt uint64) {
	l.mu.Lock()
	if attempt != l.attempt || l.phase != Loading {
		l.mu.Unlock()
		return
	}
	l.cancelTimersLocked()
	l.phase = Loaded
	l.mu.Unlock()

	l.frame.ShowLoaded()
	l.notify(Loaded)
}

// Fail records that attempt failed (timeout or library error) and moves to
// retrying or, once the budget is spent, failed.
func (l *Loader) Fail(attempt uint64, cause error) {
	l.mu.Lock()
	if attempt != l.attempt || l.phase != Loading {
		l.mu.Unlock()
		return
	}
	l.cancelTimersLocked()

	if l.retries >= l.cfg.MaxRetries {
		l.phase = Failed
		l.mu.Unlock()
		l.log.Warn("chart load failed", zap.Uint64("attempt", attempt), zap.Error(cause))
		l.frame.ShowError("Chart failed to load. Check your connection and retry.")
		l.notify(Failed)
		return
	}

	l.retries++
	l.phase = Retrying
	l.retry = l.sched.AfterFunc(l.cfg.RetryDelay, func() {
		l.mu.Lock()
		if l.attempt != attempt || l.phase != Retrying {
			l.mu.Unlock()
			return
		}
		next := l.beginAttemptLocked()
		s := l.settings
		l.mu.Unlock()
		l.runAttempt(next, s)
	})
	retries := l.retries
	l.mu.Unlock()

	l.log.Info("chart load retrying", zap.Uint64("attempt", attempt), zap.Int("retry", retries), zap.Error(cause))
	l.notify(Retrying)
}

func (l *Loader) notify(p Phase) {
	if l.OnPhase != nil {
		l.OnPhase(p)
	}
}

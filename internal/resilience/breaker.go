package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "closed"    // normal operation
	StateOpen     State = "open"      // failing, reject all calls
	StateHalfOpen State = "half_open" // probing recovery
)

// Config tunes the breaker's state transitions.
type Config struct {
	FailureThreshold int           // failures within the sampling window before opening
	SuccessThreshold int           // successes in half-open before closing
	OpenTimeout      time.Duration // time in open state before allowing a probe
	SamplingWindow   int           // number of recent calls considered
	VolumeThreshold  int           // minimum calls in window before opening
}

// DefaultConfig mirrors a conservative production setup: open after 5
// failures out of the last 10 calls, probe after a minute, close after 3
// consecutive probe successes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      time.Minute,
		SamplingWindow:   10,
		VolumeThreshold:  5,
	}
}

// Breaker prevents cascade failures by rejecting calls fast once the
// protected dependency starts failing. Safe for concurrent use.
type Breaker struct {
	name   string
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	successes   int  // consecutive successes while half-open
	recent      []bool // true = success, bounded by cfg.SamplingWindow
	lastFailure time.Time
	now         func() time.Time
}

// NewBreaker creates a closed breaker named for log messages.
func NewBreaker(name string, cfg Config, logger *slog.Logger) *Breaker {
	if cfg.SamplingWindow <= 0 {
		cfg.SamplingWindow = DefaultConfig().SamplingWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// State returns the current state, applying the open -> half-open
// timeout transition if it is due.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.OpenTimeout {
		b.state = StateHalfOpen
		b.successes = 0
		b.logger.Info("circuit half-open", slog.String("breaker", b.name))
	}
	return b.state
}

// Do runs fn under the breaker. When the circuit is open the call is
// rejected immediately with ErrCircuitOpen.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.stateLocked() == StateOpen {
		b.mu.Unlock()
		return fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
	}
	b.mu.Unlock()

	err := fn()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(true)
	if b.state == StateHalfOpen {
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.successes = 0
			b.recent = nil
			b.logger.Info("circuit closed", slog.String("breaker", b.name))
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.record(false)
	b.lastFailure = b.now()

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
		b.logger.Warn("circuit re-opened", slog.String("breaker", b.name))
	case b.state == StateClosed && b.shouldOpen():
		b.state = StateOpen
		b.logger.Warn("circuit opened", slog.String("breaker", b.name))
	}
}

func (b *Breaker) record(success bool) {
	b.recent = append(b.recent, success)
	if len(b.recent) > b.cfg.SamplingWindow {
		b.recent = b.recent[len(b.recent)-b.cfg.SamplingWindow:]
	}
}

func (b *Breaker) shouldOpen() bool {
	if len(b.recent) < b.cfg.VolumeThreshold {
		return false
	}
	failures := 0
	for _, ok := range b.recent {
		if !ok {
			failures++
		}
	}
	return failures >= b.cfg.FailureThreshold
}

// Reset forces the breaker back to closed, clearing all history.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.successes = 0
	b.recent = nil
}

// queryExecutor matches port.QueryExecutor without importing it, keeping
// this package free of core dependencies.
type queryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}

// BreakerExecutor decorates a query executor with a circuit breaker so a
// failing database fails fast instead of piling up timeouts.
type BreakerExecutor struct {
	inner   queryExecutor
	breaker *Breaker
}

func NewBreakerExecutor(inner queryExecutor, breaker *Breaker) *BreakerExecutor {
	return &BreakerExecutor{inner: inner, breaker: breaker}
}

func (e *BreakerExecutor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	var rows []map[string]any
	err := e.breaker.Do(func() error {
		var execErr error
		rows, execErr = e.inner.Execute(ctx, sql)
		return execErr
	})
	return rows, err
}

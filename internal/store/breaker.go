package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/quotecfg/model"
)

// BreakerState is the state of a BreakingStore's circuit.
type BreakerState int

const (
	// BreakerClosed passes calls through and counts consecutive failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls with UNAVAILABLE until the cooldown passes.
	BreakerOpen
	// BreakerHalfOpen lets calls probe the backend; one failure reopens.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerOptions tunes a BreakingStore. Zero values pick the defaults.
type BreakerOptions struct {
	// FailureThreshold is the number of consecutive backend failures that
	// opens the circuit. Default 5.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes that
	// close it again. Default 2.
	SuccessThreshold int
	// Cooldown is how long the circuit stays open. Default 30s.
	Cooldown time.Duration
	// OnStateChange is called with the lock released after every transition.
	OnStateChange func(from, to BreakerState)
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// BreakingStore wraps a ConfigStore with a circuit breaker. Only
// infrastructure errors count as failures: NOT_FOUND, CONFLICT and other
// envelope errors are answers from a healthy backend.
type BreakingStore struct {
	next ConfigStore
	opts BreakerOptions

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

var _ ConfigStore = (*BreakingStore)(nil)

// NewBreakingStore wraps next.
func NewBreakingStore(next ConfigStore, opts BreakerOptions) *BreakingStore {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = 5
	}
	if opts.SuccessThreshold < 1 {
		opts.SuccessThreshold = 2
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BreakingStore{next: next, opts: opts}
}

// State returns the current circuit state, moving an expired open circuit to
// half-open.
func (b *BreakingStore) State() BreakerState {
	b.mu.Lock()
	from := b.state
	to := b.advance()
	b.mu.Unlock()
	b.notify(from, to)
	return to
}

func (b *BreakingStore) Create(ctx context.Context, cfg model.CalculatorConfig) error {
	return b.call(func() error { return b.next.Create(ctx, cfg) })
}

func (b *BreakingStore) Get(ctx context.Context, id string) (model.CalculatorConfig, error) {
	var out model.CalculatorConfig
	err := b.call(func() (err error) {
		out, err = b.next.Get(ctx, id)
		return err
	})
	return out, err
}

func (b *BreakingStore) List(ctx context.Context, filter ListFilter) ([]model.ConfigSummary, error) {
	var out []model.ConfigSummary
	err := b.call(func() (err error) {
		out, err = b.next.List(ctx, filter)
		return err
	})
	return out, err
}

func (b *BreakingStore) Update(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	var out model.CalculatorConfig
	err := b.call(func() (err error) {
		out, err = b.next.Update(ctx, cfg)
		return err
	})
	return out, err
}

func (b *BreakingStore) Replace(ctx context.Context, cfg model.CalculatorConfig) (model.CalculatorConfig, error) {
	var out model.CalculatorConfig
	err := b.call(func() (err error) {
		out, err = b.next.Replace(ctx, cfg)
		return err
	})
	return out, err
}

func (b *BreakingStore) Delete(ctx context.Context, id string) error {
	return b.call(func() error { return b.next.Delete(ctx, id) })
}

// HealthCheck bypasses the circuit so readiness reflects the backend itself.
func (b *BreakingStore) HealthCheck(ctx context.Context) error {
	return b.next.HealthCheck(ctx)
}

func (b *BreakingStore) call(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *BreakingStore) allow() error {
	b.mu.Lock()
	from := b.state
	to := b.advance()
	b.mu.Unlock()
	b.notify(from, to)

	if to == BreakerOpen {
		return model.NewUnavailableError()
	}
	return nil
}

func (b *BreakingStore) record(err error) {
	failed := err != nil
	if _, ok := model.AsEnvelope(err); ok {
		failed = false
	}
	if failed && isCancellation(err) {
		failed = false
	}

	b.mu.Lock()
	from := b.state
	switch b.state {
	case BreakerClosed:
		if !failed {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.opts.FailureThreshold {
			b.open()
		}
	case BreakerHalfOpen:
		if failed {
			b.open()
			break
		}
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.state = BreakerClosed
			b.failures, b.successes = 0, 0
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// advance moves an open circuit past its cooldown to half-open. Must be
// called with the lock held.
func (b *BreakingStore) advance() BreakerState {
	if b.state == BreakerOpen && b.opts.Now().Sub(b.openedAt) >= b.opts.Cooldown {
		b.state = BreakerHalfOpen
		b.successes = 0
	}
	return b.state
}

// open trips the circuit. Must be called with the lock held.
func (b *BreakingStore) open() {
	b.state = BreakerOpen
	b.openedAt = b.opts.Now()
	b.failures, b.successes = 0, 0
}

func (b *BreakingStore) notify(from, to BreakerState) {
	if from != to && b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, to)
	}
}

// isCancellation reports whether err came from the caller's context.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

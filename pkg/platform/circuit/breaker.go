// Package circuit guards calls to external dependencies with a circuit
// breaker and bounded exponential retry.
package circuit

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned without calling the dependency while the breaker is
// open or probing.
var ErrOpen = errors.New("circuit breaker is open")

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

type config struct {
	failureThreshold uint32
	openTimeout      time.Duration
	halfOpenRequests uint32
	maxRetries       uint64
	initialInterval  time.Duration
	maxInterval      time.Duration
	onStateChange    func(name string, from, to State)
}

type Option func(*config)

// WithFailureThreshold opens the breaker after n consecutive failures.
func WithFailureThreshold(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.failureThreshold = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.openTimeout = d
		}
	}
}

// WithRetry bounds the retries of one Do call. Zero retries disables retry.
func WithRetry(maxRetries uint64, initial, maxInterval time.Duration) Option {
	return func(c *config) {
		c.maxRetries = maxRetries
		if initial > 0 {
			c.initialInterval = initial
		}
		if maxInterval > 0 {
			c.maxInterval = maxInterval
		}
	}
}

func WithStateChange(fn func(name string, from, to State)) Option {
	return func(c *config) {
		c.onStateChange = fn
	}
}

// Breaker runs operations through a gobreaker circuit and retries transient
// failures with exponential backoff.
type Breaker struct {
	name string
	cfg  config
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func New(name string, opts ...Option) *Breaker {
	cfg := config{
		failureThreshold: 5,
		openTimeout:      30 * time.Second,
		halfOpenRequests: 1,
		maxRetries:       3,
		initialInterval:  100 * time.Millisecond,
		maxInterval:      2 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.halfOpenRequests,
		Timeout:     cfg.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isPermanent(err)
		},
	}
	if cfg.onStateChange != nil {
		settings.OnStateChange = cfg.onStateChange
	}
	return &Breaker{
		name: name,
		cfg:  cfg,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State { return b.cb.State() }

func (b *Breaker) IsOpen() bool { return b.cb.State() == StateOpen }

// Do runs fn until it succeeds, returns a permanent error, the retry budget
// is spent, ctx is done, or the breaker opens.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.cfg.initialInterval
	bo.MaxInterval = b.cfg.maxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, b.cfg.maxRetries), ctx)

	operation := func() error {
		_, err := b.cb.Execute(func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrOpen)
		}
		return err
	}
	return backoff.Retry(operation, policy)
}

// Permanent marks err as not worth retrying. It does not count against the
// breaker.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func isPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

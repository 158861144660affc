// Package supervisor restarts Socket Mode sessions after recoverable
// failures. Each attempt runs a freshly built session; terminal outcomes are
// returned to the caller untouched.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"socketmode/internal/logging"
	"socketmode/internal/metrics"
	"socketmode/internal/socket"
)

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 30 * time.Second
	defaultStableAfter = time.Minute
	defaultMaxFailures = 5
)

// ErrGaveUp is returned once MaxFailures consecutive attempts ended before
// becoming stable. It wraps the last attempt's error.
var ErrGaveUp = errors.New("supervisor gave up")

// Runner is one session; *socket.Manager satisfies it.
type Runner interface {
	Run(ctx context.Context) error
}

// Factory builds the runner for an attempt, starting at 1.
type Factory func(attempt int) Runner

type Options struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// StableAfter is how long a run must last to reset the backoff and the
	// failure count.
	StableAfter time.Duration
	MaxFailures uint32

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

type Supervisor struct {
	factory Factory
	opts    Options
	delay   *exponentialDelay
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  logging.Logger
}

func New(factory Factory, opts Options) *Supervisor {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if opts.MaxFailures == 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}

	s := &Supervisor{
		factory: factory,
		opts:    opts,
		delay:   newExponentialDelay(opts.BaseDelay, opts.MaxDelay, defaultFactor),
		logger:  logger,
	}
	maxFailures := opts.MaxFailures
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "socketmode:supervisor",
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return s
}

// Run keeps sessions running until one ends terminally, ctx is cancelled, or
// the breaker opens.
func (s *Supervisor) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		var runErr error
		_, err := s.breaker.Execute(func() (struct{}, error) {
			start := time.Now()
			runErr = s.factory(attempt).Run(ctx)
			if time.Since(start) >= s.opts.StableAfter {
				s.delay.Reset()
				return struct{}{}, nil
			}
			return struct{}{}, runErr
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrGaveUp, err)
		}
		if runErr == nil {
			return nil
		}
		if ctx.Err() != nil || Terminal(runErr) {
			return runErr
		}
		if s.breaker.State() == gobreaker.StateOpen {
			s.logger.Error("socket mode giving up", "attempts", attempt, "err", runErr.Error())
			return fmt.Errorf("%w after %d attempts: %w", ErrGaveUp, attempt, runErr)
		}

		wait := delayFor(runErr, s.delay.Next())
		s.logger.Warn("socket mode session ended, restarting",
			"attempt", attempt,
			"retry_in", wait.String(),
			"err", runErr.Error(),
		)
		if err := sleep(ctx, wait); err != nil {
			return fmt.Errorf("%w: %w", socket.ErrStopped, context.Cause(ctx))
		}
		s.opts.Metrics.Restarted()
	}
}

// Terminal reports whether err must not be retried.
func Terminal(err error) bool {
	var (
		configErr  *socket.ConfigError
		connectErr *socket.ConnectError
	)
	switch {
	case errors.Is(err, socket.ErrRemoteDisconnect),
		errors.Is(err, socket.ErrStopped),
		errors.As(err, &configErr):
		return true
	case errors.As(err, &connectErr):
		return connectErr.Permanent()
	default:
		return false
	}
}

// delayFor honours a server-provided Retry-After when it exceeds backoff.
func delayFor(err error, backoff time.Duration) time.Duration {
	var connectErr *socket.ConnectError
	if errors.As(err, &connectErr) && connectErr.RetryAfter > backoff {
		return connectErr.RetryAfter
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package supervisor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"socketmode/internal/logging"
	"socketmode/internal/metrics"
	"socketmode/internal/socket"
)

type step struct {
	err  error
	hold time.Duration
}

// scriptedRunner plays one step per attempt.
type scriptedRunner struct {
	mu       sync.Mutex
	steps    []step
	attempts []int
}

func (r *scriptedRunner) factory(attempt int) Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	st := r.steps[0]
	if len(r.steps) > 1 {
		r.steps = r.steps[1:]
	}
	return runnerFunc(func(ctx context.Context) error {
		if st.hold > 0 {
			select {
			case <-time.After(st.hold):
			case <-ctx.Done():
				return errors.Join(socket.ErrStopped, ctx.Err())
			}
		}
		return st.err
	})
}

func (r *scriptedRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func fastOptions() Options {
	return Options{
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		StableAfter: time.Hour,
		MaxFailures: 3,
		Logger:      logging.Discard(),
	}
}

var errTransient = &socket.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}

func TestSupervisor_TerminalErrorsAreNotRetried(t *testing.T) {
	tests := map[string]error{
		"remote disconnect": &socket.DisconnectError{Reason: "link_disabled"},
		"config":            &socket.ConfigError{Err: socket.ErrMissingCredential},
		"unauthorized":      &socket.ConnectError{Err: socket.ErrHandshakeRejected, Status: http.StatusUnauthorized},
		"invalid auth":      &socket.ConnectError{Err: socket.ErrMalformedHandshakeResponse, Status: http.StatusOK, Remote: "invalid_auth"},
	}
	for name, runErr := range tests {
		t.Run(name, func(t *testing.T) {
			r := &scriptedRunner{steps: []step{{err: runErr}}}
			err := New(r.factory, fastOptions()).Run(context.Background())
			assert.Same(t, runErr, err)
			assert.Equal(t, 1, r.count())
		})
	}
}

func TestSupervisor_GivesUpAfterMaxFailures(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reg := prometheus.NewRegistry()
	opts := fastOptions()
	opts.Metrics = metrics.New(metrics.Options{Registry: reg})

	r := &scriptedRunner{steps: []step{{err: errTransient}}}
	err := New(r.factory, opts).Run(context.Background())

	require.ErrorIs(t, err, ErrGaveUp)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, 3, r.count())
	assert.Equal(t, []int{1, 2, 3}, r.attempts)
	expected := `
# HELP socketmode_supervisor_restarts_total Manager restarts performed by the supervisor
# TYPE socketmode_supervisor_restarts_total counter
socketmode_supervisor_restarts_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "socketmode_supervisor_restarts_total"))
}

func TestSupervisor_StableRunResetsFailures(t *testing.T) {
	opts := fastOptions()
	opts.MaxFailures = 2
	opts.StableAfter = 20 * time.Millisecond

	r := &scriptedRunner{steps: []step{
		{err: errTransient},
		{err: errTransient, hold: 30 * time.Millisecond},
		{err: errTransient},
		{err: &socket.DisconnectError{Reason: "link_disabled"}},
	}}
	err := New(r.factory, opts).Run(context.Background())

	require.ErrorIs(t, err, socket.ErrRemoteDisconnect)
	assert.Equal(t, 4, r.count())
}

func TestSupervisor_TransientHandshakeRetried(t *testing.T) {
	r := &scriptedRunner{steps: []step{
		{err: &socket.ConnectError{Err: socket.ErrHandshakeRejected, Status: http.StatusServiceUnavailable}},
		{err: &socket.DisconnectError{}},
	}}
	err := New(r.factory, fastOptions()).Run(context.Background())
	require.ErrorIs(t, err, socket.ErrRemoteDisconnect)
	assert.Equal(t, 2, r.count())
}

func TestSupervisor_StopDuringBackoff(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	opts := fastOptions()
	opts.BaseDelay = time.Hour
	opts.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedRunner{steps: []step{{err: errTransient}}}
	done := make(chan error, 1)
	go func() { done <- New(r.factory, opts).Run(ctx) }()

	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, socket.ErrStopped)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Equal(t, 1, r.count())
}

func TestSupervisor_StopDuringRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedRunner{steps: []step{{hold: time.Hour}}}
	done := make(chan error, 1)
	go func() { done <- New(r.factory, fastOptions()).Run(ctx) }()

	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	err := <-done
	assert.ErrorIs(t, err, socket.ErrStopped)
	assert.Equal(t, 1, r.count())
}

func TestDelayFor(t *testing.T) {
	rateLimited := &socket.ConnectError{Err: socket.ErrHandshakeRejected, Status: http.StatusTooManyRequests, RetryAfter: 7 * time.Second}
	assert.Equal(t, 7*time.Second, delayFor(rateLimited, time.Second))
	assert.Equal(t, 10*time.Second, delayFor(rateLimited, 10*time.Second))
	assert.Equal(t, time.Second, delayFor(errTransient, time.Second))
}

func TestTerminal(t *testing.T) {
	assert.True(t, Terminal(errors.Join(socket.ErrStopped, context.Canceled)))
	assert.False(t, Terminal(errTransient))
	assert.False(t, Terminal(&socket.ConnectError{Err: socket.ErrHandshakeRejected, Status: http.StatusBadGateway}))
}

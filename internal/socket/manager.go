package socket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"socketmode/internal/logging"
	"socketmode/internal/metrics"
	"socketmode/internal/protocol"
	"socketmode/internal/tracer"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
)

type Options struct {
	OpenURL          string
	DebugReconnects  bool
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// FramePacing is the minimum spacing between frame reads; 0 disables it.
	FramePacing time.Duration
	ReadLimit   int64

	// Opener and Dialer default to Handshaker and WebsocketDialer.
	Opener Opener
	Dialer Dialer

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Manager owns one Socket Mode session: the connection state machine, the
// receive loop and the active transport. A Manager runs once; restart by
// building a new one.
type Manager struct {
	opts    Options
	creds   CredentialSource
	handler Handler
	limiter *rate.Limiter
	logger  logging.Logger

	state  State
	active *connection
}

type connection struct {
	Conn
	sessionID string
}

func New(creds CredentialSource, handler Handler, opts Options) *Manager {
	if opts.OpenURL == "" {
		opts.OpenURL = "https://slack.com/api/apps.connections.open"
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Opener == nil {
		opts.Opener = &Handshaker{
			URL:             opts.OpenURL,
			Client:          &http.Client{Timeout: opts.HandshakeTimeout},
			DebugReconnects: opts.DebugReconnects,
		}
	}
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{ReadLimit: opts.ReadLimit}
	}
	m := &Manager{
		opts:    opts,
		creds:   creds,
		handler: handler,
		logger:  opts.Logger,
		state:   StateDisconnected,
	}
	if opts.FramePacing > 0 {
		m.limiter = rate.NewLimiter(rate.Every(opts.FramePacing), 1)
	}
	return m
}

// Run connects and processes frames until the session ends. It always
// returns a non-nil error describing why: ErrRemoteDisconnect, ErrStopped
// after ctx is cancelled, or the fatal protocol, connect or transport error.
// The active connection is closed before Run returns.
func (m *Manager) Run(ctx context.Context) (err error) {
	if m.logger == nil {
		m.logger = logging.FromContext(ctx)
	}
	if m.state != StateDisconnected {
		return ErrClosed
	}
	defer func() { err = m.terminate(err) }()

	m.setState(StateConnecting)
	conn, err := m.connect(ctx)
	if err != nil {
		return m.stopOr(ctx, err)
	}
	m.active = conn
	m.setState(StateConnected)

	for {
		if err := m.pace(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return m.stopped(ctx)
		}

		raw, rerr := m.active.Read(ctx)
		if rerr != nil {
			return m.stopOr(ctx, &TransportError{Op: "read", Err: rerr})
		}
		if err := m.handleFrame(ctx, raw); err != nil {
			return err
		}
	}
}

func (m *Manager) handleFrame(ctx context.Context, raw string) error {
	env, err := protocol.Classify(raw)
	if err != nil {
		return err
	}
	m.opts.Metrics.FrameReceived(env.Kind().String())

	switch e := env.(type) {
	case *protocol.Hello:
		m.logger.Debug("socket mode connection acknowledged by remote",
			"conn_session_id", m.active.sessionID,
			"num_connections", e.NumConnections(),
			"host", e.DebugHost(),
		)
		return nil
	case *protocol.Reconnect:
		return m.reconnect(ctx, e)
	case *protocol.Disconnect:
		return &DisconnectError{Reason: e.Reason(), Raw: e.Raw()}
	case *protocol.AppEvent:
		return m.dispatch(ctx, e)
	default:
		return fmt.Errorf("unhandled envelope kind %s", env.Kind())
	}
}

// connect runs the handshake and opens a transport to the returned URL.
func (m *Manager) connect(ctx context.Context) (_ *connection, err error) {
	token, ok := m.creds.AppToken()
	if !ok || strings.TrimSpace(token) == "" {
		return nil, &ConfigError{Err: ErrMissingCredential}
	}

	ctx, span := tracer.StartSpan(ctx, "socketmode.handshake")
	defer func() { tracer.End(span, err) }()

	wsURL, err := m.opts.Opener.Open(ctx, token)
	if err != nil {
		m.opts.Metrics.HandshakeFailed(handshakeFailure(err))
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()
	conn, err := m.opts.Dialer.Dial(dialCtx, wsURL)
	if err != nil {
		m.opts.Metrics.HandshakeFailed("dial")
		return nil, &TransportError{Op: "dial", Err: err}
	}

	c := &connection{Conn: conn, sessionID: "ws_" + uuid.NewString()}
	m.logger.Info("socket mode connection established", "conn_session_id", c.sessionID)
	return c, nil
}

// reconnect replaces the active connection. The new connection is fully
// established before the old one is closed.
func (m *Manager) reconnect(ctx context.Context, env *protocol.Reconnect) error {
	m.setState(StateReconnecting)
	expired := m.active
	m.logger.Info("socket mode reconnect requested",
		"conn_session_id", expired.sessionID,
		"reason", env.Reason(),
		"host", env.DebugHost(),
	)

	next, err := m.connect(ctx)
	if err != nil {
		return m.stopOr(ctx, fmt.Errorf("reconnect: %w", err))
	}
	m.active = next
	m.setState(StateConnected)
	m.opts.Metrics.Reconnected()

	if cerr := expired.Close(); cerr != nil {
		m.logger.Debug("expired connection close failed", "conn_session_id", expired.sessionID, "err", cerr.Error())
	}
	m.logger.Debug("expired socket mode connection closed", "conn_session_id", expired.sessionID)
	return nil
}

// dispatch hands an app event to the handler and writes its ack. The handler
// and the ack write run detached from ctx cancellation so an event already
// being handled is finished and acknowledged.
func (m *Manager) dispatch(ctx context.Context, env *protocol.AppEvent) (err error) {
	evt, err := newEvent(env)
	if err != nil {
		return err
	}

	hctx, span := tracer.StartSpan(context.WithoutCancel(ctx), "socketmode.dispatch",
		attribute.String("envelope.type", env.Type()),
		attribute.String("envelope.id", evt.id),
		attribute.Int("envelope.retry_attempt", env.RetryAttempt()),
	)
	defer func() {
		span.SetAttributes(attribute.Bool("envelope.deferred", evt.deferred))
		tracer.End(span, err)
	}()

	if err := m.invoke(hctx, evt); err != nil {
		return err
	}
	if !evt.acked {
		return protocol.NewUnacknowledgedError(env)
	}

	frame, err := protocol.EncodeAck(evt.id, evt.ackPayload)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(hctx, m.opts.WriteTimeout)
	werr := m.active.Write(wctx, frame)
	cancel()
	if werr != nil {
		return &TransportError{Op: "write ack", Err: werr}
	}
	m.opts.Metrics.AckSent()
	m.logger.Debug("event acknowledged",
		"conn_session_id", m.active.sessionID,
		"envelope_id", evt.id,
		"type", env.Type(),
		"with_payload", evt.ackPayload != nil,
	)

	if evt.deferred {
		evt.postAck = true
		return m.invoke(hctx, evt)
	}
	return nil
}

func (m *Manager) invoke(ctx context.Context, evt *Event) error {
	phase := "ack"
	if evt.postAck {
		phase = "deferred"
	}
	start := time.Now()
	err := m.handler.Handle(ctx, evt)
	m.opts.Metrics.HandlerObserved(evt.Type(), phase, time.Since(start))
	if err != nil {
		return fmt.Errorf("handle %s envelope %s (%s): %w", evt.Type(), evt.id, phase, err)
	}
	return nil
}

// terminate is the single exit path: it closes whatever connection is live
// and moves to Closed.
func (m *Manager) terminate(cause error) error {
	if m.active != nil {
		if cerr := m.active.Close(); cerr != nil {
			m.logger.Debug("connection close failed", "conn_session_id", m.active.sessionID, "err", cerr.Error())
		}
		m.logger.Debug("socket mode connection closed", "conn_session_id", m.active.sessionID)
		m.active = nil
	}
	m.setState(StateClosed)

	label := terminationCause(cause)
	m.opts.Metrics.Terminated(label)
	if label == "stopped" {
		m.logger.Info("socket mode stopped")
	} else {
		m.logger.Error("socket mode run ended", "cause", label, "err", cause.Error())
	}
	return cause
}

// pace blocks until the next read is allowed; only ctx being done ends the
// wait early.
func (m *Manager) pace(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	r := m.limiter.Reserve()
	delay := r.Delay()
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return m.stopped(ctx)
	}
}

func (m *Manager) setState(next State) {
	if m.state == next {
		return
	}
	m.logger.Debug("socket mode state", "from", m.state.String(), "to", next.String())
	m.state = next
}

func (m *Manager) stopped(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrStopped, context.Cause(ctx))
}

// stopOr reports a stop when ctx is done, err otherwise.
func (m *Manager) stopOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return m.stopped(ctx)
	}
	return err
}

func handshakeFailure(err error) string {
	switch {
	case errors.Is(err, ErrHandshakeRejected):
		return "rejected"
	case errors.Is(err, ErrMalformedHandshakeResponse):
		return "malformed"
	default:
		return "transport"
	}
}

func terminationCause(err error) string {
	var (
		configErr    *ConfigError
		connectErr   *ConnectError
		transportErr *TransportError
		protoErr     *protocol.Error
	)
	switch {
	case errors.Is(err, ErrStopped):
		return "stopped"
	case errors.Is(err, ErrRemoteDisconnect):
		return "remote_disconnect"
	case errors.As(err, &configErr):
		return "config"
	case errors.As(err, &connectErr):
		return "connect"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "handler"
	}
}

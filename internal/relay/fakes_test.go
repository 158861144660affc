package relay

import (
	"context"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"

	"socketmode/internal/socket"
)

type recordingSink struct {
	name string
	err  error

	mu   sync.Mutex
	recs []Record
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return s.err
}

func (s *recordingSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.recs...)
}

// scriptConn replays frames and records writes; Read returns io.EOF once
// the script is exhausted.
type scriptConn struct {
	frames chan string

	mu     sync.Mutex
	writes []string
}

func newScriptConn(frames ...string) *scriptConn {
	ch := make(chan string, len(frames))
	for _, f := range frames {
		ch <- f
	}
	close(ch)
	return &scriptConn{frames: ch}
}

func (c *scriptConn) Read(ctx context.Context) (string, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return "", io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *scriptConn) Write(_ context.Context, frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, frame)
	return nil
}

func (c *scriptConn) Close() error { return nil }

func (c *scriptConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type staticOpener struct{}

func (staticOpener) Open(context.Context, string) (string, error) { return "wss://relay.test/link", nil }

type connDialer struct{ conn socket.Conn }

func (d connDialer) Dial(context.Context, string) (socket.Conn, error) { return d.conn, nil }

type fakeRedis struct {
	xaddErr    error
	publishErr error

	mu        sync.Mutex
	xadds     []*redis.XAddArgs
	published map[string][]any
	closed    bool
}

func (f *fakeRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	f.xadds = append(f.xadds, a)
	f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if f.xaddErr != nil {
		cmd.SetErr(f.xaddErr)
	} else {
		cmd.SetVal("1700000000000-0")
	}
	return cmd
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.mu.Lock()
	if f.published == nil {
		f.published = make(map[string][]any)
	}
	f.published[channel] = append(f.published[channel], message)
	f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

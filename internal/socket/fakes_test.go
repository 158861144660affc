package socket

import (
	"context"
	"io"
	"sync"
)

// callLog records transport calls across fakes in the order they happen.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeConn struct {
	name   string
	log    *callLog
	frames chan string

	mu       sync.Mutex
	writes   []string
	closed   bool
	writeErr error
}

func newFakeConn(name string, log *callLog, frames ...string) *fakeConn {
	ch := make(chan string, len(frames))
	for _, f := range frames {
		ch <- f
	}
	return &fakeConn{name: name, log: log, frames: ch}
}

// endOfFrames makes Read fail with io.EOF once the queued frames are consumed.
func (c *fakeConn) endOfFrames() *fakeConn {
	close(c.frames)
	return c
}

func (c *fakeConn) Read(ctx context.Context) (string, error) {
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

func (c *fakeConn) Write(_ context.Context, frame string) error {
	c.log.add(c.name + ":write")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.log.add(c.name + ":close")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	log   *callLog
	conns []*fakeConn
	urls  []string
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		if d.err != nil {
			return nil, d.err
		}
		return nil, io.ErrUnexpectedEOF
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	d.log.add(c.name + ":open")
	return c, nil
}

// fakeOpener hands out wss://test/<n> URLs; errs[i], when set, fails call i.
type fakeOpener struct {
	tokens []string
	errs   map[int]error
}

func (o *fakeOpener) Open(_ context.Context, token string) (string, error) {
	n := len(o.tokens)
	o.tokens = append(o.tokens, token)
	if err := o.errs[n]; err != nil {
		return "", err
	}
	return "wss://test/" + string(rune('a'+n)), nil
}

package socket

import (
	"context"
	"net/http"

	"nhooyr.io/websocket"
)

// Conn is one live transport. Read returns the next text frame.
type Conn interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, frame string) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with nhooyr.io/websocket. HTTPClient must not set
// Timeout; bound the dial with the context instead.
type WebsocketDialer struct {
	HTTPClient *http.Client
	// ReadLimit caps a single inbound frame; event payloads routinely exceed
	// the library default of 32KiB.
	ReadLimit int64
}

func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, err
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) (string, error) {
	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *wsConn) Write(ctx context.Context, frame string) error {
	return w.conn.Write(ctx, websocket.MessageText, []byte(frame))
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "")
}

package socket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const maxHandshakeBody = 1 << 20

// Opener exchanges the app token for a websocket URL.
type Opener interface {
	Open(ctx context.Context, token string) (string, error)
}

// Handshaker calls the open-connection API over HTTP.
type Handshaker struct {
	URL    string
	Client *http.Client
	// DebugReconnects asks the remote side for short-lived connections.
	DebugReconnects bool
}

type openResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (h *Handshaker) Open(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+token)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &TransportError{Op: "handshake", Err: err}
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxHandshakeBody)
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, body)
		return "", &ConnectError{
			Err:        ErrHandshakeRejected,
			Status:     resp.StatusCode,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var out openResponse
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		return "", &ConnectError{Err: ErrMalformedHandshakeResponse, Status: resp.StatusCode, Cause: err}
	}
	if !out.OK || out.URL == "" {
		return "", &ConnectError{Err: ErrMalformedHandshakeResponse, Status: resp.StatusCode, Remote: out.Error}
	}
	wsURL, err := url.Parse(out.URL)
	if err != nil || wsURL.Host == "" {
		return "", &ConnectError{Err: ErrMalformedHandshakeResponse, Status: resp.StatusCode, Cause: err}
	}
	if h.DebugReconnects {
		q := wsURL.Query()
		q.Set("debug_reconnects", "true")
		wsURL.RawQuery = q.Encode()
	}
	return wsURL.String(), nil
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

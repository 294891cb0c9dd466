package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/steveyegge/authcap/internal/supervisor"
)

// Watcher subscribes to the server's status stream. It reconnects
// automatically; every (re)connection starts with a snapshot event.
type Watcher struct {
	wsURL string

	eventCh chan supervisor.Event
	errCh   chan error
	cancel  context.CancelFunc
	done    chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// WatchConfig configures a Watcher.
type WatchConfig struct {
	// BufferSize is the event channel buffer (default 64).
	BufferSize int

	// ReconnectDelay is the delay between reconnection attempts (default 2s).
	ReconnectDelay time.Duration
}

// Watch starts streaming status events.
func (c *Client) Watch(cfg WatchConfig) (*Watcher, error) {
	wsURL, err := streamURL(c.baseURL)
	if err != nil {
		return nil, err
	}
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 64
	}
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		wsURL:   wsURL,
		eventCh: make(chan supervisor.Event, bufSize),
		errCh:   make(chan error, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(ctx, reconnectDelay)
	return w, nil
}

// Events returns the channel of status events. It is closed by Close.
func (w *Watcher) Events() <-chan supervisor.Event { return w.eventCh }

// Errors returns the channel of connection errors.
func (w *Watcher) Errors() <-chan error { return w.errCh }

// Close stops the watcher and closes the connection.
func (w *Watcher) Close() {
	w.cancel()
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Watcher) run(ctx context.Context, reconnectDelay time.Duration) {
	defer close(w.done)
	defer close(w.eventCh)

	for {
		err := w.connectAndRead(ctx)
		if err != nil && ctx.Err() == nil {
			select {
			case w.errCh <- fmt.Errorf("status stream: %w", err):
			default:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (w *Watcher) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		_ = conn.Close()
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var ev supervisor.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		select {
		case w.eventCh <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// streamURL converts the HTTP base URL to the websocket stream URL.
func streamURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/setup-auth/ws"
	return u.String(), nil
}

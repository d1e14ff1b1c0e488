// Package transport implements rpc.Transport over a coder/websocket
// connection: the concrete native channel referenced throughout spec.md
// §4.7 (C7) as an abstract boundary.
//
// Grounded on the teacher's internal/signaling.Client dial/read-loop, with
// the join-message and reconnect-backoff concerns stripped out (those now
// belong to rpc.Client / rpc.reconnectLoop) and replaced by the plain
// connect/send/receive/close primitives the Transport interface asks for.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Config configures a Transport.
type Config struct {
	// ServerURL is the WebSocket URL to dial (e.g. "wss://host/rpc").
	ServerURL string

	// DialTimeout bounds a single dial attempt when the caller's context
	// carries no earlier deadline. Defaults to 10s if zero.
	DialTimeout time.Duration

	// TokenProvider, if set, is called on each dial attempt to obtain a
	// bearer token sent as an Authorization header. A dial attempt with no
	// TokenProvider, or one that returns "", sends no such header.
	TokenProvider func() string

	// Logger is the structured logger to use. Defaults to slog.Default().
	Logger *slog.Logger
}

// Transport is a coder/websocket-backed implementation of rpc.Transport.
// The zero value is not usable; construct with New.
type Transport struct {
	cfg Config
	log *slog.Logger

	mu            sync.Mutex
	conn          *websocket.Conn
	closedLocally bool
	readCancel    context.CancelFunc

	onMessage    func([]byte)
	onDisconnect func(string)
}

// New creates a Transport from cfg. Call ConnectNativeClient (normally via
// rpc.Client.Connect) to dial.
func New(cfg Config) *Transport {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		cfg: cfg,
		log: log.With("component", "transport"),
	}
}

// Bind implements rpc.Transport.
func (t *Transport) Bind(onMessage func([]byte), onDisconnect func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = onMessage
	t.onDisconnect = onDisconnect
}

// timeoutError wraps a dial error that timed out, satisfying the
// interface{ Timeout() bool } contract rpc.Client checks for via errors.As.
type timeoutError struct{ err error }

func (e *timeoutError) Error() string { return e.err.Error() }
func (e *timeoutError) Unwrap() error { return e.err }
func (e *timeoutError) Timeout() bool { return true }

// ConnectNativeClient implements rpc.Transport. It dials the configured
// ServerURL and, on success, starts the background read loop that delivers
// inbound frames to the bound onMessage callback.
func (t *Transport) ConnectNativeClient(ctx context.Context) error {
	dialTimeout := t.cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	var opts *websocket.DialOptions
	if t.cfg.TokenProvider != nil {
		if token := t.cfg.TokenProvider(); token != "" {
			opts = &websocket.DialOptions{
				HTTPHeader: http.Header{
					"Authorization": []string{"Bearer " + token},
				},
			}
		}
	}

	conn, _, err := websocket.Dial(dialCtx, t.cfg.ServerURL, opts)
	if err != nil {
		if dialCtx.Err() != nil {
			return &timeoutError{err: err}
		}
		return fmt.Errorf("dialing %s: %w", t.cfg.ServerURL, err)
	}

	readCtx, readCancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.conn = conn
	t.closedLocally = false
	t.readCancel = readCancel
	t.mu.Unlock()

	go t.readLoop(readCtx, conn)
	return nil
}

// SendTextMessage implements rpc.Transport.
func (t *Transport) SendTextMessage(ctx context.Context, text []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	if err := conn.Write(ctx, websocket.MessageText, text); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// CloseNativeClient implements rpc.Transport. It is idempotent: a second
// call after the connection already dropped is a harmless no-op.
func (t *Transport) CloseNativeClient() {
	t.mu.Lock()
	conn := t.conn
	cancel := t.readCancel
	t.conn = nil
	t.readCancel = nil
	t.closedLocally = true
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "closing")
	}
}

// IsNativeClientConnected implements rpc.Transport.
func (t *Transport) IsNativeClientConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// readLoop reads frames off conn until an error or cancellation, delivering
// each to the bound onMessage callback, and reports an unexpected close to
// onDisconnect unless CloseNativeClient already marked the close as local
// (spec.md §4.7: the coordinator distinguishes coordinator-initiated closes
// from peer/network-initiated ones).
func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			local := t.closedLocally
			sameConn := t.conn == conn
			if sameConn {
				t.conn = nil
			}
			cb := t.onDisconnect
			t.mu.Unlock()

			if !local && sameConn && cb != nil {
				cb(err.Error())
			}
			return
		}

		t.mu.Lock()
		cb := t.onMessage
		t.mu.Unlock()
		if cb != nil {
			cb(data)
		}
	}
}

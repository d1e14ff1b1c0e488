// Package heartbeat implements the ping/pong keepalive loop referenced by
// spec.md §4.6/§4.10 (C10): a ticker-driven goroutine that periodically
// sends a "ping" request and forces a reconnect if the pong doesn't arrive
// in time.
//
// Grounded on the teacher's ForceReconnect in internal/signaling/client.go:
// both close the current native channel and let the existing reconnect path
// take over, the difference being only what triggers the close (an external
// network-change signal there, an internal ping timeout here).
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kuuji/jsonrpcws/jsonrpc"
)

// Sender is the subset of rpc.Client the heartbeat loop needs. Satisfied by
// *rpc.Client; declared narrowly here so this package does not import rpc.
// rpc does not import this package either: rpc.WithHeartbeatHooks takes
// plain enable/disable funcs.
type Sender interface {
	SendRequestAsync(ctx context.Context, method string, params any, cb func(*jsonrpc.Response, error)) error
	CloseWithReconnection(reason string)
}

// Config controls the heartbeat cadence.
type Config struct {
	// Interval is the delay between pings. Defaults to 30s if zero.
	Interval time.Duration

	// PingTimeout bounds how long a single ping may go unanswered before
	// the heartbeat forces a reconnect. Defaults to Interval if zero.
	PingTimeout time.Duration

	// Logger is the structured logger to use. Defaults to slog.Default().
	Logger *slog.Logger
}

// Heartbeat drives the ping loop for a single Client. Construct with New,
// then pass Enable/Disable to rpc.WithHeartbeatHooks.
type Heartbeat struct {
	client Sender
	cfg    Config
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Heartbeat bound to client. It does not start ticking until
// Enable is called.
func New(client Sender, cfg Config) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = cfg.Interval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Heartbeat{
		client: client,
		cfg:    cfg,
		log:    log.With("component", "heartbeat"),
	}
}

// Enable starts the ping loop, if not already running. Safe to call
// concurrently; a second call while already running is a no-op.
func (h *Heartbeat) Enable() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.run(ctx)
}

// Disable stops the ping loop, if running. Safe to call concurrently; a
// second call while already stopped is a no-op.
func (h *Heartbeat) Disable() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (h *Heartbeat) run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ping(ctx)
		}
	}
}

// ping sends one ping and, if no pong arrives within PingTimeout, forces a
// reconnect via CloseWithReconnection. It does not block run's ticker loop
// beyond PingTimeout, since SendRequestAsync's completion runs on the
// client's own worker pool.
func (h *Heartbeat) ping(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)

	var once sync.Once
	finish := func() { once.Do(cancel) }

	err := h.client.SendRequestAsync(pingCtx, jsonrpc.MethodPing, nil, func(resp *jsonrpc.Response, err error) {
		defer finish()
		if err != nil {
			h.log.Warn("ping failed", "error", err)
			return
		}
		if resp != nil && resp.Error != nil {
			h.log.Warn("ping returned error response", "error", resp.Error)
		}
	})
	if err != nil {
		finish()
		h.log.Warn("ping send failed", "error", err)
		return
	}

	<-pingCtx.Done()
	if ctx.Err() != nil {
		return
	}
	if pingCtx.Err() == context.DeadlineExceeded {
		h.log.Warn("ping timed out, forcing reconnect")
		h.client.CloseWithReconnection("ping timeout")
	}
}

package rpc

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ConnectionListener is the five-event ABI of spec.md §4.3 / §6. Any sink may
// be nil; a nil sink is simply not invoked. Implementations must tolerate
// reentrancy — a sink may call back into the Client.
type ConnectionListener struct {
	OnConnected        func()
	OnDisconnected     func(reason string)
	OnConnectionFailed func(reason string)
	OnReconnecting     func()
	OnReconnected      func(sameServer bool)
}

// workerPool is the unbounded cached goroutine pool of spec.md §5 item 2,
// shared by listener callbacks, concurrent server-request handling, and
// continuation-style send completions. Modeled as an errgroup with no
// concurrency cap, materialized lazily on first use and torn down at
// Client teardown (spec.md §3 "Ownership": "pools may be recreated on
// demand if observed shut down").
type workerPool struct {
	g      *errgroup.Group
	cancel context.CancelFunc
}

func newWorkerPool() *workerPool {
	ctx, cancel := context.WithCancel(context.Background())
	g, _ := errgroup.WithContext(ctx)
	return &workerPool{g: g, cancel: cancel}
}

func (p *workerPool) submit(fn func()) {
	p.g.Go(func() error {
		fn()
		return nil
	})
}

// shutdown waits for in-flight work to finish before releasing the pool's
// context. It is called after PendingRequests.CloseAll in closeClientLocked,
// so no new work is expected to be submitted once shutdown begins.
func (p *workerPool) shutdown() {
	_ = p.g.Wait()
	p.cancel()
}

// listenerNotifier wraps an optional ConnectionListener and posts every
// firing onto the shared worker pool so the caller (transport goroutine,
// lock holder) never blocks on user code (C3, spec.md §4.3).
//
// Grounded on the teacher's rule that user-supplied callbacks never run
// synchronously from the receive path; generalized here from spec.md's
// design note §9 ("the source wraps each listener event in a fresh one-off
// runnable") into a single dispatch function parameterized by an event tag.
type listenerNotifier struct {
	log      *slog.Logger
	listener *ConnectionListener
	pool     func() *workerPool
}

func newListenerNotifier(log *slog.Logger, l *ConnectionListener, pool func() *workerPool) *listenerNotifier {
	return &listenerNotifier{
		log:      log.With("component", "listener"),
		listener: l,
		pool:     pool,
	}
}

// event tags the five lifecycle firings (spec.md §9 design note).
type event int

const (
	eventConnected event = iota
	eventDisconnected
	eventConnectionFailed
	eventReconnecting
	eventReconnected
)

type eventPayload struct {
	reason     string
	sameServer bool
}

func (n *listenerNotifier) fire(ev event, p eventPayload) {
	if n.listener == nil {
		return
	}
	n.pool().submit(func() {
		switch ev {
		case eventConnected:
			if n.listener.OnConnected != nil {
				n.listener.OnConnected()
			}
		case eventDisconnected:
			if n.listener.OnDisconnected != nil {
				n.listener.OnDisconnected(p.reason)
			}
		case eventConnectionFailed:
			if n.listener.OnConnectionFailed != nil {
				n.listener.OnConnectionFailed(p.reason)
			}
		case eventReconnecting:
			if n.listener.OnReconnecting != nil {
				n.listener.OnReconnecting()
			}
		case eventReconnected:
			if n.listener.OnReconnected != nil {
				n.listener.OnReconnected(p.sameServer)
			}
		default:
			n.log.Warn("unknown lifecycle event", "event", int(ev))
		}
	})
}

// Package pending implements the registry of outstanding JSON-RPC requests,
// matching outbound request ids to inbound response payloads.
//
// Grounded on the teacher's internal/signaling.Client channel/map pattern,
// generalized from a single broadcast channel to a per-id awaitable slot.
package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kuuji/jsonrpcws/jsonrpc"
)

// ErrClosed is the terminal error delivered to every outstanding slot when
// the registry is closed (client teardown), per spec.md §4.1 closeAll.
var ErrClosed = errors.New("jsonrpcws: client closed")

// ErrAlreadyReserved is returned by Reserve when id is already in flight.
var ErrAlreadyReserved = errors.New("jsonrpcws: request id already reserved")

// slot is a single-fulfillment box: exactly one of resp/err is ever sent,
// and it is sent at most once.
type slot struct {
	ch chan result
}

type result struct {
	resp *jsonrpc.Response
	err  error
}

// Registry is the pending-request map described in spec.md §4.1. It is
// safe for concurrent use by multiple goroutines.
type Registry struct {
	log *slog.Logger

	mu   sync.Mutex
	byID map[string]*slot
}

// New creates an empty Registry. If log is nil, slog.Default() is used.
func New(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:  log.With("component", "pending"),
		byID: make(map[string]*slot),
	}
}

// Awaiter completes exactly once with either a response or a terminal
// error, per spec.md §4.1's guarantee.
type Awaiter struct {
	id string
	ch chan result
	r  *Registry
}

// Wait blocks until the awaiter is fulfilled by Complete/CloseAll or ctx is
// done. On ctx expiry the reservation is left in place — per spec.md §4.1,
// timeout enforcement belongs to the caller, and a late response is
// delivered into the slot's buffered channel, where no waiter reads it.
// Callers that want the slot proactively GC'd (so Complete drops a late
// response instead) may call Registry.Remove(id).
func (a *Awaiter) Wait(ctx context.Context) (*jsonrpc.Response, error) {
	select {
	case res := <-a.ch:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ID returns the request id this awaiter was reserved for.
func (a *Awaiter) ID() string { return a.id }

// Reserve allocates a slot for id and returns an Awaiter. Fails if id is
// already reserved.
func (r *Registry) Reserve(id string) (*Awaiter, error) {
	r.mu.Lock()
	if _, exists := r.byID[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyReserved, id)
	}
	s := &slot{ch: make(chan result, 1)}
	r.byID[id] = s
	r.mu.Unlock()

	return &Awaiter{id: id, ch: s.ch, r: r}, nil
}

// Complete fulfills the awaitable for resp.ID, if a reservation exists. A
// response with no matching reservation is dropped and logged at debug
// level, per spec.md §4.1 and invariant 4 of §8.
func (r *Registry) Complete(resp *jsonrpc.Response) {
	r.mu.Lock()
	s, ok := r.byID[resp.ID]
	if ok {
		delete(r.byID, resp.ID)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Debug("dropping response with no pending reservation", "id", resp.ID)
		return
	}
	s.ch <- result{resp: resp}
}

// Remove drops a reservation without fulfilling it, used by a timing-out
// waiter that does not want a later response delivered to a channel no one
// reads from. Per spec.md §4.1, removal on timeout is a quality-of-service
// choice, not a contract — a late response for a removed id is simply
// dropped by Complete.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// CloseAll fulfills every outstanding awaitable with ErrClosed and clears
// the map. Idempotent; safe to call from any goroutine.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	slots := r.byID
	r.byID = make(map[string]*slot)
	r.mu.Unlock()

	for id, s := range slots {
		r.log.Debug("closing pending request", "id", id)
		s.ch <- result{err: ErrClosed}
	}
}

// Len reports the number of currently outstanding reservations. Intended
// for diagnostics and tests, not for control flow.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kuuji/jsonrpcws/jsonrpc"
)

func TestReserveAndComplete(t *testing.T) {
	r := New(nil)
	awaiter, err := r.Reserve("id-1")
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}

	go r.Complete(&jsonrpc.Response{ID: "id-1", Result: []byte(`"ok"`)})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := awaiter.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if resp.ID != "id-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestReserve_DuplicateIDFails(t *testing.T) {
	r := New(nil)
	if _, err := r.Reserve("id-1"); err != nil {
		t.Fatalf("first Reserve() error: %v", err)
	}
	if _, err := r.Reserve("id-1"); !errors.Is(err, ErrAlreadyReserved) {
		t.Fatalf("expected ErrAlreadyReserved, got %v", err)
	}
}

func TestComplete_DropsUnknownID(t *testing.T) {
	r := New(nil)
	// Completing an id with no reservation must not panic or block.
	r.Complete(&jsonrpc.Response{ID: "unknown"})
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got len %d", r.Len())
	}
}

func TestCloseAll_FulfillsAllWithErrClosed(t *testing.T) {
	r := New(nil)
	a1, _ := r.Reserve("id-1")
	a2, _ := r.Reserve("id-2")

	r.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, a := range []*Awaiter{a1, a2} {
		_, err := a.Wait(ctx)
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed for %s, got %v", a.ID(), err)
		}
	}
	if r.Len() != 0 {
		t.Errorf("expected empty registry after CloseAll, got len %d", r.Len())
	}
}

func TestWait_ContextCancellation(t *testing.T) {
	r := New(nil)
	awaiter, _ := r.Reserve("id-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := awaiter.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRemove_PreventsLateCompletionFromBlocking(t *testing.T) {
	r := New(nil)
	awaiter, _ := r.Reserve("id-1")
	r.Remove(awaiter.ID())

	// A late response for a removed id must be dropped, not delivered.
	r.Complete(&jsonrpc.Response{ID: "id-1"})
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got len %d", r.Len())
	}
}

package handler

import (
	"encoding/json"
	"testing"

	"github.com/kuuji/jsonrpcws/jsonrpc"
)

type recordingSender struct {
	responses []*jsonrpc.Response
	pings     []*jsonrpc.Response
}

func (s *recordingSender) SendResponse(resp *jsonrpc.Response)     { s.responses = append(s.responses, resp) }
func (s *recordingSender) SendPingResponse(resp *jsonrpc.Response) { s.pings = append(s.pings, resp) }

func requestWithID(method string, params any) *jsonrpc.Request {
	req, err := jsonrpc.NewRequest(method, params)
	if err != nil {
		panic(err)
	}
	return req
}

func TestRegistry_DispatchesToRegisteredHandler(t *testing.T) {
	r := New(nil, nil, nil)
	r.Register("greet", func(req *jsonrpc.Request) (any, error) {
		var name string
		_ = json.Unmarshal(req.Params, &name)
		return "hello " + name, nil
	})

	sender := &recordingSender{}
	r.HandleRequest(requestWithID("greet", "world"), sender)

	if len(sender.responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(sender.responses))
	}
	var got string
	if err := json.Unmarshal(sender.responses[0].Result, &got); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if got != "hello world" {
		t.Errorf("unexpected result: %q", got)
	}
}

func TestRegistry_UnregisteredMethodReturnsMethodNotFound(t *testing.T) {
	r := New(nil, nil, nil)
	sender := &recordingSender{}
	r.HandleRequest(requestWithID("nope", nil), sender)

	if len(sender.responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(sender.responses))
	}
	if sender.responses[0].Error == nil || sender.responses[0].Error.Code != MethodNotFound {
		t.Fatalf("expected MethodNotFound error, got %+v", sender.responses[0].Error)
	}
}

func TestRegistry_HandlerErrorBecomesResponseError(t *testing.T) {
	r := New(nil, nil, nil)
	r.Register("fail", func(req *jsonrpc.Request) (any, error) {
		return nil, &MethodError{Code: -32001, Message: "nope"}
	})

	sender := &recordingSender{}
	r.HandleRequest(requestWithID("fail", nil), sender)

	if sender.responses[0].Error == nil || sender.responses[0].Error.Code != -32001 {
		t.Fatalf("expected custom error code -32001, got %+v", sender.responses[0].Error)
	}
}

func TestRegistry_NotificationProducesNoResponse(t *testing.T) {
	r := New(nil, nil, nil)
	r.Register("fire", func(req *jsonrpc.Request) (any, error) { return "ignored", nil })

	notif, err := jsonrpc.NewNotification("fire", nil)
	if err != nil {
		t.Fatalf("NewNotification() error: %v", err)
	}

	sender := &recordingSender{}
	r.HandleRequest(notif, sender)

	if len(sender.responses) != 0 {
		t.Fatalf("expected no response for a notification, got %d", len(sender.responses))
	}
}

func TestRegistry_PingUsesPingResponseChannel(t *testing.T) {
	r := New(nil, nil, nil)
	r.Register(jsonrpc.MethodPing, func(req *jsonrpc.Request) (any, error) { return nil, nil })

	sender := &recordingSender{}
	r.HandleRequest(requestWithID(jsonrpc.MethodPing, nil), sender)

	if len(sender.pings) != 1 || len(sender.responses) != 0 {
		t.Fatalf("expected ping response routed to SendPingResponse, got pings=%d responses=%d", len(sender.pings), len(sender.responses))
	}
}

func TestRegistry_LifecycleHooks(t *testing.T) {
	var established, closed string
	r := New(nil,
		func(sessionID string) { established = sessionID },
		func(sessionID, reason string) { closed = sessionID + ":" + reason },
	)

	r.AfterConnectionEstablished("sess-1")
	r.AfterConnectionClosed("sess-1", "bye")

	if established != "sess-1" {
		t.Errorf("expected established hook to fire, got %q", established)
	}
	if closed != "sess-1:bye" {
		t.Errorf("expected closed hook to fire, got %q", closed)
	}
}

package rpc

import "github.com/kuuji/jsonrpcws/jsonrpc"

// HandlerManager is the three-sink application ABI of spec.md §6. Only
// HandleRequest may produce output, via the ResponseSender passed to it.
// The concrete registry-based implementation lives in package handler;
// this interface is what package rpc depends on.
type HandlerManager interface {
	AfterConnectionEstablished(sessionID string)
	AfterConnectionClosed(sessionID, reason string)
	HandleRequest(req *jsonrpc.Request, sender ResponseSender)
}

// ResponseSender is C2: writes outbound responses to server-initiated
// requests through the Transport. Two operations, differing only in log
// verbosity (trace for pings, debug otherwise) per spec.md §4.2.
type ResponseSender interface {
	SendResponse(resp *jsonrpc.Response)
	SendPingResponse(resp *jsonrpc.Response)
}

// responseSender is the Client-bound implementation of ResponseSender.
type responseSender struct {
	c *Client
}

func (s *responseSender) SendResponse(resp *jsonrpc.Response) {
	s.c.sendResponse(resp, false)
}

func (s *responseSender) SendPingResponse(resp *jsonrpc.Response) {
	s.c.sendResponse(resp, true)
}

// serverRequestDispatcher is C4: routes inbound server-initiated requests
// either to the worker pool (concurrent) or inline on the calling
// goroutine, per Config.ConcurrentServerRequest.
//
// When concurrent, the caller (the transport's receive goroutine) is freed
// to keep reading while the handler runs; this is required if the handler
// itself issues a synchronous outbound request, because that request's
// response must be read by the very goroutine the handler would otherwise
// be blocking (spec.md §4.4, invariant 5 of §8). When not concurrent, the
// caller is responsible for guaranteeing handlers never issue synchronous
// outbound requests, or the transport goroutine deadlocks waiting on a
// response it is itself responsible for receiving.
type serverRequestDispatcher struct {
	concurrent bool
	pool       func() *workerPool
	manager    HandlerManager
	sender     ResponseSender
}

func (d *serverRequestDispatcher) dispatch(req *jsonrpc.Request) {
	if d.manager == nil {
		return
	}
	invoke := func() { d.manager.HandleRequest(req, d.sender) }
	if d.concurrent {
		d.pool().submit(invoke)
		return
	}
	invoke()
}

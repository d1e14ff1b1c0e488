// Package handler implements rpc.HandlerManager as a method-name registry:
// the application wires one HandlerFunc per method name it wants to serve,
// and unregistered methods are answered with a JSON-RPC MethodNotFound
// error automatically.
//
// Grounded on the teacher's internal/signaling.Hub.ServeHTTP message-type
// switch, generalized from a small closed enum (switch env.Type) to a map
// lookup, since the server-initiated method set here is open-ended rather
// than fixed by this package.
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kuuji/jsonrpcws/jsonrpc"
	"github.com/kuuji/jsonrpcws/rpc"
)

// MethodNotFound is the JSON-RPC error code returned for a request whose
// method has no registered HandlerFunc, per the standard JSON-RPC 2.0
// error code table.
const MethodNotFound = -32601

// HandlerFunc handles one server-initiated request. It returns either a
// result value (marshaled into the response's "result" member) or an
// error; a non-nil error is reported to the caller as a JSON-RPC error
// response instead. Returning (nil, nil) for a request sends a response
// with a null result.
type HandlerFunc func(req *jsonrpc.Request) (result any, err error)

// MethodError lets a HandlerFunc control the wire error code reported to
// the server, rather than always defaulting to a generic internal error.
type MethodError struct {
	Code    int
	Message string
}

func (e *MethodError) Error() string { return e.Message }

// Registry is a method-name-keyed rpc.HandlerManager implementation.
type Registry struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	onEstablished func(sessionID string)
	onClosed      func(sessionID, reason string)
}

var _ rpc.HandlerManager = (*Registry)(nil)

// New creates an empty Registry. onEstablished/onClosed may be nil.
func New(log *slog.Logger, onEstablished func(string), onClosed func(string, string)) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:           log.With("component", "handler"),
		handlers:      make(map[string]HandlerFunc),
		onEstablished: onEstablished,
		onClosed:      onClosed,
	}
}

// Register binds fn to method, replacing any previous registration.
func (r *Registry) Register(method string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = fn
}

// Unregister removes method's HandlerFunc, if any.
func (r *Registry) Unregister(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

// AfterConnectionEstablished implements rpc.HandlerManager.
func (r *Registry) AfterConnectionEstablished(sessionID string) {
	if r.onEstablished != nil {
		r.onEstablished(sessionID)
	}
}

// AfterConnectionClosed implements rpc.HandlerManager.
func (r *Registry) AfterConnectionClosed(sessionID, reason string) {
	if r.onClosed != nil {
		r.onClosed(sessionID, reason)
	}
}

// HandleRequest implements rpc.HandlerManager. Notifications (req.ID == nil)
// never produce a response, even on error, since the caller expects none.
func (r *Registry) HandleRequest(req *jsonrpc.Request, sender rpc.ResponseSender) {
	r.mu.RLock()
	fn, ok := r.handlers[req.Method]
	r.mu.RUnlock()

	if !ok {
		r.log.Warn("no handler registered", "method", req.Method)
		r.reply(req, sender, nil, &MethodError{Code: MethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)})
		return
	}

	result, err := fn(req)
	r.reply(req, sender, result, err)
}

func (r *Registry) reply(req *jsonrpc.Request, sender rpc.ResponseSender, result any, err error) {
	if req.IsNotification() {
		return
	}

	resp := &jsonrpc.Response{
		JSONRPC:   jsonrpc.Version,
		ID:        *req.ID,
		SessionID: req.SessionID,
	}

	if err != nil {
		code := -32603 // internal error, per the JSON-RPC 2.0 reserved range
		if me, ok := err.(*MethodError); ok {
			code = me.Code
		}
		resp.Error = &jsonrpc.ErrorObject{Code: code, Message: err.Error()}
	} else if result != nil {
		raw, merr := json.Marshal(result)
		if merr != nil {
			resp.Error = &jsonrpc.ErrorObject{Code: -32603, Message: fmt.Sprintf("marshaling result: %v", merr)}
		} else {
			resp.Result = raw
		}
	} else {
		resp.Result = json.RawMessage("null")
	}

	isPing := req.Method == jsonrpc.MethodPing
	if isPing {
		sender.SendPingResponse(resp)
	} else {
		sender.SendResponse(resp)
	}
}

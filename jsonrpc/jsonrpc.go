// Package jsonrpc defines the wire-format value types exchanged between a
// Client and a JSON-RPC 2.0 server over a persistent text message channel.
//
// Encoding mirrors the JSON-RPC 2.0 spec with one non-standard addition: an
// optional top-level "sessionId" field carrying the server-assigned session
// identifier, present on both requests and responses.
package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Version is the JSON-RPC protocol version string sent on every request.
const Version = "2.0"

// Reserved method names consumed by the connection lifecycle.
const (
	MethodConnect      = "connect"
	MethodCloseSession = "closeSession"
	MethodPing         = "ping"
)

// SessionInvalid is the server error code that means "invalid or expired
// session" when returned in response to a connect request during resume.
const SessionInvalid = 40007

// Request is an outbound or inbound JSON-RPC request. ID is nil for
// notifications, which expect no response and allocate no pending slot.
type Request struct {
	JSONRPC   string          `json:"jsonrpc"`
	ID        *string         `json:"id,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// IsNotification reports whether r expects no response.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// NewRequest builds a request with a generated id. Use NewNotification for
// requests that expect no response.
func NewRequest(method string, params any) (*Request, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Request{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewRequestWithID builds a request using a caller-supplied id. The caller
// is responsible for id uniqueness among in-flight requests, per the
// PendingRequests contract.
func NewRequestWithID(id, method string, params any) (*Request, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		JSONRPC: Version,
		ID:      &id,
		Method:  method,
		Params:  raw,
	}, nil
}

// NewNotification builds a request with no id; no response is expected.
func NewNotification(method string, params any) (*Request, error) {
	raw, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  raw,
	}, nil
}

func encodeParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	return raw, nil
}

// ErrorObject is the JSON-RPC "error" member of a Response.
type ErrorObject struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Response is an inbound JSON-RPC response, correlated to a prior Request
// by ID.
type Response struct {
	JSONRPC   string          `json:"jsonrpc"`
	ID        string          `json:"id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorObject    `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// Frame is the minimal envelope used to decide whether an inbound text
// message is a server-initiated request or a response, per the receive
// dispatch rule: presence of "method" means request.
type Frame struct {
	Method string `json:"method"`
}

// IsRequest reports whether data is a server-initiated request rather than
// a response, per the receive dispatch rule (§4.8).
func IsRequest(data []byte) (bool, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return false, fmt.Errorf("decoding frame envelope: %w", err)
	}
	return f.Method != "", nil
}

// Marshal serializes a Request to its wire form, defaulting JSONRPC to
// Version if unset.
func Marshal(r *Request) ([]byte, error) {
	if r.JSONRPC == "" {
		r.JSONRPC = Version
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return data, nil
}

// UnmarshalRequest parses an inbound server-initiated request.
func UnmarshalRequest(data []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return &r, nil
}

// UnmarshalResponse parses an inbound response.
func UnmarshalResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &r, nil
}

// MarshalResponse serializes a Response to its wire form.
func MarshalResponse(r *Response) ([]byte, error) {
	if r.JSONRPC == "" {
		r.JSONRPC = Version
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling response: %w", err)
	}
	return data, nil
}

// DecodeResult unmarshals a successful response's Result into v.
func DecodeResult(r *Response, v any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

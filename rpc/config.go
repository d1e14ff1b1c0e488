package rpc

import "time"

// Config is the fixed, enumerated option set of spec.md §3.
type Config struct {
	// RequestTimeout bounds the wait between send and response for a
	// single request. Default 60s.
	RequestTimeout time.Duration

	// ConnectionTimeout bounds the wait for the transport to connect. A
	// zero value defers entirely to the transport's own default.
	ConnectionTimeout time.Duration

	// ConnectionLockTimeout bounds acquisition of the session-wide
	// serialization lock. Default 25s.
	ConnectionLockTimeout time.Duration

	// ReconnectDelay is the delay between retry attempts when
	// TryReconnectingForever is set. Default 5s.
	ReconnectDelay time.Duration

	// SendCloseMessage, if true, sends a JSON-RPC closeSession request
	// (best-effort) before tearing down on Close.
	SendCloseMessage bool

	// TryReconnectingForever, if true, retries reconnection indefinitely
	// on failure instead of giving up after the first failed attempt, which
	// closes the client and fires OnDisconnected.
	TryReconnectingForever bool

	// RetryIfTimeoutOnConnect, if true, retries the connect attempt (not
	// the whole reconnect backoff loop) specifically when the transport
	// reports a connect timeout.
	RetryIfTimeoutOnConnect bool

	// ConcurrentServerRequest, if true (the default), dispatches inbound
	// server-initiated requests on the worker pool instead of inline on
	// the transport goroutine. See serverRequestDispatcher for the
	// deadlock rationale.
	ConcurrentServerRequest bool
}

// DefaultConfig returns the option defaults tabulated in spec.md §3.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:          60 * time.Second,
		ConnectionLockTimeout:   25 * time.Second,
		ReconnectDelay:          5 * time.Second,
		SendCloseMessage:        false,
		TryReconnectingForever:  false,
		RetryIfTimeoutOnConnect: false,
		ConcurrentServerRequest: true,
	}
}

// State is one of the five session states of spec.md §4.6.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

package rpc

import "errors"

// Sentinel errors for the client error kinds enumerated in spec.md §7.
// Each is wrapped with context via fmt.Errorf("...: %w", ...) so callers
// can still errors.Is against the sentinel.
var (
	// ErrClientClosed is returned by any send attempted after the user
	// called Close. Non-recoverable: the Client must be discarded.
	ErrClientClosed = errors.New("jsonrpcws: client closed")

	// ErrConnectTimeout means the transport's connect attempt timed out.
	// Retried transparently only when Config.RetryIfTimeoutOnConnect is
	// set; otherwise surfaced and the client closes itself.
	ErrConnectTimeout = errors.New("jsonrpcws: connect timed out")

	// ErrRequestTimeout means no response arrived within RequestTimeout.
	// The Client remains usable after this error.
	ErrRequestTimeout = errors.New("jsonrpcws: request timed out")

	// ErrLockTimeout means the session lock could not be acquired within
	// ConnectionLockTimeout. Treated as a fatal stuck state: the client
	// closes itself and surfaces this error.
	ErrLockTimeout = errors.New("jsonrpcws: session lock acquisition timed out")

	// ErrInterrupted means the caller's context was cancelled while
	// awaiting a response.
	ErrInterrupted = errors.New("jsonrpcws: wait interrupted")
)

// TimeoutError distinguishes a transport connect timeout from any other
// connect failure, so Config.RetryIfTimeoutOnConnect can be honored
// specifically for timeouts (spec.md §4.7).
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Timeout() bool { return true }

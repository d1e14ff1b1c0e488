package rpc

import "context"

// Transport is the abstract boundary to the native text-message channel
// (C7 in spec.md §4.7). The concrete implementation lives in package
// transport (coder/websocket); this interface is what package rpc depends
// on so the connection lifecycle/coordinator core stays free of any
// specific wire library.
//
// The transport MUST additionally call back into the Client it is bound to
// via Bind: onMessage for every inbound frame, and onDisconnect when the
// native channel closes without user initiation. See Bind.
type Transport interface {
	// ConnectNativeClient blocks up to the implementation's own configured
	// connect timeout. It returns nil on success. On timeout it returns an
	// error satisfying interface{ Timeout() bool } so RetryIfTimeoutOnConnect
	// can be honored specifically for timeouts; any other failure returns a
	// plain error.
	ConnectNativeClient(ctx context.Context) error

	// SendTextMessage delivers one JSON message frame. May surface an I/O
	// error from the underlying channel.
	SendTextMessage(ctx context.Context, text []byte) error

	// CloseNativeClient is idempotent and must not panic or block
	// indefinitely.
	CloseNativeClient()

	// IsNativeClientConnected is a non-blocking snapshot.
	IsNativeClientConnected() bool

	// Bind registers the coordinator callbacks the transport must invoke:
	// onMessage for every inbound text frame, and onDisconnect when the
	// native channel closes without the coordinator having asked for
	// CloseNativeClient (i.e. not user-initiated).
	Bind(onMessage func(text []byte), onDisconnect func(reason string))
}

package mcpserve

import (
	"context"
	"iter"
)

// ServerTransport provides the communication layer beneath a Server.
// Exactly one transport is selected at process start; the server does not
// switch transports at runtime.
type ServerTransport interface {
	// Sessions returns an iterator that yields new client sessions as they
	// are initiated. Each yielded Session represents a unique client
	// connection. The implementation must guarantee that each session ID is
	// unique across all active connections, and should exit the iteration
	// when Shutdown is called.
	Sessions() iter.Seq[Session]

	// Shutdown gracefully shuts down the transport. The implementation
	// should not close the sessions it produced; the caller already does
	// that before calling this method. The caller is guaranteed to call
	// Shutdown only once.
	Shutdown(ctx context.Context) error
}

// Session represents a bidirectional communication channel with one client.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Send transmits a message to the client.
	Send(ctx context.Context, msg JSONRPCMessage) error

	// Messages returns an iterator that yields messages received from the
	// client. The implementation should exit the iteration when the session
	// is stopped.
	Messages() iter.Seq[JSONRPCMessage]

	// Stop stops the session. The caller is guaranteed to call this method
	// at most once per session.
	Stop()
}

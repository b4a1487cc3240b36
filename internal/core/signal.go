package core

// SignalConnection abstracts the session-oriented message transport used
// by the Signaling Layer (§4.5). It is owned by the adapter that created
// it (the WebSocket connection, in this implementation); the adapter must
// Close() it, never the core.
type SignalConnection interface {
	// TrySend enqueues a frame for delivery without blocking; it returns
	// an error if the connection is backpressured or already closed.
	TrySend(Frame) error
	Close()
}

package interfaces

// Connection is the broker's view of one live client channel
// ARCHITECTURAL DISCOVERY: The broker only indexes connections; creating and
// tearing them down stays with the transport layer
type Connection interface {
	// ID returns an identifier that is stable for the connection's lifetime
	ID() string

	// Emit queues a named event for the client without blocking.
	// FUNCTIONAL DISCOVERY: Implementations must serialize writes (single writer)
	// since several rooms can emit to the same connection concurrently
	Emit(event string, payload any) error

	// Close closes the connection and cleans up resources
	Close() error
}

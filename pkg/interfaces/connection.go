package interfaces

// Connection represents one live duplex link to a chat client
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details; the core only
// holds non-owning references while a connection is registered
type Connection interface {
	// ID uniquely identifies the connection for the lifetime of the process
	ID() string

	// Send queues a text line for the client (thread-safe)
	// FUNCTIONAL DISCOVERY: Listener goroutines and the read loop send concurrently,
	// so implementations must serialize writes
	Send(text string) error

	// Username returns the authenticated username, or "" before authentication
	Username() string

	// SetUsername associates the connection with an authenticated username
	SetUsername(username string)

	// IsOpen reports whether the connection can still accept sends
	IsOpen() bool

	// Close closes the connection and releases transport resources
	Close() error
}

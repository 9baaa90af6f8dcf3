package session

// State is where a connection is in its lifecycle
type State int

const (
	// Unauthenticated is the initial state; every line is treated as a login attempt
	Unauthenticated State = iota
	// Authenticated is terminal; every line is a chat message
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

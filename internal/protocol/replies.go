package protocol

// Lines sent verbatim to clients
const (
	Welcome         = "Welcome to ChatServer."
	Instructions    = "To authenticate enter your username."
	InvalidUsername = "Invalid username."
	UnknownUser     = "User does not exist."
	Unparseable     = "Message could not be parsed."
)

// Greeting returns the lines sent when a connection opens
func Greeting() []string {
	return []string{Welcome, Instructions}
}

// Authenticated acknowledges a successful login
func Authenticated(username string) string {
	return "Authenticated as " + username + "."
}

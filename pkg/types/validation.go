package types

import (
	"strings"
	"unicode"
)

// IsValidUsername reports whether username is a single whitespace-free token
// FUNCTIONAL DISCOVERY: Purely syntactic; existence is decided by the persistent store
func IsValidUsername(username string) bool {
	if username == "" {
		return false
	}
	return strings.IndexFunc(username, unicode.IsSpace) < 0
}

// Validate checks the fields the store requires before a message is persisted
func (m *Message) Validate() error {
	if m.FromUser == "" || m.ToUser == "" {
		return ErrMissingParticipant
	}
	if !IsValidUsername(m.FromUser) || !IsValidUsername(m.ToUser) {
		return ErrInvalidUsername
	}
	if m.Text == "" {
		return ErrEmptyText
	}
	return nil
}

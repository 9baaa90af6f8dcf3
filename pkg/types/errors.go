package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidUsername    = errors.New("username must be a single non-empty token without whitespace")
	ErrEmptyText          = errors.New("message text cannot be empty")
	ErrMissingParticipant = errors.New("message requires both sender and recipient")
)

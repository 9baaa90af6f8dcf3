package session

import "errors"

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrNilConnection = errors.New("connection cannot be nil")
)

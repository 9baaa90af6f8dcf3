package protocol

import "errors"

var (
	ErrFormat = errors.New("cannot format message without username and text")
	ErrParse  = errors.New("message could not be parsed")
	ErrAuth   = errors.New("invalid username")
)

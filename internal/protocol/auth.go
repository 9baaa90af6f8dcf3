package protocol

import (
	"strings"

	"chatrelay/pkg/types"
)

// Authenticate accepts raw as a username when, once trimmed, it is a single
// whitespace-free token. There is no password or session token.
func Authenticate(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if !types.IsValidUsername(username) {
		return "", ErrAuth
	}
	return username, nil
}

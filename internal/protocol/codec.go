package protocol

import (
	"strings"
	"unicode"
)

const (
	recipientPrefix = "@"
	separator       = " >> "
)

// Format renders a delivered chat line as "@<username> >> <text>"
func Format(username, text string) (string, error) {
	if username == "" || text == "" {
		return "", ErrFormat
	}
	return recipientPrefix + username + separator + text, nil
}

// Parse splits an inbound chat line into recipient and text.
// The line is split on the first run of whitespace; the first token must start
// with "@" and the remainder must be non-empty once trimmed. The remainder is
// returned unmodified.
func Parse(line string) (recipient, text string, err error) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)

	end := strings.IndexFunc(line, unicode.IsSpace)
	if end < 0 {
		return "", "", ErrParse
	}
	token := line[:end]

	rest := strings.TrimLeftFunc(line[end:], unicode.IsSpace)
	if strings.TrimSpace(rest) == "" {
		return "", "", ErrParse
	}

	if !strings.HasPrefix(token, recipientPrefix) {
		return "", "", ErrParse
	}

	return strings.TrimPrefix(token, recipientPrefix), rest, nil
}

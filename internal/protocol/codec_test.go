package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	line, err := Format("alice", "hello")
	require.NoError(t, err)
	require.Equal(t, "@alice >> hello", line)
}

func TestFormat_StartsWithSender(t *testing.T) {
	cases := []struct{ username, text string }{
		{"alice", "hi"},
		{"bob_2", "multi word text"},
		{"zoë", "   padded   "},
		{"x", ">>"},
	}

	for _, c := range cases {
		line, err := Format(c.username, c.text)
		require.NoError(t, err)
		require.Regexp(t, "^@"+c.username, line)
	}
}

func TestFormat_RejectsEmpty(t *testing.T) {
	tests := []struct {
		name     string
		username string
		text     string
	}{
		{"empty username", "", "hello"},
		{"empty text", "alice", ""},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Format(tt.username, tt.text)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		line          string
		wantRecipient string
		wantText      string
	}{
		{"simple", "@bob hello", "bob", "hello"},
		{"multi word text", "@bob hello there friend", "bob", "hello there friend"},
		{"whitespace run", "@bob \t  hello", "bob", "hello"},
		{"trailing whitespace kept", "@bob hello  ", "bob", "hello  "},
		{"leading whitespace ignored", "  @bob hello", "bob", "hello"},
		{"internal spacing kept", "@bob a  b", "bob", "a  b"},
		{"bare at sign", "@ hello", "", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipient, text, err := Parse(tt.line)
			require.NoError(t, err)
			require.Equal(t, tt.wantRecipient, recipient)
			require.Equal(t, tt.wantText, text)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	lines := []string{
		"",
		"   ",
		"@bob",
		"@bob   ",
		"no-at-sign here",
		"bob hello",
		"hello",
	}

	for _, line := range lines {
		_, _, err := Parse(line)
		require.ErrorIs(t, err, ErrParse, "line %q", line)
	}
}

// Parse keeps the ">> " separator produced by Format as part of the text.
func TestParse_FormatRoundTripGolden(t *testing.T) {
	line, err := Format("alice", "hello world")
	require.NoError(t, err)

	recipient, text, err := Parse(line)
	require.NoError(t, err)
	require.Equal(t, "alice", recipient)
	require.Equal(t, ">> hello world", text)
}

// Package protocol implements the line-oriented chat wire format: the delivered-line
// codec, chat-line parsing, username authentication and the fixed reply strings sent
// to clients.
//
// Inbound chat lines look like "@bob hello there"; delivered lines look like
// "@alice >> hello there". Parse is intentionally not the inverse of Format: the
// ">> " separator inserted by Format is returned as part of the text by Parse.
package protocol

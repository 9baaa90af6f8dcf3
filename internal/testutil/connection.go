package testutil

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrFakeConnectionClosed = errors.New("fake connection closed")

// FakeConnection records every line sent to it
type FakeConnection struct {
	id       string
	mu       sync.Mutex
	sent     []string
	username string
	open     bool
	sendErr  error
	attempts int
	notify   chan struct{}
}

func NewFakeConnection() *FakeConnection {
	return &FakeConnection{
		id:     uuid.New().String(),
		open:   true,
		notify: make(chan struct{}, 1),
	}
}

func (c *FakeConnection) ID() string {
	return c.id
}

func (c *FakeConnection) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempts++
	if !c.open {
		return ErrFakeConnectionClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *FakeConnection) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

func (c *FakeConnection) SetUsername(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
}

func (c *FakeConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *FakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

// FailSends makes every later Send return err; nil restores normal behavior
func (c *FakeConnection) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Attempts counts Send calls, failed ones included
func (c *FakeConnection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Sent returns a copy of the lines sent so far
func (c *FakeConnection) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// Last returns the most recently sent line, or "" if nothing was sent
func (c *FakeConnection) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

// WaitForCount blocks until at least n lines were sent or timeout elapses.
// It returns the lines sent so far either way.
func (c *FakeConnection) WaitForCount(n int, timeout time.Duration) []string {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if sent := c.Sent(); len(sent) >= n {
			return sent
		}
		select {
		case <-c.notify:
		case <-deadline.C:
			return c.Sent()
		}
	}
}

package types

import (
	"time"
)

// User is a chat participant known to the persistent store
// FUNCTIONAL DISCOVERY: Username is the routing key; ID exists only for storage identity
type User struct {
	ID        string    `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Message is a single chat line from one user to another
// ARCHITECTURAL DISCOVERY: Delivered reflects what was known at send time and may only
// move from false to true (offline replay), never back
type Message struct {
	ID        string    `json:"id" db:"id"`
	FromUser  string    `json:"from_user" db:"from_user"`
	ToUser    string    `json:"to_user" db:"to_user"`
	Text      string    `json:"text" db:"text"`
	Delivered bool      `json:"delivered" db:"delivered"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MarkDelivered flips the delivered flag; it never clears it
func (m *Message) MarkDelivered() {
	m.Delivered = true
}

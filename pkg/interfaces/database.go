package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// Store is the durable record store for users and messages
// ARCHITECTURAL DISCOVERY: Single interface for all persistence operations; username
// uniqueness is enforced here, never by the in-memory registry
type Store interface {
	// GetOrCreateUser returns the user with username, creating it on first sight
	GetOrCreateUser(ctx context.Context, username string) (*types.User, error)

	// FindUser returns ErrUserNotFound when no record exists
	FindUser(ctx context.Context, username string) (*types.User, error)

	// SaveMessage persists a new message with its delivered flag
	SaveMessage(ctx context.Context, message *types.Message) error

	// QueryUndelivered returns undelivered messages for username in creation order
	QueryUndelivered(ctx context.Context, username string) ([]*types.Message, error)

	// UpdateMessage persists the delivered flag; a stored true is never cleared
	UpdateMessage(ctx context.Context, message *types.Message) error

	HealthCheck(ctx context.Context) error
	Close() error
}

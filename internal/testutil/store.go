package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

var ErrMessageNotFound = errors.New("message not found")

// MemoryStore is a map-backed interfaces.Store. Errors can be injected per
// operation to exercise failure paths.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*types.User
	messages []*types.Message

	CreateErr error
	FindErr   error
	SaveErr   error
	QueryErr  error
	UpdateErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*types.User)}
}

func (s *MemoryStore) GetOrCreateUser(_ context.Context, username string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	if !types.IsValidUsername(username) {
		return nil, types.ErrInvalidUsername
	}
	if user, ok := s.users[username]; ok {
		copied := *user
		return &copied, nil
	}

	user := &types.User{ID: uuid.New().String(), Username: username, CreatedAt: time.Now().UTC()}
	s.users[username] = user
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) FindUser(_ context.Context, username string) (*types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FindErr != nil {
		return nil, s.FindErr
	}
	user, ok := s.users[username]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, message *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	if err := message.Validate(); err != nil {
		return err
	}
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	copied := *message
	s.messages = append(s.messages, &copied)
	return nil
}

func (s *MemoryStore) QueryUndelivered(_ context.Context, username string) ([]*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	var out []*types.Message
	for _, m := range s.messages {
		if m.ToUser == username && !m.Delivered {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateMessage(_ context.Context, message *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	for _, m := range s.messages {
		if m.ID == message.ID {
			if message.Delivered {
				m.MarkDelivered()
			}
			return nil
		}
	}
	return ErrMessageNotFound
}

func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// AddUser seeds a user record directly
func (s *MemoryStore) AddUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		s.users[username] = &types.User{ID: uuid.New().String(), Username: username, CreatedAt: time.Now().UTC()}
	}
}

// Messages returns copies of every stored message in insertion order
func (s *MemoryStore) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// SetErrors replaces injected errors under the store lock
func (s *MemoryStore) SetErrors(fn func(s *MemoryStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

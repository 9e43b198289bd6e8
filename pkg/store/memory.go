package store

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/jiminy/pkg/conversation"
)

// InMemoryStore mirrors the document-store semantics in process memory:
// last-write-wins, no ordering guarantee on listing. Used by tests and for
// running the server without a database.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]conversation.Conversation
	ids           *idGenerator
	now           func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: map[string]conversation.Conversation{},
		ids:           newIDGenerator(),
		now:           time.Now,
	}
}

func (s *InMemoryStore) Create(ctx context.Context, messages []conversation.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.ids.Next()
	s.conversations[id] = conversation.Conversation{
		ID:        id,
		Title:     conversation.DefaultTitle,
		CreatedAt: s.now(),
		Messages:  append([]conversation.Message(nil), messages...),
	}

	return id, nil
}

func (s *InMemoryStore) CreateOrAppend(ctx context.Context, id string, messages []conversation.Message) (string, error) {
	if id == "" {
		return s.Create(ctx, messages)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		conv = conversation.Conversation{
			ID:        id,
			Title:     conversation.DefaultTitle,
			CreatedAt: s.now(),
		}
	}
	conv.Messages = append([]conversation.Message(nil), messages...)
	s.conversations[id] = conv

	return id, nil
}

func (s *InMemoryStore) ListAll(ctx context.Context) ([]conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret := make([]conversation.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		ret = append(ret, conv)
	}

	return ret, nil
}

func (s *InMemoryStore) Rename(ctx context.Context, id string, newTitle string) error {
	if err := ValidateTitle(newTitle); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return &PersistenceError{Err: errors.Errorf("conversation %s not found", id)}
	}
	conv.Title = newTitle
	s.conversations[id] = conv

	return nil
}

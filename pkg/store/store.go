package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/jiminy/pkg/conversation"
)

// ValidationError rejects bad input before any backend call is made.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Msg)
}

// PersistenceError wraps backend unavailability or a missing record.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store persists conversation records in a document store. The backend
// offers no transactions and no ordering guarantees on listing; concurrent
// writes to the same record resolve last-write-wins.
type Store interface {
	// Create allocates a new id and writes a record with the default title
	// and the given messages.
	Create(ctx context.Context, messages []conversation.Message) (string, error)

	// CreateOrAppend writes the full message list under the given id,
	// creating the record when the id is empty or unknown. Returns the id
	// the record was written under.
	CreateOrAppend(ctx context.Context, id string, messages []conversation.Message) (string, error)

	// ListAll returns every stored conversation. Callers must not depend
	// on the ordering of the result.
	ListAll(ctx context.Context) ([]conversation.Conversation, error)

	// Rename overwrites only the title of the record. Empty or
	// whitespace-only titles are rejected without a backend call.
	Rename(ctx context.Context, id string, newTitle string) error
}

// ValidateTitle is the shared pre-backend title check used by every Store
// implementation and by client-side orchestrators.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Msg: "title must not be empty"}
	}
	return nil
}

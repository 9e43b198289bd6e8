package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type EventType string

const (
	// Session events
	EventTypeSessionUpdated EventType = "session-updated"
	EventTypeTurnFailed     EventType = "turn-failed"

	// Directory events
	EventTypeDirectoryUpdated EventType = "directory-updated"
	EventTypeRefreshFailed    EventType = "refresh-failed"
	EventTypeRenameFailed     EventType = "rename-failed"
)

const (
	TopicSession   = "chat.session"
	TopicDirectory = "chat.directory"
)

// Event is a change notification emitted by the client-side orchestrators.
// Observers subscribe to a topic instead of polling ambient mutable state.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversationId,omitempty"`
	Error          string    `json:"error,omitempty"`
}

func NewEventFromJson(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "unmarshal event")
	}
	if e.Type == "" {
		return Event{}, errors.New("event has no type")
	}

	return e, nil
}

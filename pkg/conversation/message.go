package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTitle is the title given to a conversation at creation time,
// before the user has renamed it.
const DefaultTitle = "Untitled Chat"

// Message is a single entry in a conversation. Once appended to a
// conversation it is never edited or removed; order is send order and is
// the full context sent to the inference backend on every turn.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`

	// Unsaved marks an optimistically appended message whose persistence
	// has not been confirmed yet. Client-side only, never sent on the wire.
	Unsaved bool `json:"-"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func WithID(id uuid.UUID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithUnsaved() MessageOption {
	return func(m *Message) {
		m.Unsaved = true
	}
}

func NewChatMessage(role Role, text string, options ...MessageOption) Message {
	ret := Message{
		ID:      uuid.New(),
		Role:    role,
		Content: text,
		Time:    time.Now(),
	}

	for _, option := range options {
		option(&ret)
	}

	return ret
}

func (m Message) View() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Conversation is a persisted, titled, ordered sequence of messages. The id
// is assigned once at creation and never changes; messages only grow by
// append; the title may be rewritten without touching messages or createdAt.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// GetSinglePrompt concatenates all the messages together with their roles in
// front, for logging or for backends that take a single prompt string.
func GetSinglePrompt(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	if len(messages) == 1 {
		return messages[0].Content
	}

	prompt := ""
	for _, message := range messages {
		prompt += fmt.Sprintf("[%s]: %s\n", message.Role, message.Content)
	}

	return prompt
}

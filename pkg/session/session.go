package session

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/conversation"
	"github.com/go-go-golems/jiminy/pkg/events"
	"github.com/go-go-golems/jiminy/pkg/render"
)

// TurnClient runs one conversation turn against the server: it submits the
// full ordered message list and returns the assistant's reply text along
// with the id the conversation was persisted under.
type TurnClient interface {
	RunTurn(ctx context.Context, messages []conversation.Message, conversationID string) (reply string, id string, err error)
}

// ChatSession owns the message list and loading state of the conversation
// currently open in the UI. State is mutated only through its operations;
// observers subscribe to change notifications instead of reading shared
// globals.
type ChatSession struct {
	mu             sync.Mutex
	messages       []conversation.Message
	pending        bool
	conversationID string

	client    TurnClient
	renderer  *render.Renderer
	publisher events.Publisher
}

type SessionOption func(*ChatSession)

func WithPublisher(publisher events.Publisher) SessionOption {
	return func(s *ChatSession) {
		s.publisher = publisher
	}
}

func WithRenderer(renderer *render.Renderer) SessionOption {
	return func(s *ChatSession) {
		s.renderer = renderer
	}
}

func NewChatSession(client TurnClient, options ...SessionOption) *ChatSession {
	ret := &ChatSession{
		client:   client,
		renderer: render.NewRenderer(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Send runs one turn: it optimistically appends the user message, submits
// the full message list, and appends the rendered assistant reply. It is a
// no-op when the text is blank or a turn is already in flight. The pending
// flag clears when the call settles, whether it succeeded, failed or was
// cancelled.
func (s *ChatSession) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		log.Debug().Msg("turn already in flight, ignoring send")
		return nil
	}
	s.pending = true
	userMessage := conversation.NewChatMessage(conversation.RoleUser, text, conversation.WithUnsaved())
	s.messages = append(s.messages, userMessage)
	messages := append([]conversation.Message(nil), s.messages...)
	conversationID := s.conversationID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending = false
		s.mu.Unlock()
	}()

	s.publish(events.Event{Type: events.EventTypeSessionUpdated, ConversationID: conversationID})

	reply, id, err := s.client.RunTurn(ctx, messages, conversationID)
	if err != nil {
		// The optimistic user message stays, still marked unsaved; the
		// turn is not retried.
		log.Warn().Err(err).Msg("turn failed")
		s.publish(events.Event{
			Type:           events.EventTypeTurnFailed,
			ConversationID: conversationID,
			Error:          "the assistant could not reply",
		})
		return err
	}

	rendered, err := s.renderer.RenderMarkdown(reply)
	if err != nil {
		log.Warn().Err(err).Msg("failed to render reply")
		s.publish(events.Event{
			Type:           events.EventTypeTurnFailed,
			ConversationID: conversationID,
			Error:          "the assistant could not reply",
		})
		return err
	}

	s.mu.Lock()
	for i := range s.messages {
		s.messages[i].Unsaved = false
	}
	s.messages = append(s.messages, conversation.NewChatMessage(conversation.RoleAssistant, rendered))
	if id != "" {
		s.conversationID = id
	}
	conversationID = s.conversationID
	s.mu.Unlock()

	s.publish(events.Event{Type: events.EventTypeSessionUpdated, ConversationID: conversationID})
	return nil
}

// Select replaces the message list wholesale with the chosen conversation's
// stored messages, or clears it when conv is nil. The pending flag is left
// untouched.
func (s *ChatSession) Select(conv *conversation.Conversation) {
	s.mu.Lock()
	if conv == nil {
		s.messages = nil
		s.conversationID = ""
	} else {
		s.messages = append([]conversation.Message(nil), conv.Messages...)
		s.conversationID = conv.ID
	}
	conversationID := s.conversationID
	s.mu.Unlock()

	s.publish(events.Event{Type: events.EventTypeSessionUpdated, ConversationID: conversationID})
}

func (s *ChatSession) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]conversation.Message(nil), s.messages...)
}

func (s *ChatSession) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *ChatSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

func (s *ChatSession) publish(e events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(events.TopicSession, e); err != nil {
		log.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to publish session event")
	}
}

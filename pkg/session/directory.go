package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/conversation"
	"github.com/go-go-golems/jiminy/pkg/events"
	"github.com/go-go-golems/jiminy/pkg/store"
)

// DirectoryClient is the server surface the directory talks to.
type DirectoryClient interface {
	ListConversations(ctx context.Context) ([]conversation.Conversation, error)
	RenameConversation(ctx context.Context, id string, newTitle string) error
}

// ChatDirectory owns the list of known conversations, keyed by id.
type ChatDirectory struct {
	mu            sync.Mutex
	conversations map[string]conversation.Conversation
	loading       bool

	client    DirectoryClient
	publisher events.Publisher
}

type DirectoryOption func(*ChatDirectory)

func WithDirectoryPublisher(publisher events.Publisher) DirectoryOption {
	return func(d *ChatDirectory) {
		d.publisher = publisher
	}
}

func NewChatDirectory(client DirectoryClient, options ...DirectoryOption) *ChatDirectory {
	ret := &ChatDirectory{
		conversations: map[string]conversation.Conversation{},
		client:        client,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// Refresh fetches the full conversation list and replaces the local cache.
// On failure the prior cache is left intact and the failure is surfaced
// once through the event stream; no error propagates to the caller.
func (d *ChatDirectory) Refresh(ctx context.Context) {
	d.mu.Lock()
	d.loading = true
	d.mu.Unlock()

	convs, err := d.client.ListConversations(ctx)

	d.mu.Lock()
	d.loading = false
	if err == nil {
		replacement := make(map[string]conversation.Conversation, len(convs))
		for _, conv := range convs {
			replacement[conv.ID] = conv
		}
		d.conversations = replacement
	}
	d.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Msg("failed to refresh conversation list")
		d.publish(events.Event{
			Type:  events.EventTypeRefreshFailed,
			Error: "could not load conversations",
		})
		return
	}

	d.publish(events.Event{Type: events.EventTypeDirectoryUpdated})
}

// Rename delegates to the server and on success patches only the local
// title, without a full refresh. The local cache and the backend may
// diverge under concurrent renames until the next Refresh; the last local
// write visually wins.
func (d *ChatDirectory) Rename(ctx context.Context, id string, newTitle string) error {
	if err := store.ValidateTitle(newTitle); err != nil {
		return err
	}

	if err := d.client.RenameConversation(ctx, id, newTitle); err != nil {
		log.Warn().Err(err).Str("conversation_id", id).Msg("rename failed")
		d.publish(events.Event{
			Type:           events.EventTypeRenameFailed,
			ConversationID: id,
			Error:          "could not rename conversation",
		})
		return err
	}

	d.mu.Lock()
	if conv, ok := d.conversations[id]; ok {
		conv.Title = newTitle
		d.conversations[id] = conv
	}
	d.mu.Unlock()

	d.publish(events.Event{Type: events.EventTypeDirectoryUpdated, ConversationID: id})
	return nil
}

// Conversations returns a copy of the local cache. Iteration order is not
// meaningful; the backend gives no ordering guarantee either.
func (d *ChatDirectory) Conversations() map[string]conversation.Conversation {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := make(map[string]conversation.Conversation, len(d.conversations))
	for id, conv := range d.conversations {
		ret[id] = conv
	}

	return ret
}

func (d *ChatDirectory) Loading() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading
}

func (d *ChatDirectory) publish(e events.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(events.TopicDirectory, e); err != nil {
		log.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to publish directory event")
	}
}

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/jiminy/pkg/conversation"
	"github.com/go-go-golems/jiminy/pkg/events"
)

type fakeTurnClient struct {
	mu    sync.Mutex
	reply string
	id    string
	err   error

	calls       int
	gotMessages [][]conversation.Message

	// when set, RunTurn signals started and blocks until release is closed
	started chan struct{}
	release chan struct{}
}

func (f *fakeTurnClient) RunTurn(ctx context.Context, messages []conversation.Message, conversationID string) (string, string, error) {
	f.mu.Lock()
	f.calls++
	f.gotMessages = append(f.gotMessages, messages)
	started := f.started
	release := f.release
	f.mu.Unlock()

	if started != nil {
		close(started)
		f.mu.Lock()
		f.started = nil
		f.mu.Unlock()
	}
	if release != nil {
		<-release
	}

	return f.reply, f.id, f.err
}

func (f *fakeTurnClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(topic string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) byType(tp events.EventType) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ret []events.Event
	for _, e := range p.events {
		if e.Type == tp {
			ret = append(ret, e)
		}
	}
	return ret
}

func TestSendBlankTextIsNoOp(t *testing.T) {
	client := &fakeTurnClient{reply: "unused"}
	s := NewChatSession(client)

	require.NoError(t, s.Send(context.Background(), ""))
	require.NoError(t, s.Send(context.Background(), "   "))
	require.NoError(t, s.Send(context.Background(), " \t\n "))

	assert.Empty(t, s.Messages())
	assert.False(t, s.Pending())
	assert.Equal(t, 0, client.callCount())
}

func TestSendAppendsUserMessageThenRenderedReply(t *testing.T) {
	client := &fakeTurnClient{reply: "Hi there", id: "chat_1700000000000"}
	s := NewChatSession(client)

	require.NoError(t, s.Send(context.Background(), "Hello"))

	messages := s.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, conversation.RoleUser, messages[0].Role)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.False(t, messages[0].Unsaved)
	assert.Equal(t, conversation.RoleAssistant, messages[1].Role)
	assert.Contains(t, messages[1].Content, "Hi there")
	assert.False(t, s.Pending())
	assert.Equal(t, "chat_1700000000000", s.ConversationID())
}

func TestSendSubmitsFullMessageListIncludingNewTurn(t *testing.T) {
	client := &fakeTurnClient{reply: "ok"}
	s := NewChatSession(client)
	s.Select(&conversation.Conversation{
		ID: "chat_1",
		Messages: []conversation.Message{
			conversation.NewChatMessage(conversation.RoleUser, "earlier"),
			conversation.NewChatMessage(conversation.RoleAssistant, "before"),
		},
	})

	require.NoError(t, s.Send(context.Background(), "now"))

	require.Len(t, client.gotMessages, 1)
	sent := client.gotMessages[0]
	require.Len(t, sent, 3)
	assert.Equal(t, "earlier", sent[0].Content)
	assert.Equal(t, "before", sent[1].Content)
	assert.Equal(t, "now", sent[2].Content)
}

func TestSendWhilePendingIsNoOp(t *testing.T) {
	client := &fakeTurnClient{
		reply:   "slow reply",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewChatSession(client)

	started := client.started
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Send(context.Background(), "first")
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first send never reached the turn client")
	}

	require.True(t, s.Pending())
	require.NoError(t, s.Send(context.Background(), "second"))
	assert.Len(t, s.Messages(), 1, "no second optimistic message while a turn is in flight")
	assert.Equal(t, 1, client.callCount())

	close(client.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first send never settled")
	}

	assert.False(t, s.Pending())
	assert.Len(t, s.Messages(), 2)
}

func TestSendFailureKeepsOptimisticMessageAndClearsPending(t *testing.T) {
	client := &fakeTurnClient{err: errors.New("upstream down")}
	publisher := &recordingPublisher{}
	s := NewChatSession(client, WithPublisher(publisher))

	err := s.Send(context.Background(), "Hello")
	require.Error(t, err)

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "Hello", messages[0].Content)
	assert.True(t, messages[0].Unsaved, "failed optimistic message stays marked unsaved")
	assert.False(t, s.Pending())

	failures := publisher.byType(events.EventTypeTurnFailed)
	assert.Len(t, failures, 1)
}

func TestSendFailureDoesNotRetry(t *testing.T) {
	client := &fakeTurnClient{err: errors.New("boom")}
	s := NewChatSession(client)

	_ = s.Send(context.Background(), "Hello")

	assert.Equal(t, 1, client.callCount())
}

func TestSelectReplacesMessagesWithoutTouchingPending(t *testing.T) {
	client := &fakeTurnClient{reply: "ok"}
	s := NewChatSession(client)
	require.NoError(t, s.Send(context.Background(), "old"))

	s.Select(&conversation.Conversation{
		ID:    "chat_2",
		Title: "Other",
		Messages: []conversation.Message{
			conversation.NewChatMessage(conversation.RoleUser, "stored"),
		},
	})

	messages := s.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "stored", messages[0].Content)
	assert.Equal(t, "chat_2", s.ConversationID())
	assert.False(t, s.Pending())

	s.Select(nil)
	assert.Empty(t, s.Messages())
	assert.Empty(t, s.ConversationID())
}

func TestSendPublishesSessionUpdates(t *testing.T) {
	client := &fakeTurnClient{reply: "ok"}
	publisher := &recordingPublisher{}
	s := NewChatSession(client, WithPublisher(publisher))

	require.NoError(t, s.Send(context.Background(), "Hello"))

	updates := publisher.byType(events.EventTypeSessionUpdated)
	assert.GreaterOrEqual(t, len(updates), 2, "one update for the optimistic append, one for the reply")
}

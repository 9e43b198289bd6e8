package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDeliversPublishedEvents(t *testing.T) {
	router := NewRouter()
	defer func() { _ = router.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sub, err := router.Subscribe(ctx, TopicSession)
	require.NoError(t, err)

	require.NoError(t, router.Publish(TopicSession, Event{
		Type:           EventTypeSessionUpdated,
		ConversationID: "chat_1700000000000",
	}))

	select {
	case e := <-sub:
		assert.Equal(t, EventTypeSessionUpdated, e.Type)
		assert.Equal(t, "chat_1700000000000", e.ConversationID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestNewEventFromJsonRejectsMissingType(t *testing.T) {
	_, err := NewEventFromJson([]byte(`{"error":"boom"}`))
	require.Error(t, err)
}

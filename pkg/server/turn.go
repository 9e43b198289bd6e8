package server

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/jiminy/pkg/conversation"
	"github.com/go-go-golems/jiminy/pkg/inference"
	"github.com/go-go-golems/jiminy/pkg/store"
)

// TurnService handles the server half of a chat turn: run inference over
// the submitted message list, append the assistant reply, persist the
// updated conversation and hand the reply back.
//
// Inference and persistence are not one atomic unit. When persistence
// fails after a successful completion the reply is still returned so the
// user sees it; the turn is simply not saved.
type TurnService struct {
	gateway inference.Gateway
	store   store.Store

	// legacyPerTurn reproduces the historical behavior of writing a brand
	// new conversation record for every turn, ignoring the conversation id
	// supplied by the client.
	legacyPerTurn bool
}

type TurnServiceOption func(*TurnService)

func WithLegacyPerTurnPersistence() TurnServiceOption {
	return func(t *TurnService) {
		t.legacyPerTurn = true
	}
}

func NewTurnService(gateway inference.Gateway, store store.Store, options ...TurnServiceOption) *TurnService {
	ret := &TurnService{
		gateway: gateway,
		store:   store,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// RunTurn returns the assistant reply and the id the conversation was
// persisted under. The returned id is empty when persistence failed or
// when running in legacy per-turn mode and nothing should be keyed on it.
func (t *TurnService) RunTurn(ctx context.Context, messages []conversation.Message, conversationID string) (string, string, error) {
	reply, err := t.gateway.Complete(ctx, messages)
	if err != nil {
		return "", "", err
	}

	updated := append([]conversation.Message(nil), messages...)
	updated = append(updated, conversation.NewChatMessage(conversation.RoleAssistant, reply))

	var id string
	var persistErr error
	if t.legacyPerTurn {
		id, persistErr = t.store.Create(ctx, updated)
	} else {
		id, persistErr = t.store.CreateOrAppend(ctx, conversationID, updated)
	}
	if persistErr != nil {
		log.Error().Err(persistErr).
			Str("conversation_id", conversationID).
			Msg("reply produced but turn could not be persisted")
		return reply, "", nil
	}

	return reply, id, nil
}

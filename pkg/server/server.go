package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/jiminy/pkg/conversation"
	"github.com/go-go-golems/jiminy/pkg/store"
)

// Server owns the HTTP surface: the chat turn endpoint, the conversation
// listing and renaming endpoints, and a liveness root. All failures are
// mapped at this boundary to generic error bodies; no internal detail is
// leaked to clients.
type Server struct {
	addr  string
	turn  *TurnService
	store store.Store
	mux   *http.ServeMux
}

func NewServer(addr string, turn *TurnService, store store.Store) *Server {
	ret := &Server{
		addr:  addr,
		turn:  turn,
		store: store,
		mux:   http.NewServeMux(),
	}

	ret.mux.HandleFunc("/chat", ret.handleChat)
	ret.mux.HandleFunc("/chats", ret.handleListChats)
	ret.mux.HandleFunc("/chats/", ret.handleRename)
	ret.mux.HandleFunc("/", ret.handleRoot)

	return ret
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", s.addr).Msg("starting chat server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen and serve")
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Msg("shutting down chat server")
		return httpServer.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []messagePayload `json:"messages"`
	ConversationID string           `json:"conversationId,omitempty"`
}

type chatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversationId,omitempty"`
}

type conversationPayload struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	CreatedAt time.Time        `json:"createdAt"`
	Messages  []messagePayload `json:"messages"`
}

type renameRequest struct {
	Title string `json:"title"`
}

type renameResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid chat request body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	messages := make([]conversation.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, conversation.NewChatMessage(conversation.Role(m.Role), m.Content))
	}

	reply, conversationID, err := s.turn.RunTurn(r.Context(), messages, req.ConversationID)
	if err != nil {
		log.Error().Err(err).Msg("chat turn failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Something went wrong."})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply, ConversationID: conversationID})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convs, err := s.store.ListAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list conversations")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch chats."})
		return
	}

	payload := make([]conversationPayload, 0, len(convs))
	for _, conv := range convs {
		payload = append(payload, toConversationPayload(conv))
	}

	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/chats/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "chat id required"})
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid rename request body")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := s.store.Rename(r.Context(), id, req.Title); err != nil {
		var validationErr *store.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "title must not be empty"})
			return
		}
		log.Error().Err(err).Str("conversation_id", id).Msg("rename failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to rename chat."})
		return
	}

	writeJSON(w, http.StatusOK, renameResponse{Success: true})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	fmt.Fprintln(w, "Server is running and ready to handle requests!")
}

func toConversationPayload(conv conversation.Conversation) conversationPayload {
	messages := make([]messagePayload, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		messages = append(messages, messagePayload{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	return conversationPayload{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		Messages:  messages,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/jiminy/pkg/conversation"
)

// Client is the HTTP counterpart of the server's chat surface. It
// implements the collaborator interfaces the session orchestrators expect.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	ret := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
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

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) RunTurn(ctx context.Context, messages []conversation.Message, conversationID string) (string, string, error) {
	payload := chatRequest{
		Messages:       toMessagePayloads(messages),
		ConversationID: conversationID,
	}

	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/chat", payload, &resp); err != nil {
		return "", "", err
	}

	return resp.Reply, resp.ConversationID, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	var payload []conversationPayload
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &payload); err != nil {
		return nil, err
	}

	ret := make([]conversation.Conversation, 0, len(payload))
	for _, p := range payload {
		messages := make([]conversation.Message, 0, len(p.Messages))
		for _, m := range p.Messages {
			messages = append(messages, conversation.Message{
				Role:    conversation.Role(m.Role),
				Content: m.Content,
			})
		}
		ret = append(ret, conversation.Conversation{
			ID:        p.ID,
			Title:     p.Title,
			CreatedAt: p.CreatedAt,
			Messages:  messages,
		})
	}

	return ret, nil
}

func (c *Client) RenameConversation(ctx context.Context, id string, newTitle string) error {
	return c.doJSON(ctx, http.MethodPatch, "/chats/"+id, renameRequest{Title: newTitle}, nil)
}

func (c *Client) doJSON(ctx context.Context, method string, path string, payload interface{}, into interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errBody errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return errors.Errorf("%s %s: %s (status %d)", method, path, errBody.Error, resp.StatusCode)
		}
		return errors.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if into == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return errors.Wrap(err, "decode response")
	}

	return nil
}

func toMessagePayloads(messages []conversation.Message) []messagePayload {
	ret := make([]messagePayload, 0, len(messages))
	for _, message := range messages {
		ret = append(ret, messagePayload{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	return ret
}

package inference

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/jiminy/pkg/conversation"
)

// DefaultMaxResponseTokens caps the length of a single reply to bound
// cost and latency.
const DefaultMaxResponseTokens = 3000

// FallbackReply is returned when the backend produces an empty or absent
// reply; an empty turn is substituted rather than failed.
const FallbackReply = "I don't have a reply for that, please try rephrasing."

// UpstreamError wraps any failure of the inference backend: transport
// errors, quota errors, or a malformed response.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("inference upstream: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Gateway submits an ordered message list to the model backend and returns
// the normalized reply text. The backend is stateless: the full context is
// sent on every call.
type Gateway interface {
	Complete(ctx context.Context, messages []conversation.Message) (string, error)
}

type Settings struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxResponseTokens int
}

// OpenAIGateway talks to any OpenAI-compatible chat completion endpoint.
type OpenAIGateway struct {
	client   *go_openai.Client
	settings Settings
}

var _ Gateway = (*OpenAIGateway)(nil)

func NewOpenAIGateway(settings Settings) (*OpenAIGateway, error) {
	if settings.APIKey == "" {
		return nil, errors.New("no API key")
	}
	if settings.Model == "" {
		return nil, errors.New("no model specified")
	}
	if settings.MaxResponseTokens <= 0 {
		settings.MaxResponseTokens = DefaultMaxResponseTokens
	}

	config := go_openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		config.BaseURL = settings.BaseURL
	}

	return &OpenAIGateway{
		client:   go_openai.NewClientWithConfig(config),
		settings: settings,
	}, nil
}

func (g *OpenAIGateway) Complete(ctx context.Context, messages []conversation.Message) (string, error) {
	req := go_openai.ChatCompletionRequest{
		Model:     g.settings.Model,
		MaxTokens: g.settings.MaxResponseTokens,
		Messages:  makeCompletionMessages(messages),
	}

	log.Debug().
		Str("model", req.Model).
		Int("max_tokens", req.MaxTokens).
		Int("message_count", len(req.Messages)).
		Msg("sending chat completion request")

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("model", req.Model).Msg("chat completion request failed")
		return "", &UpstreamError{Err: errors.Wrap(err, "create chat completion")}
	}

	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Err: errors.New("no choices in upstream response")}
	}

	reply := NormalizeReply(resp.Choices[0].Message.Content)
	if reply == "" {
		log.Warn().Str("model", req.Model).Msg("empty reply from upstream, substituting fallback")
		reply = FallbackReply
	}

	return reply, nil
}

func makeCompletionMessages(messages []conversation.Message) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		ret = append(ret, go_openai.ChatCompletionMessage{
			Role:    string(message.Role),
			Content: message.Content,
		})
	}

	return ret
}

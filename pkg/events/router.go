package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Publisher is the narrow interface the orchestrators publish through.
type Publisher interface {
	Publish(topic string, e Event) error
}

// Router distributes typed events to subscribers over an in-process
// channel-backed pub/sub.
type Router struct {
	logger watermill.LoggerAdapter
	pubSub *gochannel.GoChannel
}

var _ Publisher = (*Router)(nil)

type RouterOption func(*Router)

func WithLogger(logger watermill.LoggerAdapter) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func NewRouter(options ...RouterOption) *Router {
	ret := &Router{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	ret.pubSub = gochannel.NewGoChannel(gochannel.Config{}, ret.logger)

	return ret
}

func (r *Router) Publish(topic string, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	return r.pubSub.Publish(topic, msg)
}

// Subscribe returns a channel of decoded events for the topic. Messages
// that fail to decode are logged and skipped rather than killing the
// subscription.
func (r *Router) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	messages, err := r.pubSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range messages {
			e, err := NewEventFromJson(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("skipping undecodable event")
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (r *Router) Close() error {
	return r.pubSub.Close()
}

// Package broker is the in-process publish/subscribe registry that fans
// notification events out to connected push listeners. Topics are usernames;
// subscriptions are bounded by their context and dropped on cancellation.
package broker

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/notifar/notifar/internal/apperr"
)

// Event is the payload delivered per affected username. Message is empty for
// pure unread-count updates.
type Event struct {
	Message     string `json:"message,omitempty"`
	UnreadCount int    `json:"unreadCount"`
}

type Broker struct {
	pubSub *gochannel.GoChannel
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Broker {
	sub := logger.With().Str("component", "delivery_broker").Logger()
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			// Buffer so a slow listener never blocks publishers.
			OutputChannelBuffer: 64,
		},
		newLoggerAdapter(sub),
	)
	return &Broker{pubSub: pubSub, logger: sub}
}

func topicFor(username string) string {
	return "user." + username
}

// Publish delivers the event to every listener of every addressed username.
// Usernames without listeners are a no-op.
func (b *Broker) Publish(usernames []string, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return apperr.Delivery("marshal delivery event", err)
	}
	for _, username := range usernames {
		msg := message.NewMessage(uuid.NewString(), payload)
		if err := b.pubSub.Publish(topicFor(username), msg); err != nil {
			return apperr.Delivery("publish delivery event", err)
		}
	}
	return nil
}

// Subscribe registers a listener for one username. The returned channel is
// closed when ctx is cancelled; events arriving after that are dropped for
// this listener.
func (b *Broker) Subscribe(ctx context.Context, username string) (<-chan Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, topicFor(username))
	if err != nil {
		return nil, apperr.Delivery("subscribe", err)
	}
	events := make(chan Event)
	go func() {
		defer close(events)
		for msg := range messages {
			var evt Event
			if err := json.Unmarshal(msg.Payload, &evt); err != nil {
				b.logger.Warn().Err(err).Str("username", username).Msg("dropping malformed delivery event")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func (b *Broker) Close() error {
	return b.pubSub.Close()
}

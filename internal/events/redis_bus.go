package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// calendarChannel is the redis pub/sub channel shared by all api-server
// instances. The doctor ID travels in the payload.
const calendarChannel = "calendar:events"

// RedisBridge extends the local Bus across instances via redis pub/sub.
// Publishes go to the local registry and to redis; a relay goroutine feeds
// events published by other instances back into the local registry. The
// Origin tag keeps an instance from re-delivering its own events.
type RedisBridge struct {
	local  *Bus
	client *redis.Client
	origin string
	log    zerolog.Logger
}

func NewRedisBridge(local *Bus, client *redis.Client, log zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		local:  local,
		client: client,
		origin: uuid.NewString(),
		log:    log.With().Str("component", "event_bridge").Logger(),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, ev Event) error {
	if err := b.local.Publish(ctx, ev); err != nil {
		return err
	}

	ev.Origin = b.origin
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal calendar event: %w", err)
	}

	if err := b.client.Publish(ctx, calendarChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish calendar event: %w", err)
	}
	return nil
}

// Run relays events from other instances until ctx is cancelled. Intended
// to be started as a goroutine from main.
func (b *RedisBridge) Run(ctx context.Context) {
	pubsub := b.client.Subscribe(ctx, calendarChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Msg("malformed calendar event")
				continue
			}
			if ev.Origin == b.origin {
				continue
			}

			ev.Origin = ""
			if err := b.local.Publish(ctx, ev); err != nil {
				b.log.Warn().Err(err).Msg("relay calendar event")
			}
		}
	}
}

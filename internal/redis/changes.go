package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/counsel-coordinator/internal/events"
)

// ChangeBus publishes change events on one Redis channel per (table,
// recipient), so a subscriber only receives rows it is party to.
type ChangeBus struct {
	client *redis.Client
	logger *slog.Logger
}

func NewChangeBus(client *redis.Client, logger *slog.Logger) *ChangeBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangeBus{client: client, logger: logger}
}

func (b *ChangeBus) Publish(ctx context.Context, ev events.ChangeEvent) error {
	if len(ev.Recipients) == 0 {
		return nil
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	pipe := b.client.Pipeline()
	for _, r := range ev.Recipients {
		pipe.Publish(ctx, events.Channel(ev.Table, r), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

func (b *ChangeBus) Subscribe(ctx context.Context, table string, recipient uuid.UUID) (<-chan events.ChangeEvent, error) {
	ps := b.client.Subscribe(ctx, events.Channel(table, recipient))

	// Wait for the subscription confirmation so callers know it is live.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	out := make(chan events.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev events.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("dropping malformed change event", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ping reports whether the bus transport is reachable.
func (b *ChangeBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

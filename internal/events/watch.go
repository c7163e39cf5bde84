package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	ReasonInitial = "initial"
	ReasonEvent   = "event"
	ReasonPoll    = "poll"
)

// RefetchFunc reloads whatever the observer renders. reason is one of the
// Reason* constants.
type RefetchFunc func(ctx context.Context, reason string) error

// Watch keeps an observer in sync with one recipient's rows in table. It
// re-fetches once up front, on every incoming event and on every tick of
// pollEvery, so a dropped event is repaired by the next poll. If the
// subscription cannot be opened or closes, Watch keeps polling.
//
// Watch returns when ctx is done or refetch fails.
func Watch(ctx context.Context, sub Subscriber, table string, recipient uuid.UUID, pollEvery time.Duration, logger *slog.Logger, refetch RefetchFunc) error {
	if logger == nil {
		logger = slog.Default()
	}
	var stream <-chan ChangeEvent
	if sub != nil {
		ch, err := sub.Subscribe(ctx, table, recipient)
		if err != nil {
			logger.Warn("change subscription unavailable, polling only",
				"table", table, "recipient", recipient, "err", err)
		} else {
			stream = ch
		}
	}

	if err := refetch(ctx, ReasonInitial); err != nil {
		return err
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-stream:
			if !ok {
				logger.Warn("change subscription closed, polling only",
					"table", table, "recipient", recipient)
				stream = nil
				continue
			}
			if err := refetch(ctx, ReasonEvent); err != nil {
				return err
			}
		case <-ticker.C:
			if err := refetch(ctx, ReasonPoll); err != nil {
				return err
			}
		}
	}
}

// Package notify persists participant notifications and announces them on
// the change bus.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/events"
	"github.com/hackgods/counsel-coordinator/internal/metrics"
)

// Sink implements appointment.Notifier on top of the notification feed.
// It never returns an error: a lost notification must not undo the state
// change that produced it.
type Sink struct {
	store     appointment.NotificationStore
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewSink(store appointment.NotificationStore, publisher events.Publisher, logger *slog.Logger) *Sink {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: store, publisher: publisher, logger: logger, now: time.Now}
}

func (s *Sink) Notify(ctx context.Context, recipientID uuid.UUID, message string) {
	n := &appointment.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Message:     message,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		metrics.NotifyFailures.Inc()
		s.logger.Warn("insert notification failed", "recipient_id", recipientID, "err", err)
		return
	}

	err := s.publisher.Publish(ctx, events.ChangeEvent{
		Table:      events.TableNotifications,
		RowID:      n.ID.String(),
		Op:         "created",
		Recipients: []uuid.UUID{recipientID},
		Priority:   events.PriorityNormal,
		At:         n.CreatedAt,
	})
	if err != nil {
		metrics.NotifyFailures.Inc()
		s.logger.Warn("publish notification event failed", "recipient_id", recipientID, "notification_id", n.ID, "err", err)
	}
}

// List returns the recipient's feed, newest first.
func (s *Sink) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]appointment.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListNotifications(ctx, recipientID, unreadOnly, limit, offset)
}

func (s *Sink) MarkRead(ctx context.Context, id uuid.UUID) (*appointment.Notification, error) {
	n, err := s.store.MarkNotificationRead(ctx, id)
	if err != nil {
		return nil, err
	}

	err = s.publisher.Publish(ctx, events.ChangeEvent{
		Table:      events.TableNotifications,
		RowID:      n.ID.String(),
		Op:         "read",
		Recipients: []uuid.UUID{n.RecipientID},
		Priority:   events.PriorityNormal,
		At:         s.now(),
	})
	if err != nil {
		s.logger.Warn("publish notification event failed", "notification_id", n.ID, "err", err)
	}
	return n, nil
}

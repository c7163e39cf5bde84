// Package events carries change notifications between the coordinator and
// its observers. An event only says "this row changed"; receivers re-fetch
// the authoritative record instead of trusting the payload.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TableAppointments  = "appointments"
	TableNotifications = "notifications"
	TableSlotLedgers   = "slot_ledgers"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type ChangeEvent struct {
	Table      string      `json:"table"`
	RowID      string      `json:"row_id"`
	Op         string      `json:"op"`
	Recipients []uuid.UUID `json:"recipients,omitempty"`
	Priority   Priority    `json:"priority,omitempty"`
	At         time.Time   `json:"at"`
}

// Publisher fans an event out to every recipient's filtered channel.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Subscriber delivers events for one table, filtered to a single recipient.
// Delivery is at-least-once and unordered across rows. The returned channel
// is closed when ctx ends or the underlying transport drops.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, recipient uuid.UUID) (<-chan ChangeEvent, error)
}

// Channel is the transport channel name for a (table, recipient) filter.
func Channel(table string, recipient uuid.UUID) string {
	return fmt.Sprintf("changes:%s:%s", table, recipient)
}

// Nop discards events. Used by tools that write rows but have no observers.
type Nop struct{}

func (Nop) Publish(context.Context, ChangeEvent) error { return nil }

package appointment

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence port of the coordinator. Reads outside InTx see
// committed state; every mutation goes through InTx.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	GetLedgerDay(ctx context.Context, providerID uuid.UUID, date string) (*LedgerDay, error)
	// ListLedgerDays returns (provider, date) keys with date >= fromDate.
	ListLedgerDays(ctx context.Context, fromDate string) ([]LedgerKey, error)
}

// Tx is one unit of work. Writes are guarded by row versions: an update
// whose expected version no longer matches returns ErrVersionConflict, and
// the caller re-runs the whole unit.
type Tx interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListActiveByProviderDate returns pending and confirmed rows.
	ListActiveByProviderDate(ctx context.Context, providerID uuid.UUID, date string) ([]Appointment, error)
	// ListActiveByRequesterDate returns pending and confirmed rows.
	ListActiveByRequesterDate(ctx context.Context, requesterID uuid.UUID, date string) ([]Appointment, error)

	InsertAppointment(ctx context.Context, a *Appointment) error
	// UpdateAppointment writes a if the stored version equals a.Version and
	// bumps a.Version on success.
	UpdateAppointment(ctx context.Context, a *Appointment) error

	GetLedgerDay(ctx context.Context, providerID uuid.UUID, date string) (*LedgerDay, error)
	// SaveLedgerDay inserts when d.Version is 0, otherwise updates under the
	// same version guard as UpdateAppointment.
	SaveLedgerDay(ctx context.Context, d *LedgerDay) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

type LedgerKey struct {
	ProviderID uuid.UUID
	Date       string
}

// Directory is the identity collaborator. Its ids are authoritative.
type Directory interface {
	ListProviders(ctx context.Context) ([]Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetRequester(ctx context.Context, id uuid.UUID) (*Requester, error)
}

// NotificationStore persists the append-only notification feed.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) (*Notification, error)
}

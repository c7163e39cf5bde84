package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type EntryDecision string

const (
	EntryAllowed EntryDecision = "allowed"
	EntryDenied  EntryDecision = "denied"
)

// GateState tracks physical-presence verification. It is orthogonal to
// Status: AwaitingDecision may only be true while the appointment is
// Confirmed.
type GateState struct {
	AwaitingDecision bool
	VerifiedBy       *string
	Decision         *EntryDecision
}

// TransferState is present while a provider-to-provider handoff awaits
// consent from the receiving provider and the requester.
type TransferState struct {
	TargetProviderID  uuid.UUID
	TargetAccepted    bool
	RequesterAccepted bool
}

// RescheduleProposal is a provider-proposed new (date, time) awaiting the
// requester's answer. The live slot stays booked until resolution.
type RescheduleProposal struct {
	Date string
	Time string
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Requester struct {
	ID        uuid.UUID
	Name      string
	Section   string
	Contact   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	RequesterID uuid.UUID
	ProviderID  uuid.UUID

	// Denormalized display fields, rewritten by hand on transfer.
	RequesterName    string
	RequesterSection string
	RequesterContact string
	ProviderName     string

	Date        string // DateLayout
	Time        string // TimeLayout slot label
	Reason      string
	Description string

	Status     Status
	Gate       GateState
	Transfer   *TransferState
	Reschedule *RescheduleProposal

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt resolves the appointment's calendar slot in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return SlotStart(a.Date, a.Time, loc)
}

// Clone returns a deep copy; stores hand out clones so callers cannot
// mutate shared state outside a transaction.
func (a *Appointment) Clone() *Appointment {
	c := *a
	if a.Gate.VerifiedBy != nil {
		v := *a.Gate.VerifiedBy
		c.Gate.VerifiedBy = &v
	}
	if a.Gate.Decision != nil {
		d := *a.Gate.Decision
		c.Gate.Decision = &d
	}
	if a.Transfer != nil {
		t := *a.Transfer
		c.Transfer = &t
	}
	if a.Reschedule != nil {
		r := *a.Reschedule
		c.Reschedule = &r
	}
	return &c
}

type Notification struct {
	ID          uuid.UUID
	RecipientID uuid.UUID
	Message     string
	Read        bool
	CreatedAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type ListFilter struct {
	RequesterID *uuid.UUID
	ProviderID  *uuid.UUID
	Date        *string
	Status      *Status
	Limit       int
	Offset      int
}

// ValidateDate checks a DateLayout calendar day.
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, date)
	}
	return nil
}

// NormalizeTime returns the canonical HH:MM form of a slot label. Labels
// are compared as strings everywhere (ledger, conflict checks, unique
// indexes), so "9:00" must become "09:00" before it is stored.
func NormalizeTime(label string) (string, error) {
	t, err := time.Parse(TimeLayout, strings.TrimSpace(label))
	if err != nil {
		return "", fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidInput, label)
	}
	return t.Format(TimeLayout), nil
}

// canonicalTime is NormalizeTime for lookups that cannot fail; an
// unparseable label is returned unchanged and simply matches nothing.
func canonicalTime(label string) string {
	if n, err := NormalizeTime(label); err == nil {
		return n
	}
	return label
}

// MinutesSinceMidnight parses a TimeLayout slot label.
func MinutesSinceMidnight(label string) (int, error) {
	t, err := time.Parse(TimeLayout, label)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidInput, label)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func SlotStart(date, label string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+label, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad slot %s %s", ErrInvalidInput, date, label)
	}
	return t, nil
}

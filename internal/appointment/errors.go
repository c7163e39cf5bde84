package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error categories. Every error returned by the service wraps exactly one
// of these, so transports classify with errors.Is.
var (
	ErrConflict     = errors.New("conflict")
	ErrPrecondition = errors.New("precondition failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTooEarly     = errors.New("too early")
)

var (
	ErrRequesterNotFound   = fmt.Errorf("%w: requester not found", ErrNotFound)
	ErrProviderNotFound    = fmt.Errorf("%w: provider not found", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment not found", ErrNotFound)
	ErrLedgerNotFound      = fmt.Errorf("%w: no availability published for this provider and date", ErrNotFound)
	ErrNoEntryAppointment  = fmt.Errorf("%w: no confirmed appointment within the entry window", ErrNotFound)

	ErrNotificationNotFound = fmt.Errorf("%w: notification not found", ErrNotFound)

	ErrSlotTaken         = fmt.Errorf("%w: slot already booked", ErrConflict)
	ErrSlotBeingBooked   = fmt.Errorf("%w: slot is currently being booked, please retry", ErrConflict)
	ErrSlotNotPublished  = fmt.Errorf("%w: slot is not in the provider's published availability", ErrConflict)
	ErrDuplicateSlot     = fmt.Errorf("%w: requester already holds an appointment at this date and time", ErrConflict)
	ErrDailyLimit        = fmt.Errorf("%w: requester already has an active appointment on this date", ErrConflict)
	ErrIntervalViolation = fmt.Errorf("%w: provider schedule too close", ErrConflict)

	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", ErrPrecondition)
	ErrNotActive               = fmt.Errorf("%w: appointment is not pending or confirmed", ErrPrecondition)
	ErrTransferActive          = fmt.Errorf("%w: a transfer is already in progress", ErrPrecondition)
	ErrNoTransfer              = fmt.Errorf("%w: no transfer in progress", ErrPrecondition)
	ErrRescheduleActive        = fmt.Errorf("%w: a reschedule proposal is already in progress", ErrPrecondition)
	ErrNoReschedule            = fmt.Errorf("%w: no reschedule proposal in progress", ErrPrecondition)
	ErrSameProvider            = fmt.Errorf("%w: transfer target is the current provider", ErrPrecondition)
	ErrSameSlot                = fmt.Errorf("%w: proposed slot equals the current slot", ErrPrecondition)
	ErrGateActive              = fmt.Errorf("%w: an entry request is already open", ErrPrecondition)
	ErrGateAlreadyAdmitted     = fmt.Errorf("%w: entry was already allowed", ErrPrecondition)
	ErrGateAlreadyResolved     = fmt.Errorf("%w: entry request already resolved", ErrPrecondition)
	ErrNotConfirmed            = fmt.Errorf("%w: appointment is not confirmed", ErrPrecondition)

	ErrEntryTooEarly = fmt.Errorf("%w: entry decision submitted before the entry window opened", ErrTooEarly)

	// ErrVersionConflict means the row changed under us. The service retries
	// the whole unit of work; it only escapes when retries run out.
	ErrVersionConflict = fmt.Errorf("%w: concurrent modification", ErrConflict)
)

// IntervalConflict reports which confirmed session crowds the target slot.
type IntervalConflict struct {
	AppointmentID uuid.UUID
	Date          string
	ExistingTime  string
	TargetTime    string
	GapMinutes    int
	BufferMinutes int
}

func (e *IntervalConflict) Error() string {
	return fmt.Sprintf("provider has a confirmed appointment at %s on %s, %d minutes from %s (minimum spacing is %d minutes)",
		e.ExistingTime, e.Date, e.GapMinutes, e.TargetTime, e.BufferMinutes)
}

func (e *IntervalConflict) Unwrap() error { return ErrIntervalViolation }

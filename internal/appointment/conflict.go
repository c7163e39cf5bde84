package appointment

import (
	"time"

	"github.com/google/uuid"
)

// The checks below are pure: callers load the candidate rows inside their
// transaction and pass them in. exclude skips the appointment being moved.

// CheckExactSlot fails if the requester already holds an active appointment
// at exactly (date, time), with any provider.
func CheckExactSlot(requesterAppts []Appointment, date, timeLabel string, exclude uuid.UUID) error {
	for _, a := range requesterAppts {
		if a.ID == exclude || !a.Status.Active() {
			continue
		}
		if a.Date == date && a.Time == timeLabel {
			return ErrDuplicateSlot
		}
	}
	return nil
}

// CheckDailyLimit enforces at most one active appointment per requester per
// calendar day.
func CheckDailyLimit(requesterAppts []Appointment, date string, exclude uuid.UUID) error {
	for _, a := range requesterAppts {
		if a.ID == exclude || !a.Status.Active() {
			continue
		}
		if a.Date == date {
			return ErrDailyLimit
		}
	}
	return nil
}

// CheckSlotOccupancy fails if another active appointment already holds the
// provider's (date, time).
func CheckSlotOccupancy(providerAppts []Appointment, date, timeLabel string, exclude uuid.UUID) error {
	for _, a := range providerAppts {
		if a.ID == exclude || !a.Status.Active() {
			continue
		}
		if a.Date == date && a.Time == timeLabel {
			return ErrSlotTaken
		}
	}
	return nil
}

// CheckInterval fails if any Confirmed appointment of the provider on date
// starts less than buffer away from timeLabel. Pending rows are tentative
// and do not count.
func CheckInterval(providerAppts []Appointment, date, timeLabel string, buffer time.Duration, exclude uuid.UUID) error {
	target, err := MinutesSinceMidnight(timeLabel)
	if err != nil {
		return err
	}
	bufMin := int(buffer / time.Minute)

	for _, a := range providerAppts {
		if a.ID == exclude || a.Status != StatusConfirmed || a.Date != date {
			continue
		}
		existing, err := MinutesSinceMidnight(a.Time)
		if err != nil {
			return err
		}
		gap := existing - target
		if gap < 0 {
			gap = -gap
		}
		if gap < bufMin {
			return &IntervalConflict{
				AppointmentID: a.ID,
				Date:          date,
				ExistingTime:  a.Time,
				TargetTime:    timeLabel,
				GapMinutes:    gap,
				BufferMinutes: bufMin,
			}
		}
	}
	return nil
}

package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ProposeReschedule records a provider-proposed new slot. The appointment
// keeps its current slot until the requester answers.
func (s *Service) ProposeReschedule(ctx context.Context, id uuid.UUID, date, timeLabel string) (*Appointment, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	timeLabel, err := NormalizeTime(timeLabel)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "reschedule_propose", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.Status.Active() {
			return fmt.Errorf("%w: status %s", ErrNotActive, a.Status)
		}
		if a.rescheduleActive() {
			return ErrRescheduleActive
		}
		if a.transferActive() {
			return ErrTransferActive
		}
		if a.Date == date && a.Time == timeLabel {
			return ErrSameSlot
		}
		if err := s.checkMove(ctx, tx, a, date, timeLabel); err != nil {
			return err
		}

		a.Reschedule = &RescheduleProposal{Date: date, Time: timeLabel}

		fx.record(EventRescheduleProposed, map[string]any{
			"from_date": a.Date,
			"from_time": a.Time,
			"to_date":   date,
			"to_time":   timeLabel,
		})
		fx.notify(a.RequesterID, msgRescheduleProposed, a.ProviderName, a.Date, a.Time, date, timeLabel)
		return nil
	})
}

// RespondReschedule applies the requester's answer. Accepting moves the
// appointment to the proposed slot and confirms it; declining cancels the
// appointment outright. If the proposed slot became unavailable the accept
// fails and the proposal stays open.
func (s *Service) RespondReschedule(ctx context.Context, id uuid.UUID, accept bool) (*Appointment, error) {
	return s.mutate(ctx, "reschedule_respond", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.rescheduleActive() {
			return ErrNoReschedule
		}
		p := *a.Reschedule

		if !accept {
			if err := a.transition(StatusCancelled); err != nil {
				return err
			}
			if err := s.freeSlot(ctx, tx, a.ProviderID, a.Date, a.Time, a.ID); err != nil {
				return err
			}
			fx.record(EventRescheduleDeclined, map[string]any{"to_date": p.Date, "to_time": p.Time})
			fx.notify(a.ProviderID, msgRescheduleDeclined, a.RequesterName, a.Date, a.Time)
			return nil
		}

		if err := s.checkMove(ctx, tx, a, p.Date, p.Time); err != nil {
			return err
		}
		if err := s.freeSlot(ctx, tx, a.ProviderID, a.Date, a.Time, a.ID); err != nil {
			return err
		}
		if err := s.bookSlot(ctx, tx, a.ProviderID, p.Date, p.Time, a.ID, true); err != nil {
			return err
		}

		from := map[string]any{"from_date": a.Date, "from_time": a.Time, "to_date": p.Date, "to_time": p.Time}
		a.Date, a.Time = p.Date, p.Time
		a.Reschedule = nil
		// a new slot is a new session at the door
		a.Gate = GateState{}
		if err := a.ensureConfirmed(); err != nil {
			return err
		}

		fx.record(EventRescheduleAccepted, from)
		fx.notify(a.ProviderID, msgRescheduleAccepted, a.RequesterName, a.Date, a.Time)
		return nil
	})
}

// RetractReschedule withdraws an open proposal; the appointment is
// otherwise untouched.
func (s *Service) RetractReschedule(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, "reschedule_retract", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.rescheduleActive() {
			return ErrNoReschedule
		}
		p := *a.Reschedule
		a.Reschedule = nil

		fx.record(EventRescheduleRetracted, map[string]any{"to_date": p.Date, "to_time": p.Time})
		fx.notify(a.RequesterID, msgRescheduleRetracted, a.ProviderName, a.Date, a.Time)
		return nil
	})
}

// checkMove verifies a could occupy (date, time) with its current provider
// and requester, ignoring a itself.
func (s *Service) checkMove(ctx context.Context, tx Tx, a *Appointment, date, timeLabel string) error {
	if err := s.checkProviderFree(ctx, tx, a.ProviderID, date, timeLabel, a.ID); err != nil {
		return err
	}

	mine, err := tx.ListActiveByRequesterDate(ctx, a.RequesterID, date)
	if err != nil {
		return fmt.Errorf("load requester day: %w", err)
	}
	if err := CheckExactSlot(mine, date, timeLabel, a.ID); err != nil {
		return err
	}
	return CheckDailyLimit(mine, date, a.ID)
}

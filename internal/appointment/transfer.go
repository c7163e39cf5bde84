package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InitiateTransfer opens a handoff of an active appointment to another
// provider. The target must be free at the same date and time and clear of
// the interval buffer; nothing moves until both the target and the
// requester accept.
func (s *Service) InitiateTransfer(ctx context.Context, id, targetProviderID uuid.UUID) (*Appointment, error) {
	target, err := s.dir.GetProvider(ctx, targetProviderID)
	if err != nil {
		s.observe("transfer_initiate", err)
		return nil, err
	}

	return s.mutate(ctx, "transfer_initiate", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.Status.Active() {
			return fmt.Errorf("%w: status %s", ErrNotActive, a.Status)
		}
		if a.transferActive() {
			return ErrTransferActive
		}
		if a.rescheduleActive() {
			return ErrRescheduleActive
		}
		if target.ID == a.ProviderID {
			return ErrSameProvider
		}
		if err := s.checkProviderFree(ctx, tx, target.ID, a.Date, a.Time, a.ID); err != nil {
			return err
		}

		a.Transfer = &TransferState{TargetProviderID: target.ID}

		fx.record(EventTransferInitiated, map[string]any{
			"from_provider_id": a.ProviderID.String(),
			"to_provider_id":   target.ID.String(),
		})
		fx.notify(target.ID, msgTransferToTarget, a.ProviderName, a.RequesterName, a.Date, a.Time)
		fx.notify(a.RequesterID, msgTransferToRequester, a.ProviderName, a.Date, a.Time, target.Name)
		return nil
	})
}

// RespondTransferAsTarget records the receiving provider's answer. A
// decline clears the transfer; an accept finalizes if the requester has
// already agreed.
func (s *Service) RespondTransferAsTarget(ctx context.Context, id uuid.UUID, accept bool) (*Appointment, error) {
	return s.mutate(ctx, "transfer_target_respond", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.transferActive() {
			return ErrNoTransfer
		}
		target, err := s.dir.GetProvider(ctx, a.Transfer.TargetProviderID)
		if err != nil {
			return err
		}

		if !accept {
			a.Transfer = nil
			fx.also = append(fx.also, target.ID)
			fx.record(EventTransferDeclined, map[string]any{"by": "target", "to_provider_id": target.ID.String()})
			fx.notify(a.ProviderID, msgTransferTargetDeclined, target.Name, a.RequesterName, a.Date, a.Time)
			return nil
		}

		a.Transfer.TargetAccepted = true
		if a.Transfer.RequesterAccepted {
			return s.finalizeTransfer(ctx, tx, a, target, fx)
		}

		fx.record(EventTransferAccepted, map[string]any{"by": "target", "to_provider_id": target.ID.String()})
		fx.notify(a.RequesterID, msgTransferTargetAccepted, target.Name, a.Date, a.Time)
		return nil
	})
}

// RespondTransferAsRequester records the requester's answer, mirroring
// RespondTransferAsTarget.
func (s *Service) RespondTransferAsRequester(ctx context.Context, id uuid.UUID, accept bool) (*Appointment, error) {
	return s.mutate(ctx, "transfer_requester_respond", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.transferActive() {
			return ErrNoTransfer
		}
		target, err := s.dir.GetProvider(ctx, a.Transfer.TargetProviderID)
		if err != nil {
			return err
		}

		if !accept {
			a.Transfer = nil
			fx.also = append(fx.also, target.ID)
			fx.record(EventTransferDeclined, map[string]any{"by": "requester", "to_provider_id": target.ID.String()})
			fx.notify(a.ProviderID, msgTransferRequesterRefuse, a.RequesterName, a.Date, a.Time)
			fx.notify(target.ID, msgTransferRequesterRefuse, a.RequesterName, a.Date, a.Time)
			return nil
		}

		a.Transfer.RequesterAccepted = true
		if a.Transfer.TargetAccepted {
			return s.finalizeTransfer(ctx, tx, a, target, fx)
		}

		fx.record(EventTransferAccepted, map[string]any{"by": "requester", "to_provider_id": target.ID.String()})
		fx.notify(target.ID, msgTransferRequesterAgreed, a.RequesterName, a.Date, a.Time)
		return nil
	})
}

// RevokeTransfer lets the original provider withdraw an open transfer.
func (s *Service) RevokeTransfer(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, "transfer_revoke", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.transferActive() {
			return ErrNoTransfer
		}
		targetID := a.Transfer.TargetProviderID
		a.Transfer = nil

		fx.also = append(fx.also, targetID)
		fx.record(EventTransferRevoked, map[string]any{"to_provider_id": targetID.String()})
		fx.notify(targetID, msgTransferRevoked, a.Date, a.Time)
		fx.notify(a.RequesterID, msgTransferRevoked, a.Date, a.Time)
		return nil
	})
}

// finalizeTransfer runs inside the accepting transaction once both parties
// agreed: the target's calendar is re-checked, the old slot is freed, the
// new one booked, and the appointment rewritten to the target and
// Confirmed. Any failure rolls the whole thing back with the consent flags.
func (s *Service) finalizeTransfer(ctx context.Context, tx Tx, a *Appointment, target *Provider, fx *effects) error {
	if err := s.checkProviderFree(ctx, tx, target.ID, a.Date, a.Time, a.ID); err != nil {
		return err
	}

	oldID := a.ProviderID
	if err := s.freeSlot(ctx, tx, oldID, a.Date, a.Time, a.ID); err != nil {
		return err
	}
	if err := s.bookSlot(ctx, tx, target.ID, a.Date, a.Time, a.ID, true); err != nil {
		return err
	}

	a.ProviderID = target.ID
	a.ProviderName = target.Name
	a.Transfer = nil
	// an entry request alerted the old provider; the new one starts clean
	a.Gate = GateState{}
	if err := a.ensureConfirmed(); err != nil {
		return err
	}

	fx.also = append(fx.also, oldID)
	fx.record(EventTransferFinalized, map[string]any{
		"from_provider_id": oldID.String(),
		"to_provider_id":   target.ID.String(),
	})
	fx.notify(a.RequesterID, msgTransferDoneRequester, a.Date, a.Time, target.Name)
	fx.notify(oldID, msgTransferDoneOld, a.RequesterName, a.Date, a.Time, target.Name)
	fx.notify(target.ID, msgTransferDoneNew, a.RequesterName, a.Date, a.Time)
	return nil
}

// checkProviderFree verifies providerID could hold (date, time) for apptID:
// the slot is not taken and no confirmed session sits inside the buffer.
func (s *Service) checkProviderFree(ctx context.Context, tx Tx, providerID uuid.UUID, date, label string, apptID uuid.UUID) error {
	theirs, err := tx.ListActiveByProviderDate(ctx, providerID, date)
	if err != nil {
		return fmt.Errorf("load provider day: %w", err)
	}
	if err := CheckSlotOccupancy(theirs, date, label, apptID); err != nil {
		return err
	}
	return CheckInterval(theirs, date, label, s.cfg.IntervalBuffer, apptID)
}

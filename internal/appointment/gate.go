package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/events"
)

// RequestEntry opens an entry request for a Confirmed appointment on
// behalf of the verifier at the door. The provider is alerted with a
// high-priority change event.
func (s *Service) RequestEntry(ctx context.Context, id uuid.UUID, verifiedBy string) (*Appointment, error) {
	verifiedBy = strings.TrimSpace(verifiedBy)
	if verifiedBy == "" {
		return nil, fmt.Errorf("%w: verifier name is required", ErrInvalidInput)
	}

	return s.mutate(ctx, "gate_request", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if a.Status != StatusConfirmed {
			return fmt.Errorf("%w: status %s", ErrNotConfirmed, a.Status)
		}
		if a.Gate.AwaitingDecision {
			return ErrGateActive
		}
		if a.Gate.Decision != nil && *a.Gate.Decision == EntryAllowed {
			return ErrGateAlreadyAdmitted
		}

		// a denied requester may present again; the old decision is replaced
		v := verifiedBy
		a.Gate = GateState{AwaitingDecision: true, VerifiedBy: &v}

		fx.priority = events.PriorityHigh
		fx.record(EventEntryRequested, map[string]any{"verified_by": verifiedBy})
		fx.notify(a.ProviderID, msgEntryRequested, a.RequesterName, a.Time, verifiedBy)
		return nil
	})
}

// DecideEntry resolves the open entry request. Decisions are only accepted
// once the session is at most GateEarlyWindow away; a second decision on a
// resolved request fails without side effects.
func (s *Service) DecideEntry(ctx context.Context, id uuid.UUID, allowed bool) (*Appointment, error) {
	return s.mutate(ctx, "gate_decide", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		if !a.Gate.AwaitingDecision {
			return ErrGateAlreadyResolved
		}
		if a.Status != StatusConfirmed {
			return fmt.Errorf("%w: status %s", ErrNotConfirmed, a.Status)
		}

		start, err := a.StartsAt(s.cfg.Location)
		if err != nil {
			return err
		}
		if until := start.Sub(s.now()); until > s.cfg.GateEarlyWindow {
			return fmt.Errorf("%w: session starts in %d minutes", ErrEntryTooEarly, int(until/time.Minute))
		}

		decision := EntryDenied
		msg := msgEntryDenied
		if allowed {
			decision = EntryAllowed
			msg = msgEntryAllowed
		}
		a.Gate.AwaitingDecision = false
		a.Gate.Decision = &decision

		fx.record(EventEntryDecided, map[string]any{"decision": string(decision)})
		fx.notify(a.RequesterID, msg, a.Time, a.ProviderName)
		return nil
	})
}

// ScanEntry resolves a presented identity token to the requester's
// Confirmed appointment today whose start lies within window of now, and
// opens an entry request for it. The token is the requester id.
func (s *Service) ScanEntry(ctx context.Context, token string, window time.Duration, verifiedBy string) (*Appointment, error) {
	requesterID, err := uuid.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: unrecognized identity token", ErrInvalidInput)
	}
	if window <= 0 {
		window = s.cfg.GateScanWindow
	}

	now := s.now().In(s.cfg.Location)
	date := now.Format(DateLayout)
	status := StatusConfirmed
	appts, err := s.store.ListAppointments(ctx, ListFilter{
		RequesterID: &requesterID,
		Date:        &date,
		Status:      &status,
		Limit:       100,
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	var (
		best    *Appointment
		bestGap time.Duration
	)
	for i := range appts {
		start, err := appts[i].StartsAt(s.cfg.Location)
		if err != nil {
			continue
		}
		gap := start.Sub(now)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if best == nil || gap < bestGap {
			best, bestGap = &appts[i], gap
		}
	}
	if best == nil {
		s.observe("gate_scan", ErrNoEntryAppointment)
		return nil, ErrNoEntryAppointment
	}

	return s.RequestEntry(ctx, best.ID, verifiedBy)
}

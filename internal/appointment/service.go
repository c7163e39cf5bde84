package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/config"
	"github.com/hackgods/counsel-coordinator/internal/events"
	"github.com/hackgods/counsel-coordinator/internal/metrics"
	redisclient "github.com/hackgods/counsel-coordinator/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"

	EventTransferInitiated = "TRANSFER_INITIATED"
	EventTransferAccepted  = "TRANSFER_ACCEPTED"
	EventTransferDeclined  = "TRANSFER_DECLINED"
	EventTransferRevoked   = "TRANSFER_REVOKED"
	EventTransferFinalized = "TRANSFER_FINALIZED"

	EventRescheduleProposed  = "RESCHEDULE_PROPOSED"
	EventRescheduleAccepted  = "RESCHEDULE_ACCEPTED"
	EventRescheduleDeclined  = "RESCHEDULE_DECLINED"
	EventRescheduleRetracted = "RESCHEDULE_RETRACTED"

	EventEntryRequested = "ENTRY_REQUESTED"
	EventEntryDecided   = "ENTRY_DECIDED"
)

// Notifier delivers a message to a participant's feed. Delivery is
// fire-and-forget: implementations log failures and never block the
// state change that caused them.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, message string)
}

type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, uuid.UUID, string) {}

type Deps struct {
	Store     Store
	Directory Directory
	Locker    redisclient.Locker
	Notifier  Notifier
	Changes   events.Publisher
	Logger    *slog.Logger
}

type Service struct {
	store    Store
	dir      Directory
	locker   redisclient.Locker
	notifier Notifier
	changes  events.Publisher
	logger   *slog.Logger
	cfg      config.Config
	now      func() time.Time
}

func NewService(deps Deps, cfg config.Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TxRetries < 1 {
		cfg.TxRetries = 1
	}
	s := &Service{
		store:    deps.Store,
		dir:      deps.Directory,
		locker:   deps.Locker,
		notifier: deps.Notifier,
		changes:  deps.Changes,
		logger:   deps.Logger,
		cfg:      cfg,
		now:      time.Now,
	}
	if s.notifier == nil {
		s.notifier = discardNotifier{}
	}
	if s.changes == nil {
		s.changes = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// WithClock replaces the wall clock; gate checks read time through it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Location() *time.Location { return s.cfg.Location }

// effects collects what a unit of work wants to tell the outside world.
// It is reset on every retry and dispatched only after commit.
type effects struct {
	event    string
	payload  map[string]any
	notes    []note
	also     []uuid.UUID
	priority events.Priority
}

type note struct {
	to  uuid.UUID
	msg string
}

func (e *effects) record(event string, payload map[string]any) {
	e.event = event
	e.payload = payload
}

func (e *effects) notify(to uuid.UUID, format string, args ...any) {
	e.notes = append(e.notes, note{to: to, msg: fmt.Sprintf(format, args...)})
}

// mutation edits a loaded appointment in place inside a transaction.
// Returning an error rolls back and nothing is dispatched.
type mutation func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error

// mutate loads id, applies fn and writes the row back under its version
// guard, retrying the whole unit on a version conflict.
func (s *Service) mutate(ctx context.Context, op string, id uuid.UUID, fn mutation) (*Appointment, error) {
	var (
		result *Appointment
		fx     effects
	)
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		fx = effects{}
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			a, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if err := fn(ctx, tx, a, &fx); err != nil {
				return err
			}
			a.UpdatedAt = s.now()
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			if err := s.logEvent(ctx, tx, a.ID, fx.event, fx.payload); err != nil {
				return err
			}
			result = a
			return nil
		})
	})
	s.observe(op, err)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, result, &fx)
	return result, nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.TxRetries; attempt++ {
		err = fn(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.TxRetries.WithLabelValues(op).Inc()
		s.logger.Debug("version conflict, retrying", "op", op, "attempt", attempt)
	}
	return err
}

// dispatch runs after commit. The request may already be gone, so it
// detaches from cancellation.
func (s *Service) dispatch(ctx context.Context, a *Appointment, fx *effects) {
	ctx = context.WithoutCancel(ctx)

	for _, n := range fx.notes {
		s.notifier.Notify(ctx, n.to, n.msg)
	}

	recipients := []uuid.UUID{a.RequesterID, a.ProviderID}
	if a.Transfer != nil {
		recipients = append(recipients, a.Transfer.TargetProviderID)
	}
	recipients = uniqueIDs(append(recipients, fx.also...))

	priority := fx.priority
	if priority == "" {
		priority = events.PriorityNormal
	}
	ev := events.ChangeEvent{
		Table:      events.TableAppointments,
		RowID:      a.ID.String(),
		Op:         fx.event,
		Recipients: recipients,
		Priority:   priority,
		At:         s.now(),
	}
	if err := s.changes.Publish(ctx, ev); err != nil {
		metrics.NotifyFailures.Inc()
		s.logger.Warn("publish change event failed", "appointment_id", a.ID, "op", fx.event, "err", err)
	}
}

func (s *Service) observe(op string, err error) {
	metrics.Operations.WithLabelValues(op, Outcome(err)).Inc()
	if err != nil && Outcome(err) == "error" {
		s.logger.Error("operation failed", "op", op, "err", err)
	}
}

// Outcome classifies err into the metric and transport vocabulary.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPrecondition):
		return "precondition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

// logEvent appends to the audit trail inside the same transaction as the
// change it describes.
func (s *Service) logEvent(ctx context.Context, tx Tx, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	if eventType == "" {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	id := appointmentID
	if err := tx.InsertEvent(ctx, EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       data,
		CreatedAt:     s.now(),
	}); err != nil {
		return fmt.Errorf("insert event log %s: %w", eventType, err)
	}
	return nil
}

type CreateRequest struct {
	RequesterID uuid.UUID
	ProviderID  uuid.UUID
	Date        string
	Time        string
	Reason      string
	Description string
}

// CreateAppointment books a Pending appointment on a published slot. A
// Redis lock serializes creators of the same slot; the ledger row version
// and the partial unique indexes catch anyone the lock misses.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*Appointment, error) {
	const op = "create"

	if err := ValidateDate(req.Date); err != nil {
		return nil, err
	}
	label, err := NormalizeTime(req.Time)
	if err != nil {
		return nil, err
	}
	req.Time = label
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	requester, err := s.dir.GetRequester(ctx, req.RequesterID)
	if err != nil {
		s.observe(op, err)
		return nil, err
	}
	provider, err := s.dir.GetProvider(ctx, req.ProviderID)
	if err != nil {
		s.observe(op, err)
		return nil, err
	}

	var (
		created *Appointment
		fx      effects
	)
	key := redisclient.SlotKey{ProviderID: provider.ID, Date: req.Date, Time: req.Time}

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		return s.withRetry(lockCtx, op, func(ctx context.Context) error {
			fx = effects{}
			return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
				mine, err := tx.ListActiveByRequesterDate(ctx, requester.ID, req.Date)
				if err != nil {
					return fmt.Errorf("load requester day: %w", err)
				}
				if err := CheckExactSlot(mine, req.Date, req.Time, uuid.Nil); err != nil {
					return err
				}
				if err := CheckDailyLimit(mine, req.Date, uuid.Nil); err != nil {
					return err
				}

				theirs, err := tx.ListActiveByProviderDate(ctx, provider.ID, req.Date)
				if err != nil {
					return fmt.Errorf("load provider day: %w", err)
				}
				if err := CheckSlotOccupancy(theirs, req.Date, req.Time, uuid.Nil); err != nil {
					return err
				}
				if err := CheckInterval(theirs, req.Date, req.Time, s.cfg.IntervalBuffer, uuid.Nil); err != nil {
					return err
				}

				now := s.now()
				appt := &Appointment{
					ID:               uuid.New(),
					RequesterID:      requester.ID,
					ProviderID:       provider.ID,
					RequesterName:    requester.Name,
					RequesterSection: requester.Section,
					RequesterContact: requester.Contact,
					ProviderName:     provider.Name,
					Date:             req.Date,
					Time:             req.Time,
					Reason:           req.Reason,
					Description:      req.Description,
					Status:           StatusPending,
					CreatedAt:        now,
					UpdatedAt:        now,
				}

				if err := s.bookSlot(ctx, tx, provider.ID, req.Date, req.Time, appt.ID, false); err != nil {
					return err
				}
				if err := tx.InsertAppointment(ctx, appt); err != nil {
					return err
				}

				fx.record(EventAppointmentCreated, map[string]any{
					"requester_id": requester.ID.String(),
					"provider_id":  provider.ID.String(),
					"date":         req.Date,
					"time":         req.Time,
				})
				if err := s.logEvent(ctx, tx, appt.ID, fx.event, fx.payload); err != nil {
					return err
				}
				fx.notify(provider.ID, msgNewRequest, requester.Name, req.Date, req.Time)

				created = appt
				return nil
			})
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		err = ErrSlotBeingBooked
	}
	s.observe(op, err)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, created, &fx)
	return created, nil
}

// Confirm moves Pending to Confirmed. Pending requests do not count toward
// the interval buffer, so two close requests may both exist; whichever is
// confirmed second fails with ErrIntervalViolation.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, "confirm", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		pending := a.Transfer
		if err := a.transition(StatusConfirmed); err != nil {
			return err
		}
		theirs, err := tx.ListActiveByProviderDate(ctx, a.ProviderID, a.Date)
		if err != nil {
			return fmt.Errorf("load provider day: %w", err)
		}
		if err := CheckInterval(theirs, a.Date, a.Time, s.cfg.IntervalBuffer, a.ID); err != nil {
			return err
		}
		if err := s.bookSlot(ctx, tx, a.ProviderID, a.Date, a.Time, a.ID, true); err != nil {
			return err
		}

		fx.record(EventAppointmentConfirmed, nil)
		fx.notify(a.RequesterID, msgConfirmed, a.ProviderName, a.Date, a.Time)
		if pending != nil {
			fx.also = append(fx.also, pending.TargetProviderID)
			fx.notify(pending.TargetProviderID, msgTransferWithdrawn, a.RequesterName, a.Date, a.Time)
		}
		return nil
	})
}

// Cancel ends an active appointment and frees its slot. Any open transfer,
// reschedule or gate request dies with it.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, "cancel", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		pending := a.Transfer
		if err := a.transition(StatusCancelled); err != nil {
			return err
		}
		if err := s.freeSlot(ctx, tx, a.ProviderID, a.Date, a.Time, a.ID); err != nil {
			return err
		}

		fx.record(EventAppointmentCancelled, nil)
		fx.notify(a.RequesterID, msgCancelled, a.ProviderName, a.Date, a.Time)
		if pending != nil {
			fx.also = append(fx.also, pending.TargetProviderID)
			fx.notify(pending.TargetProviderID, msgTransferWithdrawn, a.RequesterName, a.Date, a.Time)
		}
		return nil
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.mutate(ctx, "complete", id, func(ctx context.Context, tx Tx, a *Appointment, fx *effects) error {
		pending := a.Transfer
		if err := a.transition(StatusCompleted); err != nil {
			return err
		}
		if err := s.freeSlot(ctx, tx, a.ProviderID, a.Date, a.Time, a.ID); err != nil {
			return err
		}

		fx.record(EventAppointmentCompleted, nil)
		fx.notify(a.RequesterID, msgCompleted, a.ProviderName, a.Date)
		if pending != nil {
			fx.also = append(fx.also, pending.TargetProviderID)
			fx.notify(pending.TargetProviderID, msgTransferWithdrawn, a.RequesterName, a.Date, a.Time)
		}
		return nil
	})
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.GetAppointment(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Date != nil {
		if err := ValidateDate(*f.Date); err != nil {
			return nil, err
		}
	}

	appts, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (s *Service) ListProviders(ctx context.Context) ([]Provider, error) {
	return s.dir.ListProviders(ctx)
}

// bookSlot marks the ledger slot for apptID. ensure adds the entry if the
// time was never published.
func (s *Service) bookSlot(ctx context.Context, tx Tx, providerID uuid.UUID, date, label string, apptID uuid.UUID, ensure bool) error {
	day, err := tx.GetLedgerDay(ctx, providerID, date)
	switch {
	case errors.Is(err, ErrLedgerNotFound):
		if !ensure {
			return fmt.Errorf("%w: %s %s", ErrSlotNotPublished, date, label)
		}
		day = &LedgerDay{ProviderID: providerID, Date: date}
	case err != nil:
		return fmt.Errorf("load ledger: %w", err)
	}

	changed, err := day.Book(label, apptID, ensure)
	if err != nil || !changed {
		return err
	}
	day.UpdatedAt = s.now()
	return tx.SaveLedgerDay(ctx, day)
}

// freeSlot releases the ledger slot held by apptID. A missing ledger or a
// slot already free is fine; reconciliation owns deeper repairs.
func (s *Service) freeSlot(ctx context.Context, tx Tx, providerID uuid.UUID, date, label string, apptID uuid.UUID) error {
	day, err := tx.GetLedgerDay(ctx, providerID, date)
	if errors.Is(err, ErrLedgerNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if !day.Free(label, apptID) {
		return nil
	}
	day.UpdatedAt = s.now()
	return tx.SaveLedgerDay(ctx, day)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

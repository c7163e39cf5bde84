package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/events"
	"github.com/hackgods/counsel-coordinator/internal/metrics"
)

// PublishAvailability merges times into the provider's ledger for date.
// Booked slots are never withdrawn.
func (s *Service) PublishAvailability(ctx context.Context, providerID uuid.UUID, date string, times []string) (*LedgerDay, error) {
	const op = "publish_availability"

	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetProvider(ctx, providerID); err != nil {
		s.observe(op, err)
		return nil, err
	}

	var saved *LedgerDay
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			day, err := tx.GetLedgerDay(ctx, providerID, date)
			switch {
			case errors.Is(err, ErrLedgerNotFound):
				day = &LedgerDay{ProviderID: providerID, Date: date}
			case err != nil:
				return fmt.Errorf("load ledger: %w", err)
			}

			if err := day.Merge(times); err != nil {
				return err
			}
			day.UpdatedAt = s.now()
			if err := tx.SaveLedgerDay(ctx, day); err != nil {
				return err
			}
			saved = day
			return nil
		})
	})
	s.observe(op, err)
	if err != nil {
		return nil, err
	}

	s.publishLedger(ctx, saved, "published")
	return saved, nil
}

func (s *Service) Availability(ctx context.Context, providerID uuid.UUID, date string) (*LedgerDay, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	return s.store.GetLedgerDay(ctx, providerID, date)
}

// IsBooked answers from the ledger cache. An unpublished day has nothing
// booked.
func (s *Service) IsBooked(ctx context.Context, providerID uuid.UUID, date, timeLabel string) (bool, error) {
	day, err := s.Availability(ctx, providerID, date)
	if errors.Is(err, ErrLedgerNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return day.IsBooked(timeLabel), nil
}

// ReconcileLedger rebuilds one ledger day's booked flags from the live
// appointments and returns how many slots were corrected.
func (s *Service) ReconcileLedger(ctx context.Context, providerID uuid.UUID, date string) (int, error) {
	const op = "reconcile"

	var (
		fixed int
		day   *LedgerDay
	)
	err := s.withRetry(ctx, op, func(ctx context.Context) error {
		fixed = 0
		return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			d, err := tx.GetLedgerDay(ctx, providerID, date)
			if err != nil {
				return err
			}
			active, err := tx.ListActiveByProviderDate(ctx, providerID, date)
			if err != nil {
				return fmt.Errorf("load provider day: %w", err)
			}

			fixed = d.Reconcile(active)
			if fixed == 0 {
				return nil
			}
			d.UpdatedAt = s.now()
			if err := tx.SaveLedgerDay(ctx, d); err != nil {
				return err
			}
			day = d
			return nil
		})
	})
	s.observe(op, err)
	if err != nil {
		return 0, err
	}

	if fixed > 0 {
		metrics.LedgerDrift.Add(float64(fixed))
		s.logger.Warn("ledger drift corrected", "provider_id", providerID, "date", date, "slots", fixed)
		s.publishLedger(ctx, day, "reconciled")
	}
	return fixed, nil
}

type ReconcileReport struct {
	Days      int
	Corrected int
	Failed    int
}

// ReconcileAll walks every ledger day from fromDate on. A failing day is
// logged and skipped; the joined errors are returned with the report.
func (s *Service) ReconcileAll(ctx context.Context, fromDate string) (ReconcileReport, error) {
	var report ReconcileReport

	if err := ValidateDate(fromDate); err != nil {
		return report, err
	}
	keys, err := s.store.ListLedgerDays(ctx, fromDate)
	if err != nil {
		return report, fmt.Errorf("list ledger days: %w", err)
	}

	var errs []error
	for _, k := range keys {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := s.ReconcileLedger(ctx, k.ProviderID, k.Date)
		report.Days++
		if err != nil {
			report.Failed++
			s.logger.Error("reconcile ledger day failed", "provider_id", k.ProviderID, "date", k.Date, "err", err)
			errs = append(errs, fmt.Errorf("%s %s: %w", k.ProviderID, k.Date, err))
			continue
		}
		report.Corrected += n
	}
	return report, errors.Join(errs...)
}

func (s *Service) publishLedger(ctx context.Context, day *LedgerDay, op string) {
	ev := events.ChangeEvent{
		Table:      events.TableSlotLedgers,
		RowID:      day.ProviderID.String() + "/" + day.Date,
		Op:         op,
		Recipients: []uuid.UUID{day.ProviderID},
		Priority:   events.PriorityNormal,
		At:         s.now(),
	}
	if err := s.changes.Publish(context.WithoutCancel(ctx), ev); err != nil {
		metrics.NotifyFailures.Inc()
		s.logger.Warn("publish ledger change failed", "provider_id", day.ProviderID, "date", day.Date, "err", err)
	}
}

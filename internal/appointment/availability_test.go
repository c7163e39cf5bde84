package appointment_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/events"
)

func TestPublishAvailability(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.alice, f.provider, day, "10:00")

	d, err := f.Service.PublishAvailability(f.ctx, f.provider.ID, day, []string{"08:00", "09:00"})
	require.NoError(t, err)

	var times []string
	for _, s := range d.Slots {
		times = append(times, s.Time)
	}
	assert.Equal(t, []string{"08:00", "09:00", "10:00"}, times, "booked 10:00 survives withdrawal")

	ev, ok := f.Publisher.Last()
	require.True(t, ok)
	assert.Equal(t, events.TableSlotLedgers, ev.Table)

	_, err = f.Service.PublishAvailability(f.ctx, uuid.New(), day, []string{"08:00"})
	assert.ErrorIs(t, err, appointment.ErrProviderNotFound)

	_, err = f.Service.PublishAvailability(f.ctx, f.provider.ID, day, []string{"8"})
	assert.ErrorIs(t, err, appointment.ErrInvalidInput)
}

func TestAvailability_NotPublished(t *testing.T) {
	f := newFixture(t)

	_, err := f.Service.Availability(f.ctx, f.provider.ID, "2031-01-01")
	assert.ErrorIs(t, err, appointment.ErrLedgerNotFound)

	booked, err := f.Service.IsBooked(f.ctx, f.provider.ID, "2031-01-01", "09:00")
	require.NoError(t, err)
	assert.False(t, booked)
}

func TestReconcileLedger_RepairsDrift(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "09:00")

	d, err := f.Service.Availability(f.ctx, f.provider.ID, day)
	require.NoError(t, err)
	d.Free("09:00", a.ID)
	_, err = d.Book("13:00", uuid.New(), false)
	require.NoError(t, err)
	f.Store.PutLedgerDay(d)

	n, err := f.Service.ReconcileLedger(f.ctx, f.provider.ID, day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, f.booked(t, f.provider, day, "09:00"))
	assert.False(t, f.booked(t, f.provider, day, "13:00"))

	n, err = f.Service.ReconcileLedger(f.ctx, f.provider.ID, day)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.other, day, "11:00")

	d, err := f.Service.Availability(f.ctx, f.other.ID, day)
	require.NoError(t, err)
	d.Free("11:00", a.ID)
	f.Store.PutLedgerDay(d)

	report, err := f.Service.ReconcileAll(f.ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Days)
	assert.Equal(t, 1, report.Corrected)
	assert.Zero(t, report.Failed)

	report, err = f.Service.ReconcileAll(f.ctx, "2030-03-05")
	require.NoError(t, err)
	assert.Zero(t, report.Days)
}

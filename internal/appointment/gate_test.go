package appointment_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/events"
)

func TestRequestEntry(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "10:00")

	_, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	assert.ErrorIs(t, err, appointment.ErrNotConfirmed)

	_, err = f.Service.Confirm(f.ctx, a.ID)
	require.NoError(t, err)

	_, err = f.Service.RequestEntry(f.ctx, a.ID, "  ")
	assert.ErrorIs(t, err, appointment.ErrInvalidInput)

	f.Notifier.Reset()
	got, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	require.NoError(t, err)
	assert.True(t, got.Gate.AwaitingDecision)
	require.NotNil(t, got.Gate.VerifiedBy)
	assert.Equal(t, "front desk", *got.Gate.VerifiedBy)
	assert.Nil(t, got.Gate.Decision)
	assert.Len(t, f.Notifier.For(f.provider.ID), 1)

	ev, ok := f.Publisher.Last()
	require.True(t, ok)
	assert.Equal(t, events.PriorityHigh, ev.Priority)
	assert.Contains(t, ev.Recipients, f.provider.ID)

	_, err = f.Service.RequestEntry(f.ctx, a.ID, "side door")
	assert.ErrorIs(t, err, appointment.ErrGateActive)
}

func TestDecideEntry_Window(t *testing.T) {
	cases := []struct {
		name  string
		now   string
		early bool
	}{
		{"two hours before", "08:00", true},
		{"sixteen minutes before", "09:44", true},
		{"exactly fifteen minutes before", "09:45", false},
		{"five minutes before", "09:55", false},
		{"after the start", "10:30", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			a := f.bookConfirmed(t, f.alice, f.provider, day, "10:00")
			_, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
			require.NoError(t, err)

			f.SetTime(day, tc.now)
			for _, allow := range []bool{true, false} {
				got, err := f.Service.DecideEntry(f.ctx, a.ID, allow)
				if tc.early {
					assert.ErrorIs(t, err, appointment.ErrEntryTooEarly)
					assert.True(t, f.reload(t, a).Gate.AwaitingDecision)
					continue
				}
				require.NoError(t, err)
				require.NotNil(t, got.Gate.Decision)
				assert.Equal(t, appointment.EntryAllowed, *got.Gate.Decision)
				break
			}
		})
	}
}

func TestDecideEntry_Idempotent(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "10:00")
	f.SetTime(day, "09:50")

	_, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	require.NoError(t, err)
	first, err := f.Service.DecideEntry(f.ctx, a.ID, true)
	require.NoError(t, err)

	sent := len(f.Notifier.Sent())
	published := len(f.Publisher.Events())

	_, err = f.Service.DecideEntry(f.ctx, a.ID, false)
	assert.ErrorIs(t, err, appointment.ErrGateAlreadyResolved)

	after := f.reload(t, a)
	assert.Equal(t, first.Version, after.Version)
	assert.Equal(t, appointment.EntryAllowed, *after.Gate.Decision)
	assert.Len(t, f.Notifier.Sent(), sent)
	assert.Len(t, f.Publisher.Events(), published)

	_, err = f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	assert.ErrorIs(t, err, appointment.ErrGateAlreadyAdmitted)
}

func TestRequestEntry_AfterDenial(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "10:00")
	f.SetTime(day, "09:50")

	_, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	require.NoError(t, err)
	_, err = f.Service.DecideEntry(f.ctx, a.ID, false)
	require.NoError(t, err)

	got, err := f.Service.RequestEntry(f.ctx, a.ID, "side door")
	require.NoError(t, err)
	assert.True(t, got.Gate.AwaitingDecision)
	assert.Nil(t, got.Gate.Decision)
}

func TestComplete_KeepsGateHistory(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "10:00")
	f.SetTime(day, "09:50")

	_, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	require.NoError(t, err)
	_, err = f.Service.DecideEntry(f.ctx, a.ID, true)
	require.NoError(t, err)

	got, err := f.Service.Complete(f.ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Gate.AwaitingDecision)
	assert.Equal(t, appointment.EntryAllowed, *got.Gate.Decision)
}

func TestCancel_ClearsOpenGate(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "10:00")
	_, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	require.NoError(t, err)

	got, err := f.Service.Cancel(f.ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Gate.AwaitingDecision)

	_, err = f.Service.DecideEntry(f.ctx, a.ID, true)
	assert.ErrorIs(t, err, appointment.ErrGateAlreadyResolved)
}

func TestScanEntry(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "10:00")
	f.book(t, f.bob, f.provider, day, "13:00")
	f.SetTime(day, "09:40")

	got, err := f.Service.ScanEntry(f.ctx, f.alice.ID.String(), 0, "front desk")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.True(t, got.Gate.AwaitingDecision)

	_, err = f.Service.ScanEntry(f.ctx, "not-a-token", 0, "front desk")
	assert.ErrorIs(t, err, appointment.ErrInvalidInput)

	// pending appointments are not admitted
	_, err = f.Service.ScanEntry(f.ctx, f.bob.ID.String(), 0, "front desk")
	assert.ErrorIs(t, err, appointment.ErrNoEntryAppointment)

	_, err = f.Service.ScanEntry(f.ctx, uuid.NewString(), 0, "front desk")
	assert.ErrorIs(t, err, appointment.ErrNoEntryAppointment)
}

func TestScanEntry_OutsideWindow(t *testing.T) {
	f := newFixture(t)
	f.bookConfirmed(t, f.alice, f.provider, day, "15:00")
	f.SetTime(day, "09:00")

	_, err := f.Service.ScanEntry(f.ctx, f.alice.ID.String(), 30*time.Minute, "front desk")
	assert.ErrorIs(t, err, appointment.ErrNoEntryAppointment)

	f.SetTime(day, "14:40")
	_, err = f.Service.ScanEntry(f.ctx, f.alice.ID.String(), 30*time.Minute, "front desk")
	assert.NoError(t, err)
}

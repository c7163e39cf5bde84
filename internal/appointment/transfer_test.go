package appointment_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

func TestTransfer_BothAccept(t *testing.T) {
	for _, order := range []string{"target first", "requester first"} {
		t.Run(order, func(t *testing.T) {
			f := newFixture(t)
			a := f.book(t, f.alice, f.provider, day, "11:00")

			got, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
			require.NoError(t, err)
			require.NotNil(t, got.Transfer)
			assert.Equal(t, f.other.ID, got.Transfer.TargetProviderID)
			assert.Len(t, f.Notifier.For(f.other.ID), 1)

			first, second := f.Service.RespondTransferAsTarget, f.Service.RespondTransferAsRequester
			if order == "requester first" {
				first, second = second, first
			}

			got, err = first(f.ctx, a.ID, true)
			require.NoError(t, err)
			require.NotNil(t, got.Transfer, "one consent is not enough")
			assert.Equal(t, f.provider.ID, got.ProviderID)

			got, err = second(f.ctx, a.ID, true)
			require.NoError(t, err)
			assert.Nil(t, got.Transfer)
			assert.Equal(t, f.other.ID, got.ProviderID)
			assert.Equal(t, f.other.Name, got.ProviderName)
			assert.Equal(t, appointment.StatusConfirmed, got.Status)

			assert.False(t, f.booked(t, f.provider, day, "11:00"), "old slot freed")
			assert.True(t, f.booked(t, f.other, day, "11:00"), "new slot booked")
			assert.Contains(t, f.Store.EventTypes(a.ID), appointment.EventTransferFinalized)

			ev, ok := f.Publisher.Last()
			require.True(t, ok)
			assert.ElementsMatch(t, []uuid.UUID{f.alice.ID, f.other.ID, f.provider.ID}, ev.Recipients)
		})
	}
}

func TestTransfer_Decline(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "11:00")

	_, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.NoError(t, err)
	_, err = f.Service.RespondTransferAsRequester(f.ctx, a.ID, true)
	require.NoError(t, err)

	got, err := f.Service.RespondTransferAsTarget(f.ctx, a.ID, false)
	require.NoError(t, err)
	assert.Nil(t, got.Transfer)
	assert.Equal(t, f.provider.ID, got.ProviderID)
	assert.Equal(t, appointment.StatusPending, got.Status)
	assert.True(t, f.booked(t, f.provider, day, "11:00"))
	assert.False(t, f.booked(t, f.other, day, "11:00"))

	_, err = f.Service.RespondTransferAsRequester(f.ctx, a.ID, true)
	assert.ErrorIs(t, err, appointment.ErrNoTransfer)
}

func TestTransfer_Revoke(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "11:00")

	_, err := f.Service.RevokeTransfer(f.ctx, a.ID)
	assert.ErrorIs(t, err, appointment.ErrNoTransfer)

	_, err = f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.NoError(t, err)

	got, err := f.Service.RevokeTransfer(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Transfer)
	assert.NotEmpty(t, f.Notifier.For(f.other.ID))
}

func TestTransfer_InitiateRejections(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "11:00")

	_, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.provider.ID)
	assert.ErrorIs(t, err, appointment.ErrSameProvider)

	_, err = f.Service.InitiateTransfer(f.ctx, a.ID, uuid.New())
	assert.ErrorIs(t, err, appointment.ErrProviderNotFound)

	// target already holds 11:00
	f.book(t, f.bob, f.other, day, "11:00")
	_, err = f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	assert.ErrorIs(t, err, appointment.ErrSlotTaken)

	third := f.Store.AddProvider("Dr. Haas")
	_, err = f.Service.InitiateTransfer(f.ctx, a.ID, third.ID)
	require.NoError(t, err)
	_, err = f.Service.InitiateTransfer(f.ctx, a.ID, third.ID)
	assert.ErrorIs(t, err, appointment.ErrTransferActive)

	done := f.book(t, f.carol, f.provider, day, "15:00")
	_, err = f.Service.Cancel(f.ctx, done.ID)
	require.NoError(t, err)
	_, err = f.Service.InitiateTransfer(f.ctx, done.ID, f.other.ID)
	assert.ErrorIs(t, err, appointment.ErrNotActive)
}

// Provider A holds a confirmed 09:00; B holds a confirmed 09:30. Moving the
// 09:00 to B would put two sessions 30 minutes apart.
func TestTransfer_IntervalScenario(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "09:00")
	f.bookConfirmed(t, f.bob, f.other, day, "09:30")

	_, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.ErrorIs(t, err, appointment.ErrIntervalViolation)

	var ic *appointment.IntervalConflict
	require.ErrorAs(t, err, &ic)
	assert.Equal(t, 30, ic.GapMinutes)
	assert.Nil(t, f.reload(t, a).Transfer)
}

func TestTransfer_ClearsOpenGateRequest(t *testing.T) {
	f := newFixture(t)
	a := f.bookConfirmed(t, f.alice, f.provider, day, "11:00")

	got, err := f.Service.RequestEntry(f.ctx, a.ID, "front desk")
	require.NoError(t, err)
	require.True(t, got.Gate.AwaitingDecision)

	_, err = f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.NoError(t, err)
	_, err = f.Service.RespondTransferAsTarget(f.ctx, a.ID, true)
	require.NoError(t, err)
	got, err = f.Service.RespondTransferAsRequester(f.ctx, a.ID, true)
	require.NoError(t, err)

	assert.Equal(t, f.other.ID, got.ProviderID)
	assert.Equal(t, appointment.StatusConfirmed, got.Status)
	assert.False(t, got.Gate.AwaitingDecision)
	assert.Nil(t, got.Gate.VerifiedBy)
	assert.Nil(t, got.Gate.Decision)

	_, err = f.Service.DecideEntry(f.ctx, a.ID, true)
	assert.ErrorIs(t, err, appointment.ErrGateAlreadyResolved)
}

func TestTransfer_FinalizeRechecksTarget(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "11:00")

	_, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.NoError(t, err)
	_, err = f.Service.RespondTransferAsTarget(f.ctx, a.ID, true)
	require.NoError(t, err)

	// the target's 10:00 gets confirmed while the requester deliberates
	f.bookConfirmed(t, f.bob, f.other, day, "10:00")

	_, err = f.Service.RespondTransferAsRequester(f.ctx, a.ID, true)
	assert.ErrorIs(t, err, appointment.ErrIntervalViolation)

	got := f.reload(t, a)
	require.NotNil(t, got.Transfer, "failed finalize keeps the transfer open")
	assert.False(t, got.Transfer.RequesterAccepted)
	assert.Equal(t, f.provider.ID, got.ProviderID)
	assert.True(t, f.booked(t, f.provider, day, "11:00"))
}

func TestTransfer_UnpublishedTargetTime(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "15:00")

	_, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.NoError(t, err)
	_, err = f.Service.RespondTransferAsTarget(f.ctx, a.ID, true)
	require.NoError(t, err)
	_, err = f.Service.RespondTransferAsRequester(f.ctx, a.ID, true)
	require.NoError(t, err)

	assert.True(t, f.booked(t, f.other, day, "15:00"))
}

func TestTransfer_CancelledWhileOpen(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.alice, f.provider, day, "11:00")
	_, err := f.Service.InitiateTransfer(f.ctx, a.ID, f.other.ID)
	require.NoError(t, err)
	f.Notifier.Reset()

	got, err := f.Service.Cancel(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Transfer)
	assert.Len(t, f.Notifier.For(f.other.ID), 1)

	_, err = f.Service.RespondTransferAsTarget(f.ctx, a.ID, true)
	assert.ErrorIs(t, err, appointment.ErrNoTransfer)
}

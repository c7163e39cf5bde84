package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusPending, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusCancelled, StatusPending, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCompleted, StatusConfirmed, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to))
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)

	_, err = ParseStatus("expired")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransition_ClearsSubStates(t *testing.T) {
	verifier := "guard"
	allowed := EntryAllowed

	t.Run("confirm clears gate and transfer, keeps reschedule", func(t *testing.T) {
		a := &Appointment{
			Status:     StatusPending,
			Transfer:   &TransferState{TargetProviderID: uuid.New()},
			Reschedule: &RescheduleProposal{Date: "2030-01-02", Time: "10:00"},
		}
		require.NoError(t, a.transition(StatusConfirmed))
		assert.Nil(t, a.Transfer)
		assert.NotNil(t, a.Reschedule)
		assert.False(t, a.Gate.AwaitingDecision)
	})

	t.Run("cancel clears everything", func(t *testing.T) {
		a := &Appointment{
			Status:     StatusConfirmed,
			Gate:       GateState{AwaitingDecision: true, VerifiedBy: &verifier},
			Transfer:   &TransferState{TargetProviderID: uuid.New()},
			Reschedule: &RescheduleProposal{Date: "2030-01-02", Time: "10:00"},
		}
		require.NoError(t, a.transition(StatusCancelled))
		assert.Equal(t, GateState{}, a.Gate)
		assert.Nil(t, a.Transfer)
		assert.Nil(t, a.Reschedule)
	})

	t.Run("complete keeps the entry decision", func(t *testing.T) {
		a := &Appointment{
			Status: StatusConfirmed,
			Gate:   GateState{VerifiedBy: &verifier, Decision: &allowed},
		}
		require.NoError(t, a.transition(StatusCompleted))
		assert.False(t, a.Gate.AwaitingDecision)
		require.NotNil(t, a.Gate.Decision)
		assert.Equal(t, EntryAllowed, *a.Gate.Decision)
	})

	t.Run("invalid edge leaves the row alone", func(t *testing.T) {
		a := &Appointment{Status: StatusCancelled}
		err := a.transition(StatusConfirmed)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
		assert.ErrorIs(t, err, ErrPrecondition)
		assert.Equal(t, StatusCancelled, a.Status)
	})
}

func TestEnsureConfirmed(t *testing.T) {
	a := &Appointment{Status: StatusConfirmed, Reschedule: &RescheduleProposal{}}
	require.NoError(t, a.ensureConfirmed())
	assert.Equal(t, StatusConfirmed, a.Status)

	b := &Appointment{Status: StatusPending}
	require.NoError(t, b.ensureConfirmed())
	assert.Equal(t, StatusConfirmed, b.Status)

	c := &Appointment{Status: StatusCompleted}
	assert.ErrorIs(t, c.ensureConfirmed(), ErrInvalidStatusTransition)
}

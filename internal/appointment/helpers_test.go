package appointment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/appointment/appointmenttest"
)

const day = appointmenttest.Day

type fixture struct {
	*appointmenttest.Env

	ctx      context.Context
	provider appointment.Provider
	other    appointment.Provider
	alice    appointment.Requester
	bob      appointment.Requester
	carol    appointment.Requester
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	env := appointmenttest.NewEnv()
	f := &fixture{Env: env, ctx: context.Background()}
	f.provider = env.Store.AddProvider("Dr. Rivera")
	f.other = env.Store.AddProvider("Dr. Okafor")
	f.alice = env.Store.AddRequester("Alice Moreau", "10-A")
	f.bob = env.Store.AddRequester("Bob Tanaka", "11-B")
	f.carol = env.Store.AddRequester("Carol Diaz", "12-C")

	env.Publish(f.ctx, f.provider.ID, day, "09:00", "10:00", "10:20", "11:00", "13:00", "15:00")
	env.Publish(f.ctx, f.other.ID, day, "09:00", "09:30", "10:00", "11:00", "13:00")
	return f
}

func (f *fixture) book(t *testing.T, r appointment.Requester, p appointment.Provider, date, label string) *appointment.Appointment {
	t.Helper()
	a, err := f.Service.CreateAppointment(f.ctx, appointment.CreateRequest{
		RequesterID: r.ID,
		ProviderID:  p.ID,
		Date:        date,
		Time:        label,
		Reason:      "study stress",
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) bookConfirmed(t *testing.T, r appointment.Requester, p appointment.Provider, date, label string) *appointment.Appointment {
	t.Helper()
	a := f.book(t, r, p, date, label)
	a, err := f.Service.Confirm(f.ctx, a.ID)
	require.NoError(t, err)
	return a
}

func (f *fixture) booked(t *testing.T, p appointment.Provider, date, label string) bool {
	t.Helper()
	ok, err := f.Service.IsBooked(f.ctx, p.ID, date, label)
	require.NoError(t, err)
	return ok
}

func (f *fixture) reload(t *testing.T, a *appointment.Appointment) *appointment.Appointment {
	t.Helper()
	got, err := f.Service.GetAppointment(f.ctx, a.ID)
	require.NoError(t, err)
	return got
}

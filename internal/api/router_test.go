package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/counsel-coordinator/internal/api"
	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/appointment/appointmenttest"
	"github.com/hackgods/counsel-coordinator/internal/logs"
	"github.com/hackgods/counsel-coordinator/internal/notify"
)

const day = appointmenttest.Day

type harness struct {
	env      *appointmenttest.Env
	sink     *notify.Sink
	handler  http.Handler
	provider appointment.Provider
	other    appointment.Provider
	alice    appointment.Requester
	bob      appointment.Requester
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	env := appointmenttest.NewEnv()
	h := &harness{env: env}
	h.sink = notify.NewSink(env.Store, env.Publisher, logs.Discard())
	h.provider = env.Store.AddProvider("Dr. Rivera")
	h.other = env.Store.AddProvider("Dr. Okafor")
	h.alice = env.Store.AddRequester("Alice Moreau", "10-A")
	h.bob = env.Store.AddRequester("Bob Tanaka", "11-B")

	ctx := context.Background()
	env.Publish(ctx, h.provider.ID, day, "09:00", "10:00", "13:00")
	env.Publish(ctx, h.other.ID, day, "10:00", "13:00")

	h.handler = api.NewRouter(api.RouterConfig{
		Service:       env.Service,
		Notifications: h.sink,
		Health:        api.NewHealthHandler(nil, nil, "test", "v0"),
		Logger:        logs.Discard(),
		PollInterval:  time.Hour,
	})
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) create(t *testing.T, r appointment.Requester, p appointment.Provider, label string) api.AppointmentResponse {
	t.Helper()

	rec := h.do(t, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		RequesterID: r.ID.String(),
		ProviderID:  p.ID.String(),
		Date:        day,
		Time:        label,
		Reason:      "exam anxiety",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[api.AppointmentResponse](t, rec)
}

func consent(accept bool) api.ConsentRequest {
	return api.ConsentRequest{Accept: &accept}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateAndFetchAppointment(t *testing.T) {
	h := newHarness(t)

	created := h.create(t, h.alice, h.provider, "10:00")
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, "Dr. Rivera", created.ProviderName)

	rec := h.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[api.AppointmentResponse](t, rec).ID)

	rec = h.do(t, http.MethodGet, "/appointments?requester_id="+h.alice.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AppointmentResponse](t, rec), 1)
}

func TestCreateConflictReturnsCode(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.alice, h.provider, "10:00")

	rec := h.do(t, http.MethodPost, "/appointments", api.CreateAppointmentRequest{
		RequesterID: h.bob.ID.String(),
		ProviderID:  h.provider.ID.String(),
		Date:        day,
		Time:        "10:00",
		Reason:      "sleep",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_already_booked", decode[api.ErrorResponse](t, rec).Error)
}

func TestErrorStatuses(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad uuid", http.MethodGet, "/appointments/not-a-uuid", nil, http.StatusBadRequest, "invalid_id"},
		{"unknown appointment", http.MethodGet, "/appointments/" + uuid.NewString(), nil, http.StatusNotFound, "appointment_not_found"},
		{"bad status filter", http.MethodGet, "/appointments?status=lost", nil, http.StatusBadRequest, "invalid_input"},
		{"unknown provider", http.MethodPost, "/appointments", api.CreateAppointmentRequest{
			RequesterID: h.alice.ID.String(), ProviderID: uuid.NewString(), Date: day, Time: "10:00", Reason: "x",
		}, http.StatusNotFound, "provider_not_found"},
		{"confirm missing", http.MethodPost, "/appointments/" + uuid.NewString() + "/confirm", nil, http.StatusNotFound, "appointment_not_found"},
		{"bad decision", http.MethodPost, "/appointments/" + uuid.NewString() + "/gate/decision", api.EntryDecisionRequest{Decision: "maybe"}, http.StatusBadRequest, "invalid_decision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.alice, h.provider, "10:00")
	base := "/appointments/" + a.ID.String()

	rec := h.do(t, http.MethodPost, base+"/confirm", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "confirmed", decode[api.AppointmentResponse](t, rec).Status)

	rec = h.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decode[api.AppointmentResponse](t, rec).Status)

	rec = h.do(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[api.ErrorResponse](t, rec).Error)
}

func TestEntryDecisionTooEarly(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.alice, h.provider, "10:00")
	base := "/appointments/" + a.ID.String()
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, base+"/confirm", nil).Code)

	rec := h.do(t, http.MethodPost, base+"/gate/request", api.EntryRequest{VerifiedBy: "front desk"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[api.AppointmentResponse](t, rec).Gate.AwaitingDecision)

	rec = h.do(t, http.MethodPost, base+"/gate/decision", api.EntryDecisionRequest{Decision: "allow"})
	require.Equal(t, http.StatusTooEarly, rec.Code)
	assert.Equal(t, "entry_too_early", decode[api.ErrorResponse](t, rec).Error)

	h.env.SetTime(day, "09:50")
	rec = h.do(t, http.MethodPost, base+"/gate/decision", api.EntryDecisionRequest{Decision: "allow"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.AppointmentResponse](t, rec)
	require.NotNil(t, got.Gate.Decision)
	assert.Equal(t, "allowed", *got.Gate.Decision)
}

func TestGateScan(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.alice, h.provider, "10:00")
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/appointments/"+a.ID.String()+"/confirm", nil).Code)
	h.env.SetTime(day, "09:40")

	rec := h.do(t, http.MethodPost, "/gate/scan", api.ScanRequest{Token: h.alice.ID.String(), VerifiedBy: "front desk"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, a.ID, decode[api.AppointmentResponse](t, rec).ID)

	rec = h.do(t, http.MethodPost, "/gate/scan", api.ScanRequest{Token: h.bob.ID.String(), VerifiedBy: "front desk"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_entry_appointment", decode[api.ErrorResponse](t, rec).Error)
}

func TestTransferFlow(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.alice, h.provider, "10:00")
	base := "/appointments/" + a.ID.String()

	rec := h.do(t, http.MethodPost, base+"/transfer", api.TransferRequest{TargetProviderID: h.other.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[api.AppointmentResponse](t, rec).Transfer)

	rec = h.do(t, http.MethodPost, base+"/transfer/target-response", consent(true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, h.provider.ID, decode[api.AppointmentResponse](t, rec).ProviderID)

	rec = h.do(t, http.MethodPost, base+"/transfer/requester-response", consent(true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, h.other.ID, got.ProviderID)
	assert.Equal(t, "confirmed", got.Status)
	assert.Nil(t, got.Transfer)

	rec = h.do(t, http.MethodDelete, base+"/transfer", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "no_transfer", decode[api.ErrorResponse](t, rec).Error)
}

func TestRescheduleDeclineCancels(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.alice, h.provider, "10:00")
	base := "/appointments/" + a.ID.String()

	rec := h.do(t, http.MethodPost, base+"/reschedule", api.RescheduleRequest{Date: day, Time: "13:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decode[api.AppointmentResponse](t, rec).Reschedule)

	rec = h.do(t, http.MethodPost, base+"/reschedule/response", consent(false))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[api.AppointmentResponse](t, rec).Status)
}

func TestConsentRequiresAccept(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, h.alice, h.provider, "10:00")
	base := "/appointments/" + a.ID.String()

	rec := h.do(t, http.MethodPost, base+"/reschedule", api.RescheduleRequest{Date: day, Time: "13:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, body := range []any{map[string]bool{"accepted": true}, map[string]any{}} {
		rec = h.do(t, http.MethodPost, base+"/reschedule/response", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_accept", decode[api.ErrorResponse](t, rec).Error)
	}

	rec = h.do(t, http.MethodPost, base+"/transfer/target-response", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.AppointmentResponse](t, rec)
	assert.Equal(t, "pending", got.Status)
	require.NotNil(t, got.Reschedule)
}

func TestAvailabilityEndpoints(t *testing.T) {
	h := newHarness(t)
	path := "/providers/" + h.provider.ID.String() + "/availability/2030-03-05"

	rec := h.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPut, path, api.AvailabilityRequest{Times: []string{"14:00", "09:00"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ledger := decode[api.LedgerResponse](t, rec)
	require.Len(t, ledger.Slots, 2)
	assert.Equal(t, "09:00", ledger.Slots[0].Time)
	assert.False(t, ledger.Slots[0].Booked)

	rec = h.do(t, http.MethodPost, path+"/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[api.ReconcileResponse](t, rec).Corrected)

	rec = h.do(t, http.MethodGet, "/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ProviderResponse](t, rec), 2)
}

func TestNotificationEndpoints(t *testing.T) {
	h := newHarness(t)
	h.sink.Notify(context.Background(), h.alice.ID, "your session was confirmed")

	rec := h.do(t, http.MethodGet, "/users/"+h.alice.ID.String()+"/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]api.NotificationResponse](t, rec)
	require.Len(t, notes, 1)
	assert.False(t, notes[0].Read)

	rec = h.do(t, http.MethodPost, "/notifications/"+notes[0].ID.String()+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[api.NotificationResponse](t, rec).Read)

	rec = h.do(t, http.MethodGet, "/users/"+h.alice.ID.String()+"/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]api.NotificationResponse](t, rec))
}

func TestEventStreamSendsInitialSnapshots(t *testing.T) {
	h := newHarness(t)
	h.create(t, h.alice, h.provider, "10:00")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/users/"+h.alice.ID.String()+"/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, "event: appointments")
	assert.Contains(t, body, "event: notifications")
	assert.Contains(t, body, `"reason":"initial"`)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[api.LivenessResponse](t, rec).Status)

	rec = h.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
}

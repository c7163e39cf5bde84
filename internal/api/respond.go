package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// errorCodes names the specific failures clients branch on. Order matters
// only where one error wraps another.
var errorCodes = []struct {
	err  error
	code string
}{
	{appointment.ErrRequesterNotFound, "requester_not_found"},
	{appointment.ErrProviderNotFound, "provider_not_found"},
	{appointment.ErrAppointmentNotFound, "appointment_not_found"},
	{appointment.ErrLedgerNotFound, "availability_not_found"},
	{appointment.ErrNoEntryAppointment, "no_entry_appointment"},
	{appointment.ErrNotificationNotFound, "notification_not_found"},
	{appointment.ErrSlotTaken, "slot_already_booked"},
	{appointment.ErrSlotBeingBooked, "slot_being_booked"},
	{appointment.ErrSlotNotPublished, "slot_not_published"},
	{appointment.ErrDuplicateSlot, "duplicate_slot"},
	{appointment.ErrDailyLimit, "daily_limit"},
	{appointment.ErrIntervalViolation, "interval_violation"},
	{appointment.ErrVersionConflict, "concurrent_modification"},
	{appointment.ErrInvalidStatusTransition, "invalid_status_transition"},
	{appointment.ErrNotActive, "appointment_not_active"},
	{appointment.ErrTransferActive, "transfer_in_progress"},
	{appointment.ErrNoTransfer, "no_transfer"},
	{appointment.ErrRescheduleActive, "reschedule_in_progress"},
	{appointment.ErrNoReschedule, "no_reschedule"},
	{appointment.ErrSameProvider, "same_provider"},
	{appointment.ErrSameSlot, "same_slot"},
	{appointment.ErrGateActive, "entry_request_open"},
	{appointment.ErrGateAlreadyAdmitted, "entry_already_allowed"},
	{appointment.ErrGateAlreadyResolved, "entry_already_resolved"},
	{appointment.ErrNotConfirmed, "appointment_not_confirmed"},
	{appointment.ErrEntryTooEarly, "entry_too_early"},
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, appointment.ErrConflict), errors.Is(err, appointment.ErrPrecondition):
		return http.StatusConflict
	case errors.Is(err, appointment.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appointment.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, appointment.ErrTooEarly):
		return http.StatusTooEarly
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	if errors.Is(err, appointment.ErrInvalidInput) {
		return "invalid_input"
	}
	return "internal_error"
}

// handleServiceError maps a service error onto the HTTP taxonomy. Internal
// errors are logged and their text is not sent to the client.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Default().Error("request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "err", err)
		writeError(w, status, "internal_error", "")
		return
	}

	var ic *appointment.IntervalConflict
	if errors.As(err, &ic) {
		writeError(w, status, codeFor(err), ic.Error())
		return
	}
	writeError(w, status, codeFor(err), err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDField(w http.ResponseWriter, raw, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

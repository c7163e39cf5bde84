package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

func initiateTransferHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req TransferRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		targetID, ok := parseUUIDField(w, req.TargetProviderID, "target_provider_id")
		if !ok {
			return
		}

		appt, err := svc.InitiateTransfer(r.Context(), id, targetID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// transferConsentHandler serves both consent endpoints; respond is the
// party-specific service method.
func transferConsentHandler(respond func(ctx context.Context, id uuid.UUID, accept bool) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req ConsentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Accept == nil {
			writeError(w, http.StatusBadRequest, "invalid_accept", "accept must be true or false")
			return
		}

		appt, err := respond(r.Context(), id, *req.Accept)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func revokeTransferHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(svc.RevokeTransfer)
}

func proposeRescheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.ProposeReschedule(r.Context(), id, req.Date, req.Time)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func respondRescheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return transferConsentHandler(svc.RespondReschedule)
}

func retractRescheduleHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(svc.RetractReschedule)
}

func requestEntryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req EntryRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.RequestEntry(r.Context(), id, req.VerifiedBy)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func decideEntryHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req EntryDecisionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		var allowed bool
		switch strings.ToLower(req.Decision) {
		case "allow", "allowed":
			allowed = true
		case "deny", "denied":
		default:
			writeError(w, http.StatusBadRequest, "invalid_decision", `decision must be "allow" or "deny"`)
			return
		}

		appt, err := svc.DecideEntry(r.Context(), id, allowed)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func scanEntryHandler(svc *appointment.Service, defaultWindow time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ScanRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		window := defaultWindow
		if req.WindowMinutes > 0 {
			window = time.Duration(req.WindowMinutes) * time.Minute
		}

		appt, err := svc.ScanEntry(r.Context(), req.Token, window, req.VerifiedBy)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		requesterID, ok := parseUUIDField(w, req.RequesterID, "requester_id")
		if !ok {
			return
		}
		providerID, ok := parseUUIDField(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), appointment.CreateRequest{
			RequesterID: requesterID,
			ProviderID:  providerID,
			Date:        req.Date,
			Time:        req.Time,
			Reason:      req.Reason,
			Description: req.Description,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler filters by requester_id, provider_id, date and
// status query parameters, paginated with limit and offset.
func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := appointment.ListFilter{
			Limit:  queryInt(r, "limit", 20),
			Offset: queryInt(r, "offset", 0),
		}

		if v := q.Get("requester_id"); v != "" {
			id, ok := parseUUIDField(w, v, "requester_id")
			if !ok {
				return
			}
			f.RequesterID = &id
		}
		if v := q.Get("provider_id"); v != "" {
			id, ok := parseUUIDField(w, v, "provider_id")
			if !ok {
				return
			}
			f.ProviderID = &id
		}
		if v := q.Get("date"); v != "" {
			f.Date = &v
		}
		if v := q.Get("status"); v != "" {
			st, err := appointment.ParseStatus(v)
			if err != nil {
				handleServiceError(w, r, err)
				return
			}
			f.Status = &st
		}

		appts, err := svc.ListAppointments(r.Context(), f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

// appointmentAction adapts a service call that takes only the appointment
// id, the shape shared by the lifecycle transitions.
func appointmentAction(action func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := action(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(svc.Confirm)
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(svc.Cancel)
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentAction(svc.Complete)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

func listProvidersHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]ProviderResponse, 0, len(providers))
		for _, p := range providers {
			resp = append(resp, ProviderResponse{ID: p.ID, Name: p.Name})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		day, err := svc.Availability(r.Context(), providerID, chi.URLParam(r, "date"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toLedgerResponse(day))
	}
}

func publishAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req AvailabilityRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		day, err := svc.PublishAvailability(r.Context(), providerID, chi.URLParam(r, "date"), req.Times)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toLedgerResponse(day))
	}
}

func reconcileLedgerHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		n, err := svc.ReconcileLedger(r.Context(), providerID, chi.URLParam(r, "date"))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ReconcileResponse{Corrected: n})
	}
}

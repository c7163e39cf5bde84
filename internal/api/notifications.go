package api

import (
	"net/http"

	"github.com/hackgods/counsel-coordinator/internal/notify"
)

func listNotificationsHandler(sink *notify.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recipientID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		unread := r.URL.Query().Get("unread") == "true"

		notes, err := sink.List(r.Context(), recipientID, unread, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]NotificationResponse, 0, len(notes))
		for i := range notes {
			resp = append(resp, toNotificationResponse(&notes[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func markNotificationReadHandler(sink *notify.Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		n, err := sink.MarkRead(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toNotificationResponse(n))
	}
}

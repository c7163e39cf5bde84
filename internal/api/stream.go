package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/events"
	"github.com/hackgods/counsel-coordinator/internal/notify"
)

const defaultPollInterval = 15 * time.Second

// snapshot is one server-sent event: the recipient's current rows for a
// table, re-read on every change or poll tick.
type snapshot struct {
	Table  string `json:"table"`
	Reason string `json:"reason"`
	Rows   any    `json:"rows"`
}

// eventsHandler streams snapshots of a participant's appointments and
// notifications as server-sent events. ?tables= picks the tables
// (default both); ?role=provider lists appointments the user provides
// instead of requests.
func eventsHandler(svc *appointment.Service, sink *notify.Sink, sub events.Subscriber, pollEvery time.Duration, logger *slog.Logger) http.HandlerFunc {
	if pollEvery <= 0 {
		pollEvery = defaultPollInterval
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		tables, err := parseTables(r.URL.Query().Get("tables"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tables", err.Error())
			return
		}
		asProvider := r.URL.Query().Get("role") == "provider"

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming_unsupported", "")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		var mu sync.Mutex
		send := func(s snapshot) error {
			data, err := json.Marshal(s)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", s.Table, data); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		g, ctx := errgroup.WithContext(r.Context())
		for _, table := range tables {
			table := table
			load := loader(svc, sink, table, userID, asProvider)
			g.Go(func() error {
				return events.Watch(ctx, sub, table, userID, pollEvery, logger, func(ctx context.Context, reason string) error {
					rows, err := load(ctx)
					if err != nil {
						return err
					}
					return send(snapshot{Table: table, Reason: reason, Rows: rows})
				})
			})
		}
		if err := g.Wait(); err != nil && r.Context().Err() == nil {
			logger.Warn("event stream ended", "user_id", userID, "err", err)
		}
	}
}

func parseTables(raw string) ([]string, error) {
	if raw == "" {
		return []string{events.TableAppointments, events.TableNotifications}, nil
	}
	var out []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		switch t {
		case events.TableAppointments, events.TableNotifications:
			out = append(out, t)
		default:
			return nil, fmt.Errorf("unknown table %q", t)
		}
	}
	return out, nil
}

func loader(svc *appointment.Service, sink *notify.Sink, table string, userID uuid.UUID, asProvider bool) func(ctx context.Context) (any, error) {
	if table == events.TableNotifications {
		return func(ctx context.Context) (any, error) {
			notes, err := sink.List(ctx, userID, false, 50, 0)
			if err != nil {
				return nil, err
			}
			out := make([]NotificationResponse, 0, len(notes))
			for i := range notes {
				out = append(out, toNotificationResponse(&notes[i]))
			}
			return out, nil
		}
	}

	return func(ctx context.Context) (any, error) {
		f := appointment.ListFilter{Limit: 100}
		if asProvider {
			f.ProviderID = &userID
		} else {
			f.RequesterID = &userID
		}
		appts, err := svc.ListAppointments(ctx, f)
		if err != nil {
			return nil, err
		}
		return toAppointmentList(appts), nil
	}
}

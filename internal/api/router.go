package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/events"
	"github.com/hackgods/counsel-coordinator/internal/notify"
)

type RouterConfig struct {
	Service       *appointment.Service
	Notifications *notify.Sink
	Changes       events.Subscriber
	Health        *HealthHandler
	Logger        *slog.Logger
	PollInterval  time.Duration
	ScanWindow    time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthHandler(nil, nil, "", "")
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Service))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Service))
			r.Post("/confirm", confirmAppointmentHandler(cfg.Service))
			r.Post("/cancel", cancelAppointmentHandler(cfg.Service))
			r.Post("/complete", completeAppointmentHandler(cfg.Service))

			r.Post("/transfer", initiateTransferHandler(cfg.Service))
			r.Post("/transfer/target-response", transferConsentHandler(cfg.Service.RespondTransferAsTarget))
			r.Post("/transfer/requester-response", transferConsentHandler(cfg.Service.RespondTransferAsRequester))
			r.Delete("/transfer", revokeTransferHandler(cfg.Service))

			r.Post("/reschedule", proposeRescheduleHandler(cfg.Service))
			r.Post("/reschedule/response", respondRescheduleHandler(cfg.Service))
			r.Delete("/reschedule", retractRescheduleHandler(cfg.Service))

			r.Post("/gate/request", requestEntryHandler(cfg.Service))
			r.Post("/gate/decision", decideEntryHandler(cfg.Service))
		})
	})
	r.Post("/gate/scan", scanEntryHandler(cfg.Service, cfg.ScanWindow))

	// Provider and ledger endpoints
	r.Get("/providers", listProvidersHandler(cfg.Service))
	r.Route("/providers/{id}/availability/{date}", func(r chi.Router) {
		r.Get("/", getAvailabilityHandler(cfg.Service))
		r.Put("/", publishAvailabilityHandler(cfg.Service))
		r.Post("/reconcile", reconcileLedgerHandler(cfg.Service))
	})

	// Notification feed and change stream
	r.Get("/users/{id}/notifications", listNotificationsHandler(cfg.Notifications))
	r.Post("/notifications/{id}/read", markNotificationReadHandler(cfg.Notifications))
	r.Get("/users/{id}/events", eventsHandler(cfg.Service, cfg.Notifications, cfg.Changes, cfg.PollInterval, cfg.Logger))

	return r
}

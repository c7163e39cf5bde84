package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

type CreateAppointmentRequest struct {
	RequesterID string `json:"requester_id"`
	ProviderID  string `json:"provider_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
	Description string `json:"description,omitempty"`
}

type TransferRequest struct {
	TargetProviderID string `json:"target_provider_id"`
}

// ConsentRequest answers a transfer or reschedule. Accept is required:
// declining a reschedule cancels the appointment.
type ConsentRequest struct {
	Accept *bool `json:"accept"`
}

type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type EntryRequest struct {
	VerifiedBy string `json:"verified_by"`
}

type EntryDecisionRequest struct {
	Decision string `json:"decision"` // allow, deny
}

type ScanRequest struct {
	Token         string `json:"token"`
	VerifiedBy    string `json:"verified_by"`
	WindowMinutes int    `json:"window_minutes,omitempty"`
}

type AvailabilityRequest struct {
	Times []string `json:"times"`
}

type GateResponse struct {
	AwaitingDecision bool    `json:"awaiting_decision"`
	VerifiedBy       *string `json:"verified_by,omitempty"`
	Decision         *string `json:"decision,omitempty"`
}

type TransferResponse struct {
	TargetProviderID  uuid.UUID `json:"target_provider_id"`
	TargetAccepted    bool      `json:"target_accepted"`
	RequesterAccepted bool      `json:"requester_accepted"`
}

type RescheduleResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type AppointmentResponse struct {
	ID               uuid.UUID           `json:"id"`
	RequesterID      uuid.UUID           `json:"requester_id"`
	ProviderID       uuid.UUID           `json:"provider_id"`
	RequesterName    string              `json:"requester_name"`
	RequesterSection string              `json:"requester_section,omitempty"`
	RequesterContact string              `json:"requester_contact,omitempty"`
	ProviderName     string              `json:"provider_name"`
	Date             string              `json:"date"`
	Time             string              `json:"time"`
	Reason           string              `json:"reason"`
	Description      string              `json:"description,omitempty"`
	Status           string              `json:"status"`
	Gate             GateResponse        `json:"gate"`
	Transfer         *TransferResponse   `json:"transfer,omitempty"`
	Reschedule       *RescheduleResponse `json:"reschedule,omitempty"`
	Version          int64               `json:"version"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:               a.ID,
		RequesterID:      a.RequesterID,
		ProviderID:       a.ProviderID,
		RequesterName:    a.RequesterName,
		RequesterSection: a.RequesterSection,
		RequesterContact: a.RequesterContact,
		ProviderName:     a.ProviderName,
		Date:             a.Date,
		Time:             a.Time,
		Reason:           a.Reason,
		Description:      a.Description,
		Status:           string(a.Status),
		Gate: GateResponse{
			AwaitingDecision: a.Gate.AwaitingDecision,
			VerifiedBy:       a.Gate.VerifiedBy,
		},
		Version:   a.Version,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Gate.Decision != nil {
		d := string(*a.Gate.Decision)
		resp.Gate.Decision = &d
	}
	if a.Transfer != nil {
		resp.Transfer = &TransferResponse{
			TargetProviderID:  a.Transfer.TargetProviderID,
			TargetAccepted:    a.Transfer.TargetAccepted,
			RequesterAccepted: a.Transfer.RequesterAccepted,
		}
	}
	if a.Reschedule != nil {
		resp.Reschedule = &RescheduleResponse{Date: a.Reschedule.Date, Time: a.Reschedule.Time}
	}
	return resp
}

func toAppointmentList(as []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(as))
	for i := range as {
		out = append(out, toAppointmentResponse(&as[i]))
	}
	return out
}

type ProviderResponse struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type LedgerResponse struct {
	ProviderID uuid.UUID          `json:"provider_id"`
	Date       string             `json:"date"`
	Slots      []appointment.Slot `json:"slots"`
	Version    int64              `json:"version"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func toLedgerResponse(d *appointment.LedgerDay) LedgerResponse {
	slots := d.Slots
	if slots == nil {
		slots = []appointment.Slot{}
	}
	return LedgerResponse{
		ProviderID: d.ProviderID,
		Date:       d.Date,
		Slots:      slots,
		Version:    d.Version,
		UpdatedAt:  d.UpdatedAt,
	}
}

type ReconcileResponse struct {
	Corrected int `json:"corrected"`
}

type NotificationResponse struct {
	ID          uuid.UUID `json:"id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

func toNotificationResponse(n *appointment.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		Message:     n.Message,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

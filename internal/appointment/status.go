package appointment

import "fmt"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Active reports whether the status occupies a slot ("booked" set).
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves a to the next status and enforces the sub-state rules
// attached to each edge. Ledger effects are applied by the caller, which
// holds the transaction.
func (a *Appointment) transition(to Status) error {
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, to)
	}

	switch to {
	case StatusConfirmed:
		a.Gate = GateState{}
		a.Transfer = nil
	case StatusCancelled:
		a.Gate = GateState{}
		a.Transfer = nil
		a.Reschedule = nil
	case StatusCompleted:
		// keep who verified entry and the decision as history
		a.Gate.AwaitingDecision = false
		a.Transfer = nil
		a.Reschedule = nil
	}

	a.Status = to
	return nil
}

// ensureConfirmed is used by protocols that resolve to Confirmed from
// either active status. Confirmed -> Confirmed is not an edge of the
// table, so it is a no-op here.
func (a *Appointment) ensureConfirmed() error {
	if a.Status == StatusConfirmed {
		return nil
	}
	return a.transition(StatusConfirmed)
}

func (a *Appointment) transferActive() bool   { return a.Transfer != nil }
func (a *Appointment) rescheduleActive() bool { return a.Reschedule != nil }

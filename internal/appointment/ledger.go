package appointment

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Slot is one bookable time on a provider's day. AppointmentID names the
// holder so booking the same slot again for the same appointment is a no-op.
type Slot struct {
	Time          string     `json:"time"`
	Booked        bool       `json:"booked"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// LedgerDay is the slot ledger row for (provider, date). It is a cache over
// active appointments, maintained incrementally and repaired by Reconcile.
type LedgerDay struct {
	ProviderID uuid.UUID
	Date       string
	Slots      []Slot
	Version    int64 // 0 means not yet stored
	UpdatedAt  time.Time
}

func NewLedgerDay(providerID uuid.UUID, date string, times []string) (*LedgerDay, error) {
	if err := ValidateDate(date); err != nil {
		return nil, err
	}
	d := &LedgerDay{ProviderID: providerID, Date: date}
	if err := d.Merge(times); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *LedgerDay) Clone() *LedgerDay {
	c := *d
	c.Slots = make([]Slot, len(d.Slots))
	for i, s := range d.Slots {
		c.Slots[i] = s
		if s.AppointmentID != nil {
			id := *s.AppointmentID
			c.Slots[i].AppointmentID = &id
		}
	}
	return &c
}

func (d *LedgerDay) find(label string) int {
	label = canonicalTime(label)
	for i, s := range d.Slots {
		if s.Time == label {
			return i
		}
	}
	return -1
}

func (d *LedgerDay) insert(s Slot) int {
	d.Slots = append(d.Slots, s)
	sort.SliceStable(d.Slots, func(i, j int) bool { return d.Slots[i].Time < d.Slots[j].Time })
	return d.find(s.Time)
}

// Book marks label as held by apptID and reports whether the day changed.
// Without ensure the time must already be published; with ensure a missing
// entry is added (provider-initiated moves such as transfer and reschedule).
// Booking a slot the same appointment already holds is a no-op.
func (d *LedgerDay) Book(label string, apptID uuid.UUID, ensure bool) (bool, error) {
	label, err := NormalizeTime(label)
	if err != nil {
		return false, err
	}
	i := d.find(label)
	if i < 0 {
		if !ensure {
			return false, fmt.Errorf("%w: %s %s", ErrSlotNotPublished, d.Date, label)
		}
		i = d.insert(Slot{Time: label})
	}

	s := &d.Slots[i]
	if s.Booked {
		if s.AppointmentID != nil && *s.AppointmentID == apptID {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s %s", ErrSlotTaken, d.Date, label)
	}

	id := apptID
	s.Booked = true
	s.AppointmentID = &id
	return true, nil
}

// Free releases label if apptID holds it (or nobody is recorded as holder).
// It reports whether anything changed; freeing twice is not an error.
func (d *LedgerDay) Free(label string, apptID uuid.UUID) bool {
	i := d.find(label)
	if i < 0 {
		return false
	}
	s := &d.Slots[i]
	if !s.Booked {
		return false
	}
	if s.AppointmentID != nil && *s.AppointmentID != apptID {
		return false
	}
	s.Booked = false
	s.AppointmentID = nil
	return true
}

func (d *LedgerDay) IsBooked(label string) bool {
	i := d.find(label)
	return i >= 0 && d.Slots[i].Booked
}

// Merge publishes times: new labels are added free, free labels not listed
// are withdrawn, booked labels are always kept.
func (d *LedgerDay) Merge(times []string) error {
	want := make(map[string]bool, len(times))
	for _, raw := range times {
		t, err := NormalizeTime(raw)
		if err != nil {
			return err
		}
		want[t] = true
	}

	kept := d.Slots[:0]
	for _, s := range d.Slots {
		if s.Booked || want[s.Time] {
			kept = append(kept, s)
		}
		delete(want, s.Time)
	}
	d.Slots = kept

	for t := range want {
		d.insert(Slot{Time: t})
	}
	return nil
}

// Reconcile recomputes booked flags from the live active appointments of
// this provider and date. Active rows at unpublished times are added. It
// returns how many slots changed.
func (d *LedgerDay) Reconcile(active []Appointment) int {
	holders := make(map[string]uuid.UUID)
	for _, a := range active {
		if a.ProviderID != d.ProviderID || a.Date != d.Date || !a.Status.Active() {
			continue
		}
		holders[a.Time] = a.ID
	}

	changed := 0
	for i := range d.Slots {
		s := &d.Slots[i]
		id, held := holders[s.Time]
		delete(holders, s.Time)

		switch {
		case held && (!s.Booked || s.AppointmentID == nil || *s.AppointmentID != id):
			s.Booked = true
			s.AppointmentID = &id
			changed++
		case !held && s.Booked:
			s.Booked = false
			s.AppointmentID = nil
			changed++
		}
	}

	for label, id := range holders {
		id := id
		d.insert(Slot{Time: label, Booked: true, AppointmentID: &id})
		changed++
	}
	return changed
}

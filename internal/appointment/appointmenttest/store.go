// Package appointmenttest provides in-memory collaborators for exercising
// the appointment service without Postgres or Redis.
package appointmenttest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
)

// Store implements appointment.Store, Directory and NotificationStore.
// Transactions run one at a time and stage their writes; a failed unit
// leaves committed state untouched. The partial unique indexes of the
// Postgres schema are emulated on insert and update.
type Store struct {
	txMu sync.Mutex // serializes units of work

	mu         sync.RWMutex
	appts      map[uuid.UUID]*appointment.Appointment
	ledgers    map[appointment.LedgerKey]*appointment.LedgerDay
	eventLog   []appointment.EventLog
	failUpdate int

	dirMu      sync.RWMutex
	providers  map[uuid.UUID]appointment.Provider
	requesters map[uuid.UUID]appointment.Requester

	notesMu sync.Mutex
	notes   []appointment.Notification
}

var (
	_ appointment.Store             = (*Store)(nil)
	_ appointment.Directory         = (*Store)(nil)
	_ appointment.NotificationStore = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		appts:      make(map[uuid.UUID]*appointment.Appointment),
		ledgers:    make(map[appointment.LedgerKey]*appointment.LedgerDay),
		providers:  make(map[uuid.UUID]appointment.Provider),
		requesters: make(map[uuid.UUID]appointment.Requester),
	}
}

// FailNextUpdates makes the next n appointment updates report a version
// conflict, as if another writer got there first.
func (s *Store) FailNextUpdates(n int) {
	s.mu.Lock()
	s.failUpdate = n
	s.mu.Unlock()
}

func (s *Store) AddProvider(name string) appointment.Provider {
	p := appointment.Provider{ID: uuid.New(), Name: name, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.dirMu.Lock()
	s.providers[p.ID] = p
	s.dirMu.Unlock()
	return p
}

func (s *Store) AddRequester(name, section string) appointment.Requester {
	r := appointment.Requester{ID: uuid.New(), Name: name, Section: section, Contact: "555-0100", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	s.dirMu.Lock()
	s.requesters[r.ID] = r
	s.dirMu.Unlock()
	return r
}

// PutLedgerDay overwrites a ledger row outside any transaction. Tests use
// it to simulate drift.
func (s *Store) PutLedgerDay(d *appointment.LedgerDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := d.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	s.ledgers[appointment.LedgerKey{ProviderID: d.ProviderID, Date: d.Date}] = c
}

// Events returns the audit trail in insertion order.
func (s *Store) Events() []appointment.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]appointment.EventLog(nil), s.eventLog...)
}

func (s *Store) EventTypes(apptID uuid.UUID) []string {
	var types []string
	for _, ev := range s.Events() {
		if ev.AppointmentID != nil && *ev.AppointmentID == apptID {
			types = append(types, ev.EventType)
		}
	}
	return types
}

// Store

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx appointment.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		s:       s,
		appts:   make(map[uuid.UUID]*appointment.Appointment),
		ledgers: make(map[appointment.LedgerKey]*appointment.LedgerDay),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range tx.appts {
		s.appts[id] = a
	}
	for k, d := range tx.ledgers {
		s.ledgers[k] = d
	}
	s.eventLog = append(s.eventLog, tx.events...)
	return nil
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (s *Store) ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	s.mu.RLock()
	var result []appointment.Appointment
	for _, a := range s.appts {
		if f.RequesterID != nil && a.RequesterID != *f.RequesterID {
			continue
		}
		if f.ProviderID != nil && a.ProviderID != *f.ProviderID {
			continue
		}
		if f.Date != nil && a.Date != *f.Date {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		result = append(result, *a.Clone())
	}
	s.mu.RUnlock()

	sortAppointments(result)
	if f.Offset >= len(result) {
		return nil, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

func (s *Store) GetLedgerDay(ctx context.Context, providerID uuid.UUID, date string) (*appointment.LedgerDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.ledgers[appointment.LedgerKey{ProviderID: providerID, Date: date}]
	if !ok {
		return nil, appointment.ErrLedgerNotFound
	}
	return d.Clone(), nil
}

func (s *Store) ListLedgerDays(ctx context.Context, fromDate string) ([]appointment.LedgerKey, error) {
	s.mu.RLock()
	var keys []appointment.LedgerKey
	for k := range s.ledgers {
		if k.Date >= fromDate {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].ProviderID.String() < keys[j].ProviderID.String()
	})
	return keys, nil
}

func sortAppointments(as []appointment.Appointment) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Date != as[j].Date {
			return as[i].Date < as[j].Date
		}
		if as[i].Time != as[j].Time {
			return as[i].Time < as[j].Time
		}
		return as[i].CreatedAt.Before(as[j].CreatedAt)
	})
}

// Tx

type memTx struct {
	s       *Store
	appts   map[uuid.UUID]*appointment.Appointment
	ledgers map[appointment.LedgerKey]*appointment.LedgerDay
	events  []appointment.EventLog
}

// current returns the staged row if any, else the committed one.
func (t *memTx) current(id uuid.UUID) (*appointment.Appointment, bool) {
	if a, ok := t.appts[id]; ok {
		return a, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	a, ok := t.s.appts[id]
	return a, ok
}

func (t *memTx) view() []*appointment.Appointment {
	t.s.mu.RLock()
	out := make([]*appointment.Appointment, 0, len(t.s.appts)+len(t.appts))
	for id, a := range t.s.appts {
		if _, staged := t.appts[id]; !staged {
			out = append(out, a)
		}
	}
	t.s.mu.RUnlock()
	for _, a := range t.appts {
		out = append(out, a)
	}
	return out
}

func (t *memTx) listActive(match func(a *appointment.Appointment) bool) []appointment.Appointment {
	var result []appointment.Appointment
	for _, a := range t.view() {
		if a.Status.Active() && match(a) {
			result = append(result, *a.Clone())
		}
	}
	sortAppointments(result)
	return result
}

// checkUnique mirrors appointments_slot_active_uq and
// appointments_requester_day_active_uq.
func (t *memTx) checkUnique(a *appointment.Appointment) error {
	if !a.Status.Active() {
		return nil
	}
	for _, o := range t.view() {
		if o.ID == a.ID || !o.Status.Active() {
			continue
		}
		if o.ProviderID == a.ProviderID && o.Date == a.Date && o.Time == a.Time {
			return appointment.ErrSlotTaken
		}
		if o.RequesterID == a.RequesterID && o.Date == a.Date {
			return appointment.ErrDailyLimit
		}
	}
	return nil
}

func (t *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := t.current(id)
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a.Clone(), nil
}

func (t *memTx) ListActiveByProviderDate(ctx context.Context, providerID uuid.UUID, date string) ([]appointment.Appointment, error) {
	return t.listActive(func(a *appointment.Appointment) bool {
		return a.ProviderID == providerID && a.Date == date
	}), nil
}

func (t *memTx) ListActiveByRequesterDate(ctx context.Context, requesterID uuid.UUID, date string) ([]appointment.Appointment, error) {
	return t.listActive(func(a *appointment.Appointment) bool {
		return a.RequesterID == requesterID && a.Date == date
	}), nil
}

func (t *memTx) InsertAppointment(ctx context.Context, a *appointment.Appointment) error {
	if _, exists := t.current(a.ID); exists {
		return fmt.Errorf("%w: duplicate appointment id %s", appointment.ErrConflict, a.ID)
	}
	if err := t.checkUnique(a); err != nil {
		return err
	}
	a.Version = 1
	t.appts[a.ID] = a.Clone()
	return nil
}

func (t *memTx) UpdateAppointment(ctx context.Context, a *appointment.Appointment) error {
	t.s.mu.Lock()
	if t.s.failUpdate > 0 {
		t.s.failUpdate--
		t.s.mu.Unlock()
		return appointment.ErrVersionConflict
	}
	t.s.mu.Unlock()

	cur, ok := t.current(a.ID)
	if !ok || cur.Version != a.Version {
		return appointment.ErrVersionConflict
	}
	if err := t.checkUnique(a); err != nil {
		return err
	}
	a.Version++
	t.appts[a.ID] = a.Clone()
	return nil
}

func (t *memTx) GetLedgerDay(ctx context.Context, providerID uuid.UUID, date string) (*appointment.LedgerDay, error) {
	k := appointment.LedgerKey{ProviderID: providerID, Date: date}
	if d, ok := t.ledgers[k]; ok {
		return d.Clone(), nil
	}
	return t.s.GetLedgerDay(ctx, providerID, date)
}

func (t *memTx) SaveLedgerDay(ctx context.Context, d *appointment.LedgerDay) error {
	k := appointment.LedgerKey{ProviderID: d.ProviderID, Date: d.Date}

	cur, ok := t.ledgers[k]
	if !ok {
		t.s.mu.RLock()
		cur, ok = t.s.ledgers[k]
		t.s.mu.RUnlock()
	}
	switch {
	case d.Version == 0 && ok:
		return appointment.ErrVersionConflict
	case d.Version != 0 && (!ok || cur.Version != d.Version):
		return appointment.ErrVersionConflict
	}

	d.Version++
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now()
	}
	t.ledgers[k] = d.Clone()
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	ev.ID = int64(len(t.s.Events()) + len(t.events) + 1)
	t.events = append(t.events, ev)
	return nil
}

// Directory

func (s *Store) ListProviders(ctx context.Context) ([]appointment.Provider, error) {
	s.dirMu.RLock()
	result := make([]appointment.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		result = append(result, p)
	}
	s.dirMu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) GetProvider(ctx context.Context, id uuid.UUID) (*appointment.Provider, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, appointment.ErrProviderNotFound
	}
	return &p, nil
}

func (s *Store) GetRequester(ctx context.Context, id uuid.UUID) (*appointment.Requester, error) {
	s.dirMu.RLock()
	defer s.dirMu.RUnlock()
	r, ok := s.requesters[id]
	if !ok {
		return nil, appointment.ErrRequesterNotFound
	}
	return &r, nil
}

// Notifications

func (s *Store) InsertNotification(ctx context.Context, n *appointment.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notesMu.Lock()
	s.notes = append(s.notes, *n)
	s.notesMu.Unlock()
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, limit, offset int) ([]appointment.Notification, error) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()

	var result []appointment.Notification
	for i := len(s.notes) - 1; i >= 0; i-- {
		n := s.notes[i]
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id uuid.UUID) (*appointment.Notification, error) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	for i := range s.notes {
		if s.notes[i].ID == id {
			s.notes[i].Read = true
			n := s.notes[i]
			return &n, nil
		}
	}
	return nil, appointment.ErrNotificationNotFound
}

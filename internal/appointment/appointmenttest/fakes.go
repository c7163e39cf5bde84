package appointmenttest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counsel-coordinator/internal/appointment"
	"github.com/hackgods/counsel-coordinator/internal/config"
	"github.com/hackgods/counsel-coordinator/internal/events"
	"github.com/hackgods/counsel-coordinator/internal/logs"
	redisclient "github.com/hackgods/counsel-coordinator/internal/redis"
)

type Sent struct {
	To      uuid.UUID
	Message string
}

// Notifier records every message instead of delivering it.
type Notifier struct {
	mu   sync.Mutex
	sent []Sent
}

func (n *Notifier) Notify(ctx context.Context, recipientID uuid.UUID, message string) {
	n.mu.Lock()
	n.sent = append(n.sent, Sent{To: recipientID, Message: message})
	n.mu.Unlock()
}

func (n *Notifier) Sent() []Sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Sent(nil), n.sent...)
}

func (n *Notifier) For(recipientID uuid.UUID) []string {
	var msgs []string
	for _, s := range n.Sent() {
		if s.To == recipientID {
			msgs = append(msgs, s.Message)
		}
	}
	return msgs
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	n.sent = nil
	n.mu.Unlock()
}

// Publisher records change events. Err, when set, is returned from Publish
// after recording.
type Publisher struct {
	mu     sync.Mutex
	events []events.ChangeEvent
	Err    error
}

func (p *Publisher) Publish(ctx context.Context, ev events.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

func (p *Publisher) Events() []events.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ChangeEvent(nil), p.events...)
}

func (p *Publisher) Last() (events.ChangeEvent, bool) {
	evs := p.Events()
	if len(evs) == 0 {
		return events.ChangeEvent{}, false
	}
	return evs[len(evs)-1], true
}

// Locker is an in-process stand-in for the Redis slot lock with the same
// fail-fast behavior on contention.
type Locker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *Locker) WithSlotLock(ctx context.Context, key redisclient.SlotKey, fn func(ctx context.Context) error) error {
	k := key.String()

	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[k] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[k] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, k)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

// Hold takes the lock for key until the returned func is called.
func (l *Locker) Hold(key redisclient.SlotKey) func() {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	l.held[key.String()] = true
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.held, key.String())
		l.mu.Unlock()
	}
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Env wires a Service to in-memory collaborators.
type Env struct {
	Store     *Store
	Notifier  *Notifier
	Publisher *Publisher
	Locker    *Locker
	Clock     *Clock
	Config    config.Config
	Service   *appointment.Service
}

// Day is the calendar date every Env starts on.
const Day = "2030-03-04"

func NewEnv() *Env {
	cfg := config.Defaults()
	start, _ := time.ParseInLocation(appointment.DateLayout+" "+appointment.TimeLayout, Day+" 08:00", cfg.Location)

	e := &Env{
		Store:     NewStore(),
		Notifier:  &Notifier{},
		Publisher: &Publisher{},
		Locker:    &Locker{},
		Clock:     NewClock(start),
		Config:    cfg,
	}
	e.Service = appointment.NewService(appointment.Deps{
		Store:     e.Store,
		Directory: e.Store,
		Locker:    e.Locker,
		Notifier:  e.Notifier,
		Changes:   e.Publisher,
		Logger:    logs.Discard(),
	}, cfg).WithClock(e.Clock.Now)
	return e
}

// Publish puts times on the provider's ledger for date.
func (e *Env) Publish(ctx context.Context, providerID uuid.UUID, date string, times ...string) *appointment.LedgerDay {
	d, err := e.Service.PublishAvailability(ctx, providerID, date, times)
	if err != nil {
		panic(err)
	}
	return d
}

// SetTime moves the clock to date at the HH:MM label.
func (e *Env) SetTime(date, label string) {
	t, err := appointment.SlotStart(date, label, e.Config.Location)
	if err != nil {
		panic(err)
	}
	e.Clock.Set(t)
}

package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/counsel-coordinator/internal/logs"
)

type chanSubscriber struct {
	ch  chan ChangeEvent
	err error
}

func (s *chanSubscriber) Subscribe(context.Context, string, uuid.UUID) (<-chan ChangeEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.ch, nil
}

type reasonLog struct {
	mu      sync.Mutex
	reasons []string
}

func (r *reasonLog) add(reason string) {
	r.mu.Lock()
	r.reasons = append(r.reasons, reason)
	r.mu.Unlock()
}

func (r *reasonLog) has(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.reasons {
		if got == reason {
			return true
		}
	}
	return false
}

func TestWatch_RefetchesOnEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &chanSubscriber{ch: make(chan ChangeEvent, 1)}
	var seen reasonLog

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, sub, TableAppointments, uuid.New(), time.Hour, logs.Discard(), func(_ context.Context, reason string) error {
			seen.add(reason)
			return nil
		})
	}()

	sub.ch <- ChangeEvent{Table: TableAppointments, RowID: "a-1", Op: "confirmed"}

	require.Eventually(t, func() bool { return seen.has(ReasonEvent) }, time.Second, 5*time.Millisecond)
	assert.True(t, seen.has(ReasonInitial))

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_FallsBackToPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &chanSubscriber{err: errors.New("redis down")}
	var seen reasonLog

	go func() {
		_ = Watch(ctx, sub, TableAppointments, uuid.New(), 10*time.Millisecond, logs.Discard(), func(_ context.Context, reason string) error {
			seen.add(reason)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return seen.has(ReasonPoll) }, time.Second, 5*time.Millisecond)
}

func TestWatch_NilLoggerFallsBackToPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &chanSubscriber{err: errors.New("redis down")}
	var seen reasonLog
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = Watch(ctx, sub, TableAppointments, uuid.New(), 10*time.Millisecond, nil, func(_ context.Context, reason string) error {
			seen.add(reason)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return seen.has(ReasonPoll) }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestWatch_ClosedStreamKeepsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &chanSubscriber{ch: make(chan ChangeEvent)}
	close(sub.ch)
	var seen reasonLog

	go func() {
		_ = Watch(ctx, sub, TableAppointments, uuid.New(), 10*time.Millisecond, logs.Discard(), func(_ context.Context, reason string) error {
			seen.add(reason)
			return nil
		})
	}()

	require.Eventually(t, func() bool { return seen.has(ReasonPoll) }, time.Second, 5*time.Millisecond)
	assert.False(t, seen.has(ReasonEvent))
}

func TestWatch_StopsOnRefetchError(t *testing.T) {
	boom := errors.New("store unavailable")
	err := Watch(context.Background(), nil, TableAppointments, uuid.New(), time.Hour, logs.Discard(), func(context.Context, string) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "changes:appointments:11111111-2222-3333-4444-555555555555", Channel(TableAppointments, id))
}

package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type recordingSink struct {
	mu      sync.Mutex
	expired int

	tickCh   chan int
	expireCh chan uuid.UUID
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		tickCh:   make(chan int, 64),
		expireCh: make(chan uuid.UUID, 8),
	}
}

func (s *recordingSink) TimerTick(matchID uuid.UUID, remaining int) {
	s.tickCh <- remaining
}

func (s *recordingSink) TimerExpired(matchID, roundID uuid.UUID) {
	s.mu.Lock()
	s.expired++
	s.mu.Unlock()
	s.expireCh <- roundID
}

func (s *recordingSink) expiredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

func waitTick(t *testing.T, s *recordingSink) int {
	t.Helper()
	select {
	case n := <-s.tickCh:
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tick")
		return 0
	}
}

func waitExpiry(t *testing.T, s *recordingSink) uuid.UUID {
	t.Helper()
	select {
	case id := <-s.expireCh:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for expiry")
		return uuid.Nil
	}
}

func TestCountdownTicksDownToZeroAndExpiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := newRecordingSink()
	s := New(clock, time.Second, sink)
	matchID := uuid.New()
	roundID := uuid.New()

	state := s.Start(matchID, roundID, 3)
	if state.Remaining != 3 || state.DurationSec != 3 {
		t.Fatalf("unexpected initial state: %+v", state)
	}

	// First tick fires immediately with the full duration.
	if got := waitTick(t, sink); got != 3 {
		t.Fatalf("expected first tick 3, got %d", got)
	}

	for want := 2; want >= 0; want-- {
		clock.BlockUntil(1)
		clock.Advance(time.Second)
		if got := waitTick(t, sink); got != want {
			t.Fatalf("expected tick %d, got %d", want, got)
		}
	}

	if got := waitExpiry(t, sink); got != roundID {
		t.Fatalf("expiry must carry the round it was started for, got %s", got)
	}
	if n := sink.expiredCount(); n != 1 {
		t.Fatalf("expected exactly one expiry, got %d", n)
	}
	if _, ok := s.Snapshot(matchID); ok {
		t.Fatal("countdown must self-cancel after expiry")
	}
}

func TestStopCancelsWithoutExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := newRecordingSink()
	s := New(clock, time.Second, sink)
	matchID := uuid.New()

	s.Start(matchID, uuid.New(), 5)
	waitTick(t, sink)

	s.Stop(matchID)
	s.Stop(matchID) // idempotent

	if _, ok := s.Snapshot(matchID); ok {
		t.Fatal("snapshot must report no countdown after stop")
	}
	if n := sink.expiredCount(); n != 0 {
		t.Fatalf("stopped countdown must not expire, got %d expiries", n)
	}
}

func TestStartReplacesRunningCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := newRecordingSink()
	s := New(clock, time.Second, sink)
	matchID := uuid.New()

	s.Start(matchID, uuid.New(), 5)
	waitTick(t, sink)

	state := s.Start(matchID, uuid.New(), 10)
	if state.DurationSec != 10 || state.Remaining != 10 {
		t.Fatalf("unexpected replacement state: %+v", state)
	}

	snap, ok := s.Snapshot(matchID)
	if !ok || snap.DurationSec != 10 {
		t.Fatalf("expected snapshot of replacement countdown, got %+v ok=%v", snap, ok)
	}
	if n := sink.expiredCount(); n != 0 {
		t.Fatalf("replaced countdown must not expire, got %d", n)
	}
}

func TestSnapshotRecomputesRemaining(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := newRecordingSink()
	s := New(clock, time.Second, sink)
	matchID := uuid.New()

	s.Start(matchID, uuid.New(), 120)
	waitTick(t, sink)

	clock.BlockUntil(1)
	clock.Advance(30 * time.Second)
	waitTick(t, sink)

	snap, ok := s.Snapshot(matchID)
	if !ok {
		t.Fatal("expected a running countdown")
	}
	if snap.Remaining != 90 {
		t.Fatalf("expected 90s remaining, got %d", snap.Remaining)
	}
	if !snap.EndsAt.Equal(clock.Now().Add(90 * time.Second)) {
		t.Fatalf("ends_at drifted: %v", snap.EndsAt)
	}
}

func TestIndependentMatchesDoNotInterfere(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sink := newRecordingSink()
	s := New(clock, time.Second, sink)
	first := uuid.New()
	second := uuid.New()

	s.Start(first, uuid.New(), 30)
	waitTick(t, sink)
	s.Start(second, uuid.New(), 60)
	waitTick(t, sink)

	s.Stop(first)

	if _, ok := s.Snapshot(first); ok {
		t.Fatal("first countdown should be gone")
	}
	snap, ok := s.Snapshot(second)
	if !ok || snap.DurationSec != 60 {
		t.Fatalf("second countdown must keep running, got %+v ok=%v", snap, ok)
	}
}

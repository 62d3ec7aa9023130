// Package timer provides the authoritative per-match countdown. Clients
// must treat the server-computed remaining time as the source of truth
// over any local clock.
package timer

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Sink receives timer output. Implementations must not block: ticks are
// emitted from the countdown goroutine itself.
type Sink interface {
	// TimerTick fires once per cadence interval with the seconds left.
	TimerTick(matchID uuid.UUID, remaining int)
	// TimerExpired fires exactly once, after a tick carrying remaining=0.
	// It names the round the countdown was started for, so a consumer
	// that has already moved on to a newer round can drop the expiry.
	TimerExpired(matchID, roundID uuid.UUID)
}

// State is the wire snapshot of a running countdown.
type State struct {
	DurationSec int       `json:"duration"`
	Remaining   int       `json:"remaining"`
	EndsAt      time.Time `json:"ends_at"`
}

// Scheduler runs at most one countdown per match. Starting a new countdown
// for a match cancels the previous one first. Every tick recomputes
// remaining from the stored endsAt rather than decrementing a counter, so
// delayed delivery self-corrects instead of drifting.
type Scheduler struct {
	clock    clockwork.Clock
	interval time.Duration
	sink     Sink

	mu     sync.Mutex
	active map[uuid.UUID]*countdown
}

type countdown struct {
	roundID     uuid.UUID
	endsAt      time.Time
	durationSec int
	stop        chan struct{}
}

func New(clock clockwork.Clock, interval time.Duration, sink Sink) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		clock:    clock,
		interval: interval,
		sink:     sink,
		active:   make(map[uuid.UUID]*countdown),
	}
}

// Start begins a countdown of durationSec for the given round, replacing
// any countdown already running for the match, and returns the initial
// state.
func (s *Scheduler) Start(matchID, roundID uuid.UUID, durationSec int) State {
	cd := &countdown{
		roundID:     roundID,
		endsAt:      s.clock.Now().Add(time.Duration(durationSec) * time.Second),
		durationSec: durationSec,
		stop:        make(chan struct{}),
	}

	s.mu.Lock()
	if prev, ok := s.active[matchID]; ok {
		close(prev.stop)
		log.Debug().Str("match_id", matchID.String()).Msg("replaced running countdown")
	}
	s.active[matchID] = cd
	s.mu.Unlock()

	go s.run(matchID, cd)

	return State{DurationSec: durationSec, Remaining: durationSec, EndsAt: cd.endsAt}
}

// Stop cancels the match's countdown. Safe to call when nothing is running.
func (s *Scheduler) Stop(matchID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cd, ok := s.active[matchID]; ok {
		close(cd.stop)
		delete(s.active, matchID)
	}
}

// Snapshot returns the current countdown state for a match, recomputed
// from the stored endsAt.
func (s *Scheduler) Snapshot(matchID uuid.UUID) (State, bool) {
	s.mu.Lock()
	cd, ok := s.active[matchID]
	s.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return State{
		DurationSec: cd.durationSec,
		Remaining:   remainingSec(cd.endsAt, s.clock.Now()),
		EndsAt:      cd.endsAt,
	}, true
}

func (s *Scheduler) run(matchID uuid.UUID, cd *countdown) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-cd.stop:
			return
		default:
		}

		remaining := remainingSec(cd.endsAt, s.clock.Now())
		s.sink.TimerTick(matchID, remaining)

		if remaining <= 0 {
			// Self-cancel so a consumer crash mid-round cannot leak the
			// countdown; expire only if this countdown still owns the slot.
			if s.clearIfCurrent(matchID, cd) {
				s.sink.TimerExpired(matchID, cd.roundID)
			}
			return
		}

		select {
		case <-cd.stop:
			return
		case <-ticker.Chan():
		}
	}
}

func (s *Scheduler) clearIfCurrent(matchID uuid.UUID, cd *countdown) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.active[matchID]; ok && current == cd {
		delete(s.active, matchID)
		return true
	}
	return false
}

func remainingSec(endsAt, now time.Time) int {
	left := int(math.Ceil(endsAt.Sub(now).Seconds()))
	if left < 0 {
		return 0
	}
	return left
}

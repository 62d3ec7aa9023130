package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// TimerStopper is the one thing the registry needs from the timer
// scheduler: Remove always cancels a session's countdown before the
// session goes away, so timers can never outlive their session.
type TimerStopper interface {
	Stop(matchID uuid.UUID)
}

// Registry holds every live session, keyed by match ID. Each entry owns a
// sequential command queue with a dedicated worker goroutine, so all
// mutations to one match are strictly serialized while different matches
// proceed fully in parallel. Business logic inside Do never needs a lock.
type Registry struct {
	timers TimerStopper
	clock  clockwork.Clock
	grace  time.Duration
	evict  func(uuid.UUID)

	mu        sync.Mutex
	sessions  map[uuid.UUID]*liveSession
	evictions map[uuid.UUID]clockwork.Timer
}

type liveSession struct {
	session *Session
	queue   chan task
	stop    chan struct{}
}

type task struct {
	fn    func(*Session) error
	reply chan error
}

// NewRegistry builds a registry. evict runs when a session's grace period
// elapses; nil means plain removal. It lets the owner finalize a LIVE
// match as ENDED before the session disappears.
func NewRegistry(timers TimerStopper, clock clockwork.Clock, grace time.Duration, evict func(uuid.UUID)) *Registry {
	r := &Registry{
		timers:    timers,
		clock:     clock,
		grace:     grace,
		evict:     evict,
		sessions:  make(map[uuid.UUID]*liveSession),
		evictions: make(map[uuid.UUID]clockwork.Timer),
	}
	if r.evict == nil {
		r.evict = r.Remove
	}
	return r
}

// CreateOrGet registers a session for the match if none exists and returns
// whether this call created it.
func (r *Registry) CreateOrGet(snap SessionSnapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[snap.Match.ID]; ok {
		return false
	}
	ls := &liveSession{
		session: NewSession(snap),
		queue:   make(chan task, 64),
		stop:    make(chan struct{}),
	}
	r.sessions[snap.Match.ID] = ls
	go ls.run()
	log.Info().Str("match_id", snap.Match.ID.String()).Msg("session registered")
	return true
}

// Has reports whether the match is live in memory.
func (r *Registry) Has(matchID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[matchID]
	return ok
}

// Do runs fn on the session's turn. Commands for the same match execute in
// arrival order, one at a time; fn must do its state mutation synchronously
// and leave slower I/O such as broadcasting to the caller, after Do returns.
// Returns ErrNotFound when the session is unknown or evicted mid-command.
func (r *Registry) Do(ctx context.Context, matchID uuid.UUID, fn func(*Session) error) error {
	r.mu.Lock()
	ls, ok := r.sessions[matchID]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	t := task{fn: fn, reply: make(chan error, 1)}
	select {
	case ls.queue <- t:
	case <-ls.stop:
		return ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.reply:
		return err
	case <-ls.stop:
		return ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Remove tears a session down: its countdown is stopped first, then the
// worker exits and in-flight callers get ErrNotFound. Idempotent.
func (r *Registry) Remove(matchID uuid.UUID) {
	r.timers.Stop(matchID)

	r.mu.Lock()
	ls, ok := r.sessions[matchID]
	if ok {
		delete(r.sessions, matchID)
		close(ls.stop)
	}
	if ev, evOK := r.evictions[matchID]; evOK {
		ev.Stop()
		delete(r.evictions, matchID)
	}
	r.mu.Unlock()

	if ok {
		log.Info().Str("match_id", matchID.String()).Msg("session removed")
	}
}

// MarkEmpty starts the grace-period clock for a match whose last observer
// just left. The session is evicted if nobody rejoins in time.
func (r *Registry) MarkEmpty(matchID uuid.UUID) {
	if r.grace <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[matchID]; !ok {
		return
	}
	if ev, ok := r.evictions[matchID]; ok {
		ev.Stop()
	}
	r.evictions[matchID] = r.clock.AfterFunc(r.grace, func() {
		log.Info().Str("match_id", matchID.String()).Msg("grace period elapsed, evicting session")
		r.evict(matchID)
	})
}

// MarkOccupied cancels a pending grace-period eviction.
func (r *Registry) MarkOccupied(matchID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.evictions[matchID]; ok {
		ev.Stop()
		delete(r.evictions, matchID)
	}
}

func (ls *liveSession) run() {
	for {
		select {
		case <-ls.stop:
			return
		case t := <-ls.queue:
			t.reply <- t.fn(ls.session)
		}
	}
}

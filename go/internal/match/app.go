package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/echoplay/echoplay/go/internal/coach"
	"github.com/echoplay/echoplay/go/internal/match/events"
	"github.com/echoplay/echoplay/go/internal/match/timer"
	"github.com/echoplay/echoplay/go/internal/models"
)

// Repository is the persistent-store collaborator. A write must succeed
// before the matching in-memory transition is committed; failures leave
// the session untouched and surface as ErrUpstreamFailure.
type Repository interface {
	CreateMatch(ctx context.Context, m models.Match, host models.Participant) error
	AddParticipant(ctx context.Context, p models.Participant) error
	LoadSession(ctx context.Context, matchID uuid.UUID) (SessionSnapshot, error)
	StartMatch(ctx context.Context, matchID uuid.UUID, startedAt time.Time, first models.Round) error
	AppendRound(ctx context.Context, r models.Round) error
	CloseRound(ctx context.Context, roundID uuid.UUID, endedAt time.Time) error
	RecordReaction(ctx context.Context, matchID uuid.UUID, userID uuid.NullUUID, kind models.ReactionKind) error
	UpsertVote(ctx context.Context, v models.Vote) error
	FinalizeMatch(ctx context.Context, matchID uuid.UUID, status models.MatchStatus, eval *models.Evaluation, endedAt time.Time) error
}

// RoomProvisioner is the media-room collaborator, consumed once per match
// creation or join and never again by the core.
type RoomProvisioner interface {
	CreateRoom(ctx context.Context, mode models.Mode) (string, error)
	IssueJoinToken(ctx context.Context, roomName string, userID uuid.UUID) (string, error)
}

// Broadcaster fans an event out to every observer of a match. It must not
// block: slow observers are the broadcaster's problem, not the command's.
type Broadcaster interface {
	Broadcast(matchID uuid.UUID, ev *events.Event)
}

// Settings tunes the orchestration core.
type Settings struct {
	DefaultRoundSec int
	MinRoundSec     int
	TickInterval    time.Duration
	SessionGrace    time.Duration
	EvaluateTimeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DefaultRoundSec: 120,
		MinRoundSec:     30,
		TickInterval:    time.Second,
		SessionGrace:    2 * time.Minute,
		EvaluateTimeout: 10 * time.Second,
	}
}

// App orchestrates every live match: it routes each command through the
// match's serialized turn, persists before committing memory, drives the
// timer scheduler, and emits one broadcast per mutation.
type App struct {
	repo        Repository
	rooms       RoomProvisioner
	evaluator   coach.Evaluator
	broadcaster Broadcaster
	publisher   events.Publisher
	clock       clockwork.Clock
	cfg         Settings

	timers   *timer.Scheduler
	registry *Registry
}

func NewApp(
	repo Repository,
	rooms RoomProvisioner,
	evaluator coach.Evaluator,
	broadcaster Broadcaster,
	publisher events.Publisher,
	clock clockwork.Clock,
	cfg Settings,
) *App {
	a := &App{
		repo:        repo,
		rooms:       rooms,
		evaluator:   evaluator,
		broadcaster: broadcaster,
		publisher:   publisher,
		clock:       clock,
		cfg:         cfg,
	}
	a.timers = timer.New(clock, cfg.TickInterval, a)
	a.registry = NewRegistry(a.timers, clock, cfg.SessionGrace, a.evictSession)
	return a
}

// Registry exposes the session registry for tests and wiring.
func (a *App) Registry() *Registry { return a.registry }

// Actor identifies who issued a command. System actors (timer expiry)
// bypass role checks.
type Actor struct {
	UserID uuid.UUID
	System bool
}

type CreateMatchResult struct {
	Match        models.Match         `json:"match"`
	Participants []models.Participant `json:"participants"`
	RoomName     string               `json:"room_name"`
	JoinToken    string               `json:"join_token"`
}

type JoinMatchResult struct {
	MatchID   uuid.UUID `json:"match_id"`
	RoomName  string    `json:"room_name"`
	JoinToken string    `json:"join_token"`
}

type StartRoundResult struct {
	Round     models.Round `json:"round"`
	Timer     timer.State  `json:"timer"`
	Recovered bool         `json:"-"` // duplicate-start recovery, skip re-broadcast
}

type EndRoundResult struct {
	Round   models.Round `json:"round"`
	Already bool         `json:"-"` // round was already closed; nothing changed
}

type ScoreResult struct {
	Evaluation models.Evaluation `json:"evaluation"`
	Cached     bool              `json:"cached"`
}

// CreateMatch provisions a media room, persists the match in LOBBY with
// the host enrolled, and registers the live session.
func (a *App) CreateMatch(ctx context.Context, hostID uuid.UUID, mode models.Mode, topic string) (CreateMatchResult, error) {
	roomName, err := a.rooms.CreateRoom(ctx, mode)
	if err != nil {
		return CreateMatchResult{}, fmt.Errorf("%w: provision room: %v", ErrUpstreamFailure, err)
	}

	if topic == "" {
		topic = models.DefaultTopic(mode)
	}
	now := a.clock.Now()
	m := models.Match{
		ID:        uuid.New(),
		Mode:      mode,
		Topic:     topic,
		Status:    models.MatchStatusLobby,
		HostID:    hostID,
		RoomName:  roomName,
		CreatedAt: now,
	}
	side := models.SideHost
	host := models.Participant{
		ID:       uuid.New(),
		MatchID:  m.ID,
		UserID:   hostID,
		Side:     &side,
		JoinedAt: now,
	}

	if err := a.repo.CreateMatch(ctx, m, host); err != nil {
		return CreateMatchResult{}, fmt.Errorf("%w: create match: %v", ErrUpstreamFailure, err)
	}

	a.registry.CreateOrGet(SessionSnapshot{Match: m, Participants: []models.Participant{host}})

	token, err := a.rooms.IssueJoinToken(ctx, roomName, hostID)
	if err != nil {
		return CreateMatchResult{}, fmt.Errorf("%w: issue join token: %v", ErrUpstreamFailure, err)
	}

	log.Info().
		Str("match_id", m.ID.String()).
		Str("mode", string(mode)).
		Str("room", roomName).
		Msg("match created")

	return CreateMatchResult{
		Match:        m,
		Participants: []models.Participant{host},
		RoomName:     roomName,
		JoinToken:    token,
	}, nil
}

// JoinMatch enrolls a user as a participant (idempotent) and returns a
// media-room join token. Evicted sessions are rehydrated from the store.
func (a *App) JoinMatch(ctx context.Context, matchID, userID uuid.UUID) (JoinMatchResult, error) {
	if err := a.ensureSession(ctx, matchID); err != nil {
		return JoinMatchResult{}, err
	}

	var roomName string
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		roomName = s.Match().RoomName
		if _, ok := s.Participant(userID); ok {
			return nil
		}
		p := models.Participant{
			ID:       uuid.New(),
			MatchID:  matchID,
			UserID:   userID,
			Side:     s.AssignSide(),
			JoinedAt: a.clock.Now(),
		}
		if err := a.repo.AddParticipant(ctx, p); err != nil {
			return fmt.Errorf("%w: add participant: %v", ErrUpstreamFailure, err)
		}
		s.AddParticipant(p)
		return nil
	})
	if err != nil {
		return JoinMatchResult{}, err
	}

	token, err := a.rooms.IssueJoinToken(ctx, roomName, userID)
	if err != nil {
		return JoinMatchResult{}, fmt.Errorf("%w: issue join token: %v", ErrUpstreamFailure, err)
	}
	return JoinMatchResult{MatchID: matchID, RoomName: roomName, JoinToken: token}, nil
}

// StartMatch is the host's one-step opener: LOBBY -> LIVE plus round #1.
// If the match is already LIVE with a round on the floor it is treated as
// a retried command and the existing round is returned.
func (a *App) StartMatch(ctx context.Context, matchID uuid.UUID, actor Actor, speakerID uuid.NullUUID, durationSec int) (StartRoundResult, error) {
	var out StartRoundResult
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		if !s.IsHost(actor.UserID) {
			return fmt.Errorf("%w: only the host can start the match", ErrUnauthorized)
		}

		if s.Match().Status != models.MatchStatusLobby {
			if recovered, ok := a.recoverDuplicateStart(s, speakerID, durationSec); ok {
				out = recovered
				return nil
			}
			return fmt.Errorf("%w: match already started", ErrInvalidTransition)
		}

		speaker := actor.UserID
		if speakerID.Valid {
			speaker = speakerID.UUID
		}
		if _, ok := s.Participant(speaker); !ok {
			return fmt.Errorf("%w: speaker", ErrTargetNotInMatch)
		}

		dur := a.clampDuration(durationSec)
		now := a.clock.Now()
		round := models.Round{
			ID:        uuid.New(),
			MatchID:   matchID,
			Number:    1,
			SpeakerID: speaker,
			StartedAt: now,
		}

		if err := a.repo.StartMatch(ctx, matchID, now, round); err != nil {
			return fmt.Errorf("%w: start match: %v", ErrUpstreamFailure, err)
		}

		s.SetLive(now)
		s.AppendRound(round)
		out = StartRoundResult{Round: round, Timer: a.timers.Start(matchID, round.ID, dur)}
		return nil
	})
	if err != nil {
		return StartRoundResult{}, err
	}

	a.broadcast(matchID, events.TypeRoundStarted, events.RoundStartedPayload{Round: out.Round, Timer: out.Timer})
	a.broadcastRoomState(ctx, matchID)
	return out, nil
}

// StartRound opens the next speaking turn. Host only; the match must be
// LIVE with no round on the floor. A retried start for the same speaker
// and duration returns the round already running instead of failing.
func (a *App) StartRound(ctx context.Context, matchID uuid.UUID, actor Actor, speakerID uuid.NullUUID, durationSec int) (StartRoundResult, error) {
	var out StartRoundResult
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		if !s.IsHost(actor.UserID) {
			return fmt.Errorf("%w: only the host can start rounds", ErrUnauthorized)
		}

		if err := s.CanStartRound(); err != nil {
			if recovered, ok := a.recoverDuplicateStart(s, speakerID, durationSec); ok {
				out = recovered
				return nil
			}
			return err
		}

		speaker := actor.UserID
		if speakerID.Valid {
			speaker = speakerID.UUID
		}
		if _, ok := s.Participant(speaker); !ok {
			return fmt.Errorf("%w: speaker", ErrTargetNotInMatch)
		}

		dur := a.clampDuration(durationSec)
		now := a.clock.Now()
		round := models.Round{
			ID:        uuid.New(),
			MatchID:   matchID,
			Number:    s.NextRoundNumber(),
			SpeakerID: speaker,
			StartedAt: now,
		}

		if err := a.repo.AppendRound(ctx, round); err != nil {
			return fmt.Errorf("%w: append round: %v", ErrUpstreamFailure, err)
		}

		s.AppendRound(round)
		out = StartRoundResult{Round: round, Timer: a.timers.Start(matchID, round.ID, dur)}
		return nil
	})
	if err != nil {
		return StartRoundResult{}, err
	}

	if !out.Recovered {
		a.broadcast(matchID, events.TypeRoundStarted, events.RoundStartedPayload{Round: out.Round, Timer: out.Timer})
	}
	a.broadcastRoomState(ctx, matchID)
	return out, nil
}

// recoverDuplicateStart absorbs retransmitted start commands: if a round
// is on the floor for the requested speaker (or none was named) and the
// requested duration matches the running countdown, hand back the existing
// round as if the original ack had arrived.
func (a *App) recoverDuplicateStart(s *Session, speakerID uuid.NullUUID, durationSec int) (StartRoundResult, bool) {
	if s.Match().Status != models.MatchStatusLive {
		return StartRoundResult{}, false
	}
	open, ok := s.OpenRound()
	if !ok {
		return StartRoundResult{}, false
	}
	if speakerID.Valid && speakerID.UUID != open.SpeakerID {
		return StartRoundResult{}, false
	}
	ts, running := a.timers.Snapshot(s.Match().ID)
	if !running || (durationSec != 0 && a.clampDuration(durationSec) != ts.DurationSec) {
		return StartRoundResult{}, false
	}
	log.Debug().
		Str("match_id", s.Match().ID.String()).
		Str("round_id", open.ID.String()).
		Msg("recovered duplicate start command")
	return StartRoundResult{Round: open, Timer: ts, Recovered: true}, true
}

// EndRound closes the open round. Legal for the host, the active speaker,
// or a system actor. Ending an already-ended round returns that round
// unchanged, so duplicate end signals collapse to one close.
func (a *App) EndRound(ctx context.Context, matchID uuid.UUID, actor Actor) (EndRoundResult, error) {
	var out EndRoundResult
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		open, ok := s.OpenRound()
		if !ok {
			latest, has := s.LatestRound()
			if !has {
				return ErrNoRound
			}
			out = EndRoundResult{Round: latest, Already: true}
			return nil
		}

		if !actor.System && !s.IsHost(actor.UserID) && open.SpeakerID != actor.UserID {
			return fmt.Errorf("%w: only the host or active speaker can end the round", ErrUnauthorized)
		}

		now := a.clock.Now()
		if err := a.repo.CloseRound(ctx, open.ID, now); err != nil {
			return fmt.Errorf("%w: close round: %v", ErrUpstreamFailure, err)
		}

		closed, _ := s.CloseOpenRound(now)
		a.timers.Stop(matchID)
		out = EndRoundResult{Round: closed}
		return nil
	})
	if err != nil {
		return EndRoundResult{}, err
	}

	if !out.Already {
		a.broadcast(matchID, events.TypeRoundEnded, events.RoundEndedPayload{
			RoundID: out.Round.ID,
			Number:  out.Round.Number,
			EndedAt: *out.Round.EndedAt,
		})
		a.broadcastRoomState(ctx, matchID)
	}
	return out, nil
}

// React increments one audience counter and broadcasts the full snapshot.
func (a *App) React(ctx context.Context, matchID uuid.UUID, userID uuid.NullUUID, kind string) (map[models.ReactionKind]int, error) {
	parsed := models.ParseReactionKind(kind)
	var counts map[models.ReactionKind]int
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		if err := a.repo.RecordReaction(ctx, matchID, userID, parsed); err != nil {
			return fmt.Errorf("%w: record reaction: %v", ErrUpstreamFailure, err)
		}
		counts = s.Reactions().Add(parsed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.broadcast(matchID, events.TypeReactionUpdate, events.ReactionUpdatePayload{Counts: counts})
	return counts, nil
}

// Vote records a peer ballot. Identified voters move their single ballot;
// anonymous ballots accumulate. The target must be in the match.
func (a *App) Vote(ctx context.Context, matchID uuid.UUID, voterID uuid.NullUUID, forUserID uuid.UUID) (map[string]int, error) {
	var totals map[string]int
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		if _, ok := s.Participant(forUserID); !ok {
			return ErrTargetNotInMatch
		}
		v := models.Vote{
			ID:      uuid.New(),
			MatchID: matchID,
			VoterID: voterID,
			ForID:   forUserID,
			CastAt:  a.clock.Now(),
		}
		if err := a.repo.UpsertVote(ctx, v); err != nil {
			return fmt.Errorf("%w: upsert vote: %v", ErrUpstreamFailure, err)
		}
		totals = s.Votes().Cast(voterID, forUserID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.broadcast(matchID, events.TypeVoteUpdate, events.VoteUpdatePayload{Totals: totals})
	return totals, nil
}

// RequestScore runs the evaluator once and caches the result. Any
// participant may request it while the match is LIVE; asking again after
// SCORED returns the cached evaluation without touching the evaluator.
func (a *App) RequestScore(ctx context.Context, matchID uuid.UUID, actor Actor) (ScoreResult, error) {
	var out ScoreResult
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		if !actor.System && !s.IsHost(actor.UserID) {
			if _, ok := s.Participant(actor.UserID); !ok {
				return fmt.Errorf("%w: only participants can request scoring", ErrUnauthorized)
			}
		}

		if s.Match().Status == models.MatchStatusScored {
			if cached := s.Evaluation(); cached != nil {
				out = ScoreResult{Evaluation: *cached, Cached: true}
				return nil
			}
		}
		if s.Match().Status != models.MatchStatusLive {
			return fmt.Errorf("%w: match must be live to score", ErrInvalidTransition)
		}

		now := a.clock.Now()
		evalCtx, cancel := context.WithTimeout(ctx, a.cfg.EvaluateTimeout)
		defer cancel()
		eval, err := a.evaluator.Evaluate(evalCtx, coach.Input{
			MatchID:      matchID,
			Participants: s.Participants(),
			Rounds:       s.Rounds(),
			VoteTotals:   s.Votes().TotalsByUser(),
			Now:          now,
		})
		if err != nil {
			return fmt.Errorf("%w: evaluate: %v", ErrUpstreamFailure, err)
		}

		// Close a round still on the floor so the scored match is immutable.
		if open, ok := s.OpenRound(); ok {
			if err := a.repo.CloseRound(ctx, open.ID, now); err != nil {
				return fmt.Errorf("%w: close round: %v", ErrUpstreamFailure, err)
			}
			s.CloseOpenRound(now)
		}
		if err := a.repo.FinalizeMatch(ctx, matchID, models.MatchStatusScored, &eval, now); err != nil {
			return fmt.Errorf("%w: finalize match: %v", ErrUpstreamFailure, err)
		}

		s.SetScored(eval, now)
		a.timers.Stop(matchID)
		out = ScoreResult{Evaluation: eval}
		return nil
	})
	if err != nil {
		return ScoreResult{}, err
	}

	if !out.Cached {
		a.broadcast(matchID, events.TypeScoreReady, events.ScoreReadyPayload{
			Score:    out.Evaluation.Score,
			WinnerID: out.Evaluation.WinnerID,
			Summary:  out.Evaluation.Summary,
			Details:  out.Evaluation.Details,
		})
		a.broadcastRoomState(ctx, matchID)
	}
	return out, nil
}

// Snapshot computes the full room state at this instant, rehydrating
// the session from the store if it was evicted.
func (a *App) Snapshot(ctx context.Context, matchID uuid.UUID) (events.RoomStatePayload, error) {
	if err := a.ensureSession(ctx, matchID); err != nil {
		return events.RoomStatePayload{}, err
	}
	var payload events.RoomStatePayload
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		payload = a.buildSnapshot(s)
		return nil
	})
	return payload, err
}

// ObserverJoined rehydrates the session if needed and cancels any pending
// grace eviction. Called by the broadcaster on membership changes.
func (a *App) ObserverJoined(ctx context.Context, matchID uuid.UUID) error {
	if err := a.ensureSession(ctx, matchID); err != nil {
		return err
	}
	a.registry.MarkOccupied(matchID)
	return nil
}

// ObserverLeft starts the grace clock when the room empties. Membership
// changes never touch session state itself.
func (a *App) ObserverLeft(matchID uuid.UUID, remaining int) {
	if remaining == 0 {
		a.registry.MarkEmpty(matchID)
	}
}

// TimerTick implements timer.Sink: relay the authoritative countdown.
func (a *App) TimerTick(matchID uuid.UUID, remaining int) {
	a.broadcast(matchID, events.TypeTimerTick, events.TimerTickPayload{Remaining: remaining})
}

// TimerExpired implements timer.Sink: the countdown hit zero, close the
// round it was started for on the system's authority. The round ID check
// makes a late expiry harmless: if the host already ended the round and
// opened the next one, the stale signal is dropped.
func (a *App) TimerExpired(matchID, roundID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out EndRoundResult
	err := a.registry.Do(ctx, matchID, func(s *Session) error {
		open, ok := s.OpenRound()
		if !ok || open.ID != roundID {
			return nil
		}

		now := a.clock.Now()
		if err := a.repo.CloseRound(ctx, open.ID, now); err != nil {
			return fmt.Errorf("%w: close round: %v", ErrUpstreamFailure, err)
		}

		closed, _ := s.CloseOpenRound(now)
		a.timers.Stop(matchID)
		out = EndRoundResult{Round: closed}
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("match_id", matchID.String()).Msg("timer expiry could not end round")
		return
	}
	if out.Round.ID != roundID {
		return
	}

	a.broadcast(matchID, events.TypeRoundEnded, events.RoundEndedPayload{
		RoundID: out.Round.ID,
		Number:  out.Round.Number,
		EndedAt: *out.Round.EndedAt,
	})
	a.broadcastRoomState(ctx, matchID)
}

func (a *App) ensureSession(ctx context.Context, matchID uuid.UUID) error {
	if a.registry.Has(matchID) {
		return nil
	}
	snap, err := a.repo.LoadSession(ctx, matchID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: load session: %v", ErrUpstreamFailure, err)
	}
	a.registry.CreateOrGet(snap)
	return nil
}

// evictSession finalizes a LIVE match as ENDED before removal; grace
// period elapsed with nobody watching.
func (a *App) evictSession(matchID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doErr := a.registry.Do(ctx, matchID, func(s *Session) error {
		if s.Match().Status != models.MatchStatusLive {
			return nil
		}
		now := a.clock.Now()
		if open, ok := s.OpenRound(); ok {
			if err := a.repo.CloseRound(ctx, open.ID, now); err != nil {
				return fmt.Errorf("close round: %w", err)
			}
			s.CloseOpenRound(now)
		}
		if err := a.repo.FinalizeMatch(ctx, matchID, models.MatchStatusEnded, nil, now); err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		s.SetEnded(now)
		return nil
	})
	if doErr != nil && !errors.Is(doErr, ErrNotFound) {
		log.Warn().Err(doErr).Str("match_id", matchID.String()).Msg("could not finalize evicted session")
	}

	a.registry.Remove(matchID)
}

func (a *App) clampDuration(durationSec int) int {
	if durationSec == 0 {
		durationSec = a.cfg.DefaultRoundSec
	}
	if durationSec < a.cfg.MinRoundSec {
		durationSec = a.cfg.MinRoundSec
	}
	return durationSec
}

func (a *App) buildSnapshot(s *Session) events.RoomStatePayload {
	payload := events.RoomStatePayload{
		Match:        s.Match(),
		Participants: s.Participants(),
		Reactions:    s.Reactions().Counts(),
		Votes:        s.Votes().Totals(),
		Evaluation:   s.Evaluation(),
	}
	if latest, ok := s.LatestRound(); ok {
		r := latest
		payload.Round = &r
	}
	if ts, ok := a.timers.Snapshot(s.Match().ID); ok {
		t := ts
		payload.Timer = &t
	}
	return payload
}

func (a *App) broadcastRoomState(ctx context.Context, matchID uuid.UUID) {
	snap, err := a.Snapshot(ctx, matchID)
	if err != nil {
		log.Warn().Err(err).Str("match_id", matchID.String()).Msg("room state snapshot failed")
		return
	}
	a.broadcast(matchID, events.TypeRoomState, snap)
}

// broadcast fans one event out to the room and, except for timer ticks,
// mirrors it to the event bus. Neither path may fail the command.
func (a *App) broadcast(matchID uuid.UUID, t events.Type, payload any) {
	ev, err := events.New(matchID, t, payload)
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID.String()).Msg("could not build event")
		return
	}
	if a.broadcaster != nil {
		a.broadcaster.Broadcast(matchID, ev)
	}
	if a.publisher != nil && t != events.TypeTimerTick {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.publisher.Publish(ctx, ev); err != nil {
			log.Warn().Err(err).Str("match_id", matchID.String()).Str("type", string(t)).Msg("event bus publish failed")
		}
		cancel()
	}
}

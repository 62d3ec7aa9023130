package match

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/echoplay/echoplay/go/internal/coach"
	"github.com/echoplay/echoplay/go/internal/match/events"
	"github.com/echoplay/echoplay/go/internal/models"
)

type fakeRepo struct {
	mu           sync.Mutex
	snapshots    map[uuid.UUID]SessionSnapshot
	failAppend   bool
	failReaction bool
	closedRounds []uuid.UUID
	finalized    []models.MatchStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{snapshots: make(map[uuid.UUID]SessionSnapshot)}
}

func (r *fakeRepo) CreateMatch(ctx context.Context, m models.Match, host models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[m.ID] = SessionSnapshot{Match: m, Participants: []models.Participant{host}}
	return nil
}

func (r *fakeRepo) AddParticipant(ctx context.Context, p models.Participant) error { return nil }

func (r *fakeRepo) LoadSession(ctx context.Context, matchID uuid.UUID) (SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snapshots[matchID]
	if !ok {
		return SessionSnapshot{}, ErrNotFound
	}
	return snap, nil
}

func (r *fakeRepo) StartMatch(ctx context.Context, matchID uuid.UUID, startedAt time.Time, first models.Round) error {
	return nil
}

func (r *fakeRepo) AppendRound(ctx context.Context, rd models.Round) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return fmt.Errorf("store unavailable")
	}
	return nil
}

func (r *fakeRepo) CloseRound(ctx context.Context, roundID uuid.UUID, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closedRounds = append(r.closedRounds, roundID)
	return nil
}

func (r *fakeRepo) RecordReaction(ctx context.Context, matchID uuid.UUID, userID uuid.NullUUID, kind models.ReactionKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failReaction {
		return fmt.Errorf("store unavailable")
	}
	return nil
}

func (r *fakeRepo) UpsertVote(ctx context.Context, v models.Vote) error { return nil }

func (r *fakeRepo) FinalizeMatch(ctx context.Context, matchID uuid.UUID, status models.MatchStatus, eval *models.Evaluation, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, status)
	return nil
}

type fakeRooms struct{}

func (fakeRooms) CreateRoom(ctx context.Context, mode models.Mode) (string, error) {
	return "echoplay-" + string(mode) + "-test", nil
}

func (fakeRooms) IssueJoinToken(ctx context.Context, roomName string, userID uuid.UUID) (string, error) {
	return "token-" + userID.String(), nil
}

type stubEvaluator struct {
	mu    sync.Mutex
	calls int
	eval  models.Evaluation
}

func (e *stubEvaluator) Evaluate(ctx context.Context, in coach.Input) (models.Evaluation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.eval, nil
}

func (e *stubEvaluator) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []*events.Event
}

func (b *fakeBroadcaster) Broadcast(matchID uuid.UUID, ev *events.Event) {
	b.mu.Lock()
	b.events = append(b.events, ev)
	b.mu.Unlock()
}

func (b *fakeBroadcaster) countOf(t events.Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	app       *App
	repo      *fakeRepo
	evaluator *stubEvaluator
	bcast     *fakeBroadcaster
	clock     *clockwork.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	winner := uuid.New()
	evaluator := &stubEvaluator{eval: models.Evaluation{Score: 88, WinnerID: &winner, Summary: "test"}}
	bcast := &fakeBroadcaster{}
	clock := clockwork.NewFakeClock()
	app := NewApp(repo, fakeRooms{}, evaluator, bcast, events.NoopPublisher{}, clock, DefaultSettings())
	return &testEnv{app: app, repo: repo, evaluator: evaluator, bcast: bcast, clock: clock}
}

func (e *testEnv) createLiveMatch(t *testing.T, hostID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	created, err := e.app.CreateMatch(ctx, hostID, models.ModeSolo, "")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
	if _, err := e.app.StartMatch(ctx, created.Match.ID, Actor{UserID: hostID}, uuid.NullUUID{}, 0); err != nil {
		t.Fatalf("StartMatch: %v", err)
	}
	return created.Match.ID
}

func TestCreateMatchDefaultsTopicAndEnrollsHost(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()

	res, err := env.app.CreateMatch(context.Background(), hostID, models.ModeFamily, "")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	if res.Match.Topic != models.DefaultTopic(models.ModeFamily) {
		t.Fatalf("expected default topic, got %q", res.Match.Topic)
	}
	if res.Match.Status != models.MatchStatusLobby {
		t.Fatalf("expected LOBBY, got %s", res.Match.Status)
	}
	if len(res.Participants) != 1 || res.Participants[0].UserID != hostID {
		t.Fatalf("expected host enrolled, got %+v", res.Participants)
	}
	if res.JoinToken == "" || res.RoomName == "" {
		t.Fatal("expected room and token")
	}
	if !env.app.Registry().Has(res.Match.ID) {
		t.Fatal("session must be registered")
	}
}

func TestStartMatchOpensRoundOneWithDefaultDuration(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()

	created, err := env.app.CreateMatch(ctx, hostID, models.ModeSolo, "free jazz")
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}

	res, err := env.app.StartMatch(ctx, created.Match.ID, Actor{UserID: hostID}, uuid.NullUUID{}, 0)
	if err != nil {
		t.Fatalf("StartMatch: %v", err)
	}

	if res.Round.Number != 1 || res.Round.SpeakerID != hostID {
		t.Fatalf("unexpected round: %+v", res.Round)
	}
	if res.Timer.DurationSec != 120 || res.Timer.Remaining != 120 {
		t.Fatalf("expected 120s default timer, got %+v", res.Timer)
	}
	if want := env.clock.Now().Add(120 * time.Second); !res.Timer.EndsAt.Equal(want) {
		t.Fatalf("ends_at = %v, want %v", res.Timer.EndsAt, want)
	}

	snap, err := env.app.Snapshot(ctx, created.Match.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Match.Status != models.MatchStatusLive {
		t.Fatalf("expected LIVE, got %s", snap.Match.Status)
	}
}

func TestStartMatchRejectsNonHost(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()

	created, _ := env.app.CreateMatch(ctx, hostID, models.ModeSolo, "")
	_, err := env.app.StartMatch(ctx, created.Match.ID, Actor{UserID: uuid.New()}, uuid.NullUUID{}, 0)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestStartRoundRequiresLiveMatch(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()

	created, _ := env.app.CreateMatch(ctx, hostID, models.ModeSolo, "")
	_, err := env.app.StartRound(ctx, created.Match.ID, Actor{UserID: hostID}, uuid.NullUUID{}, 60)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition in lobby, got %v", err)
	}
}

func TestStartRoundClampsShortDurations(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	if _, err := env.app.EndRound(ctx, matchID, Actor{UserID: hostID}); err != nil {
		t.Fatalf("EndRound: %v", err)
	}
	res, err := env.app.StartRound(ctx, matchID, Actor{UserID: hostID}, uuid.NullUUID{}, 5)
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if res.Timer.DurationSec != 30 {
		t.Fatalf("expected clamp to 30s, got %d", res.Timer.DurationSec)
	}
	if res.Round.Number != 2 {
		t.Fatalf("expected round 2, got %d", res.Round.Number)
	}
}

func TestDuplicateStartRoundIsRecovered(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	speaker := uuid.NullUUID{UUID: hostID, Valid: true}
	// StartMatch already opened round one; this duplicate start must
	// recover it rather than fail.
	first, err := env.app.StartRound(ctx, matchID, Actor{UserID: hostID}, speaker, 0)
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if !first.Recovered {
		t.Fatal("expected duplicate start to be recovered")
	}

	again, err := env.app.StartRound(ctx, matchID, Actor{UserID: hostID}, speaker, 120)
	if err != nil {
		t.Fatalf("retried StartRound: %v", err)
	}
	if !again.Recovered || again.Round.ID != first.Round.ID {
		t.Fatalf("expected same round back, got %+v", again)
	}
}

func TestDuplicateStartWithDifferentDurationFails(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	_, err := env.app.StartRound(ctx, matchID, Actor{UserID: hostID}, uuid.NullUUID{}, 90)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for mismatched duration, got %v", err)
	}
}

func TestEndRoundIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	first, err := env.app.EndRound(ctx, matchID, Actor{UserID: hostID})
	if err != nil {
		t.Fatalf("EndRound: %v", err)
	}
	if first.Already || first.Round.EndedAt == nil {
		t.Fatalf("expected a fresh close, got %+v", first)
	}

	second, err := env.app.EndRound(ctx, matchID, Actor{UserID: hostID})
	if err != nil {
		t.Fatalf("second EndRound: %v", err)
	}
	if !second.Already || second.Round.ID != first.Round.ID {
		t.Fatalf("expected idempotent close of same round, got %+v", second)
	}
	if got := env.bcast.countOf(events.TypeRoundEnded); got != 1 {
		t.Fatalf("expected one round_ended broadcast, got %d", got)
	}
}

func TestEndRoundAuthorization(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	_, err := env.app.EndRound(ctx, matchID, Actor{UserID: uuid.New()})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for outsider, got %v", err)
	}

	if _, err := env.app.EndRound(ctx, matchID, Actor{System: true}); err != nil {
		t.Fatalf("system must be allowed to end rounds: %v", err)
	}
}

func TestReactBaselineAndUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	env.app.React(ctx, matchID, uuid.NullUUID{}, "heart")
	counts, err := env.app.React(ctx, matchID, uuid.NullUUID{}, "heart")
	if err != nil {
		t.Fatalf("React: %v", err)
	}

	if counts[models.ReactionHeart] != 2 {
		t.Fatalf("expected heart=2, got %v", counts)
	}
	for _, kind := range []models.ReactionKind{models.ReactionThumbs, models.ReactionLaugh, models.ReactionFlame} {
		if n, ok := counts[kind]; !ok || n != 0 {
			t.Fatalf("expected %s=0 in snapshot, got %v", kind, counts)
		}
	}

	counts, err = env.app.React(ctx, matchID, uuid.NullUUID{}, "confetti")
	if err != nil {
		t.Fatalf("React: %v", err)
	}
	if counts[models.ReactionHeart] != 3 {
		t.Fatalf("unknown kind must degrade to heart, got %v", counts)
	}
}

func TestReactFailedWriteLeavesTallyUntouched(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	env.repo.mu.Lock()
	env.repo.failReaction = true
	env.repo.mu.Unlock()

	if _, err := env.app.React(ctx, matchID, uuid.NullUUID{}, "flame"); !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("expected ErrUpstreamFailure, got %v", err)
	}

	snap, _ := env.app.Snapshot(ctx, matchID)
	if snap.Reactions[models.ReactionFlame] != 0 {
		t.Fatalf("failed write must not change counts, got %v", snap.Reactions)
	}
}

func TestVoteValidatesTargetAndMovesBallot(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	guestID := uuid.New()
	if _, err := env.app.JoinMatch(ctx, matchID, guestID); err != nil {
		t.Fatalf("JoinMatch: %v", err)
	}

	_, err := env.app.Vote(ctx, matchID, uuid.NullUUID{}, uuid.New())
	if !errors.Is(err, ErrTargetNotInMatch) {
		t.Fatalf("expected ErrTargetNotInMatch, got %v", err)
	}

	voter := uuid.NullUUID{UUID: guestID, Valid: true}
	env.app.Vote(ctx, matchID, voter, hostID)
	totals, err := env.app.Vote(ctx, matchID, voter, guestID)
	if err != nil {
		t.Fatalf("Vote: %v", err)
	}
	if totals[hostID.String()] != 0 || totals[guestID.String()] != 1 {
		t.Fatalf("expected ballot to move, got %v", totals)
	}
}

func TestRequestScoreRunsEvaluatorOnceAndCaches(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	first, err := env.app.RequestScore(ctx, matchID, Actor{UserID: hostID})
	if err != nil {
		t.Fatalf("RequestScore: %v", err)
	}
	if first.Cached || first.Evaluation.Score != 88 {
		t.Fatalf("unexpected first score result: %+v", first)
	}

	second, err := env.app.RequestScore(ctx, matchID, Actor{UserID: hostID})
	if err != nil {
		t.Fatalf("second RequestScore: %v", err)
	}
	if !second.Cached || second.Evaluation.Score != 88 {
		t.Fatalf("expected cached evaluation, got %+v", second)
	}
	if env.evaluator.callCount() != 1 {
		t.Fatalf("evaluator must run once, ran %d times", env.evaluator.callCount())
	}

	snap, _ := env.app.Snapshot(ctx, matchID)
	if snap.Match.Status != models.MatchStatusScored {
		t.Fatalf("expected SCORED, got %s", snap.Match.Status)
	}
	if snap.Round == nil || snap.Round.EndedAt == nil {
		t.Fatal("scoring must close the open round")
	}
	if snap.Timer != nil {
		t.Fatal("scoring must stop the countdown")
	}
}

func TestRequestScoreRejectedInLobby(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()

	created, _ := env.app.CreateMatch(ctx, hostID, models.ModeSolo, "")
	_, err := env.app.RequestScore(ctx, created.Match.ID, Actor{UserID: hostID})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition in lobby, got %v", err)
	}
}

func TestFailedRoundPersistLeavesSessionUntouched(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	if _, err := env.app.EndRound(ctx, matchID, Actor{UserID: hostID}); err != nil {
		t.Fatalf("EndRound: %v", err)
	}

	env.repo.mu.Lock()
	env.repo.failAppend = true
	env.repo.mu.Unlock()

	_, err := env.app.StartRound(ctx, matchID, Actor{UserID: hostID}, uuid.NullUUID{}, 60)
	if !errors.Is(err, ErrUpstreamFailure) {
		t.Fatalf("expected ErrUpstreamFailure, got %v", err)
	}

	snap, _ := env.app.Snapshot(ctx, matchID)
	if snap.Round == nil || snap.Round.EndedAt == nil {
		t.Fatal("failed persist must not open a round")
	}
	if snap.Timer != nil {
		t.Fatal("failed persist must not start a countdown")
	}
}

func TestTimerExpiryEndsRound(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	// The countdown goroutine waits on the fake ticker after its first tick.
	env.clock.BlockUntil(1)
	env.clock.Advance(121 * time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := env.app.Snapshot(ctx, matchID)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.Round != nil && snap.Round.EndedAt != nil {
			if snap.Timer != nil {
				t.Fatal("expired countdown must be gone")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for expiry to close the round")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStaleExpiryDoesNotCloseNewerRound(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()
	matchID := env.createLiveMatch(t, hostID)

	snap, err := env.app.Snapshot(ctx, matchID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	firstRoundID := snap.Round.ID

	if _, err := env.app.EndRound(ctx, matchID, Actor{UserID: hostID}); err != nil {
		t.Fatalf("EndRound: %v", err)
	}
	second, err := env.app.StartRound(ctx, matchID, Actor{UserID: hostID}, uuid.NullUUID{}, 60)
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	ended := env.bcast.countOf(events.TypeRoundEnded)

	// Round one's expiry lands after the host has already ended it and
	// opened round two. It must be dropped, not close round two.
	env.app.TimerExpired(matchID, firstRoundID)

	snap, err = env.app.Snapshot(ctx, matchID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Round == nil || snap.Round.ID != second.Round.ID {
		t.Fatalf("expected round two on the floor, got %+v", snap.Round)
	}
	if snap.Round.EndedAt != nil {
		t.Fatal("stale expiry must not close the newer round")
	}
	if snap.Timer == nil || snap.Timer.DurationSec != 60 {
		t.Fatalf("round two's countdown must keep running, got %+v", snap.Timer)
	}
	if got := env.bcast.countOf(events.TypeRoundEnded); got != ended {
		t.Fatalf("stale expiry must not broadcast round_ended, got %d extra", got-ended)
	}
}

func TestJoinMatchRehydratesEvictedSession(t *testing.T) {
	env := newTestEnv(t)
	hostID := uuid.New()
	ctx := context.Background()

	created, _ := env.app.CreateMatch(ctx, hostID, models.ModeSolo, "")
	env.app.Registry().Remove(created.Match.ID)

	res, err := env.app.JoinMatch(ctx, created.Match.ID, uuid.New())
	if err != nil {
		t.Fatalf("JoinMatch after eviction: %v", err)
	}
	if res.RoomName != created.RoomName {
		t.Fatalf("expected rehydrated room %q, got %q", created.RoomName, res.RoomName)
	}
	if !env.app.Registry().Has(created.Match.ID) {
		t.Fatal("session must be live again")
	}
}

func TestJoinMatchUnknownMatch(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.JoinMatch(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package coach

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/echoplay/echoplay/go/internal/models"
)

func closedRound(speaker uuid.UUID, start time.Time, seconds int) models.Round {
	end := start.Add(time.Duration(seconds) * time.Second)
	return models.Round{
		ID:        uuid.New(),
		Number:    1,
		SpeakerID: speaker,
		StartedAt: start,
		EndedAt:   &end,
	}
}

func TestEvaluateEmptyMatch(t *testing.T) {
	e := NewHeuristicEvaluator()

	eval, err := e.Evaluate(context.Background(), Input{Now: time.Now()})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.WinnerID != nil || eval.Score != 0 {
		t.Fatalf("expected empty evaluation, got %+v", eval)
	}
	if eval.Summary == "" {
		t.Fatal("expected a summary even with no participants")
	}
}

func TestEvaluatePicksMostVotedWinner(t *testing.T) {
	e := NewHeuristicEvaluator()
	now := time.Now()
	alice := uuid.New()
	bob := uuid.New()

	eval, err := e.Evaluate(context.Background(), Input{
		MatchID: uuid.New(),
		Participants: []models.Participant{
			{ID: uuid.New(), UserID: alice},
			{ID: uuid.New(), UserID: bob},
		},
		Rounds: []models.Round{
			closedRound(alice, now.Add(-5*time.Minute), 60),
			closedRound(bob, now.Add(-3*time.Minute), 60),
		},
		VoteTotals: map[uuid.UUID]int{alice: 4, bob: 1},
		Now:        now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if eval.WinnerID == nil || *eval.WinnerID != alice {
		t.Fatalf("expected %s to win, got %+v", alice, eval.WinnerID)
	}
	if eval.Score < 0 || eval.Score > 100 {
		t.Fatalf("score out of range: %d", eval.Score)
	}
	if len(eval.Details) != 2 {
		t.Fatalf("expected per-participant details, got %d", len(eval.Details))
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewHeuristicEvaluator()
	now := time.Unix(1700000000, 0)
	alice := uuid.New()
	bob := uuid.New()

	in := Input{
		Participants: []models.Participant{
			{ID: uuid.New(), UserID: alice},
			{ID: uuid.New(), UserID: bob},
		},
		Rounds:     []models.Round{closedRound(alice, now.Add(-time.Minute), 45)},
		VoteTotals: map[uuid.UUID]int{alice: 2, bob: 2},
		Now:        now,
	}

	first, err := e.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	second, err := e.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if first.Score != second.Score || *first.WinnerID != *second.WinnerID {
		t.Fatalf("evaluation not deterministic: %+v vs %+v", first, second)
	}
}

func TestEvaluateCapsScoreComponents(t *testing.T) {
	e := NewHeuristicEvaluator()
	now := time.Now()
	alice := uuid.New()
	side := "A"

	eval, err := e.Evaluate(context.Background(), Input{
		Participants: []models.Participant{{ID: uuid.New(), UserID: alice, Side: &side}},
		Rounds:       []models.Round{closedRound(alice, now.Add(-time.Hour), 3000)},
		VoteTotals:   map[uuid.UUID]int{alice: 50},
		Now:          now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if eval.Score > 100 {
		t.Fatalf("score must cap at 100, got %d", eval.Score)
	}
}

func TestEvaluateCountsOpenRoundToNow(t *testing.T) {
	e := NewHeuristicEvaluator()
	now := time.Now()
	alice := uuid.New()

	eval, err := e.Evaluate(context.Background(), Input{
		Participants: []models.Participant{{ID: uuid.New(), UserID: alice}},
		Rounds: []models.Round{{
			ID:        uuid.New(),
			Number:    1,
			SpeakerID: alice,
			StartedAt: now.Add(-100 * time.Second),
		}},
		Now: now,
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// 40 base + 10 speaking (100s/10), no votes, no side.
	if eval.Score != 50 {
		t.Fatalf("expected score 50 for open-round speaking time, got %d", eval.Score)
	}
}

func TestEvaluateHonorsContext(t *testing.T) {
	e := NewHeuristicEvaluator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Evaluate(ctx, Input{Now: time.Now()}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

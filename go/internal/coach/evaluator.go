// Package coach scores finished matches. The scoring internals are a
// swappable heuristic; the orchestration core only depends on the
// Evaluator contract: deterministic for the same inputs and bounded by
// the caller's context.
package coach

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/echoplay/echoplay/go/internal/models"
)

// Input carries everything the evaluator may consider.
type Input struct {
	MatchID      uuid.UUID
	Participants []models.Participant
	Rounds       []models.Round
	VoteTotals   map[uuid.UUID]int
	Now          time.Time // end bound for a round still open at scoring time
}

// Evaluator produces a match evaluation. Implementations must be
// deterministic given the same Input and must respect ctx cancellation;
// the core treats a timeout as a fatal evaluation error.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (models.Evaluation, error)
}

// HeuristicEvaluator blends audience votes, speaking time and side play
// into a 0-100 score. No external calls; it always returns promptly.
type HeuristicEvaluator struct{}

func NewHeuristicEvaluator() *HeuristicEvaluator { return &HeuristicEvaluator{} }

type participantScore struct {
	userID          uuid.UUID
	total           int
	votes           int
	speakingSeconds int
}

func (e *HeuristicEvaluator) Evaluate(ctx context.Context, in Input) (models.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return models.Evaluation{}, err
	}

	durations := speakingDurations(in.Rounds, in.Now)

	scores := make([]participantScore, 0, len(in.Participants))
	for _, p := range in.Participants {
		votes := in.VoteTotals[p.UserID]
		speaking := durations[p.UserID]

		speakingScore := speaking / 10
		if speakingScore > 30 {
			speakingScore = 30
		}
		voteScore := votes * 10
		if voteScore > 60 {
			voteScore = 60
		}
		sideBonus := 0
		if p.Side != nil {
			sideBonus = 5
		}

		scores = append(scores, participantScore{
			userID:          p.UserID,
			total:           40 + speakingScore + voteScore + sideBonus,
			votes:           votes,
			speakingSeconds: speaking,
		})
	}

	// Deterministic ordering: score desc, user ID as tiebreak.
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].total != scores[j].total {
			return scores[i].total > scores[j].total
		}
		return scores[i].userID.String() < scores[j].userID.String()
	})

	if len(scores) == 0 {
		return models.Evaluation{
			Summary: "No participants recorded for this match.",
			Details: []models.EvaluationDetail{},
		}, nil
	}

	winner := scores[0]
	final := winner.total
	if len(scores) > 1 {
		gap := winner.total - scores[1].total
		if gap < 0 {
			gap = -gap
		}
		if modifier := 15 - gap; modifier > 0 {
			final += modifier
		}
	}
	if final > 100 {
		final = 100
	}

	details := make([]models.EvaluationDetail, 0, len(scores))
	for _, s := range scores {
		details = append(details, models.EvaluationDetail{
			Metric:  s.userID.String(),
			Score:   s.total,
			Summary: fmt.Sprintf("%d votes, %ds speaking time", s.votes, s.speakingSeconds),
		})
	}

	winnerID := winner.userID
	return models.Evaluation{
		Score:    final,
		WinnerID: &winnerID,
		Summary: fmt.Sprintf("Audience favored %s with %d votes and %ds of spotlight.",
			winner.userID, winner.votes, winner.speakingSeconds),
		Details: details,
	}, nil
}

// speakingDurations sums whole seconds on the floor per speaker. A round
// still open at scoring time counts up to now.
func speakingDurations(rounds []models.Round, now time.Time) map[uuid.UUID]int {
	totals := make(map[uuid.UUID]int)
	for _, r := range rounds {
		end := now
		if r.EndedAt != nil {
			end = *r.EndedAt
		}
		d := end.Sub(r.StartedAt)
		if d < 0 {
			d = 0
		}
		totals[r.SpeakerID] += int(d.Seconds())
	}
	return totals
}

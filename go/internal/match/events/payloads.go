package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/echoplay/echoplay/go/internal/match/timer"
	"github.com/echoplay/echoplay/go/internal/models"
)

// RoomStatePayload is the full snapshot pushed to a joining observer and
// broadcast after every state-changing command. A late joiner's first
// snapshot equals what any connected observer would compute at the same
// instant.
type RoomStatePayload struct {
	Match        models.Match                `json:"match"`
	Participants []models.Participant        `json:"participants"`
	Round        *models.Round               `json:"round,omitempty"` // latest round, open or closed
	Timer        *timer.State                `json:"timer,omitempty"`
	Reactions    map[models.ReactionKind]int `json:"reactions"`
	Votes        map[string]int              `json:"votes"`
	Evaluation   *models.Evaluation          `json:"evaluation,omitempty"`
}

type RoundStartedPayload struct {
	Round models.Round `json:"round"`
	Timer timer.State  `json:"timer"`
}

type RoundEndedPayload struct {
	RoundID uuid.UUID `json:"round_id"`
	Number  int       `json:"number"`
	EndedAt time.Time `json:"ended_at"`
}

type TimerTickPayload struct {
	Remaining int `json:"remaining"`
}

type ReactionUpdatePayload struct {
	Counts map[models.ReactionKind]int `json:"counts"`
}

type VoteUpdatePayload struct {
	Totals map[string]int `json:"totals"`
}

type ScoreReadyPayload struct {
	Score    int                       `json:"score"`
	WinnerID *uuid.UUID                `json:"winner_user_id,omitempty"`
	Summary  string                    `json:"summary"`
	Details  []models.EvaluationDetail `json:"details"`
}

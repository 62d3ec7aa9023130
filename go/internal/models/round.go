package models

import (
	"time"

	"github.com/google/uuid"
)

// Round represents one timed speaking turn within a match.
// Rounds are identified by ID; Number is strictly increasing per match
// starting at 1 and exists for display ordering only.
type Round struct {
	ID        uuid.UUID  `json:"id"`
	MatchID   uuid.UUID  `json:"match_id"`
	Number    int        `json:"number"`
	SpeakerID uuid.UUID  `json:"speaker_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"` // nil while the speaker holds the floor
}

// Open reports whether the round is still in progress.
func (r Round) Open() bool {
	return r.EndedAt == nil
}

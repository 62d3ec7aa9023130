package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote represents one peer ballot. An identified voter holds at most one
// active ballot per match; casting again moves it. Anonymous ballots
// (VoterID invalid) are unattributed and each one counts separately.
type Vote struct {
	ID      uuid.UUID     `json:"id"`
	MatchID uuid.UUID     `json:"match_id"`
	VoterID uuid.NullUUID `json:"voter_id"`
	ForID   uuid.UUID     `json:"for_user_id"`
	CastAt  time.Time     `json:"cast_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant represents one user enrolled in a match.
type Participant struct {
	ID       uuid.UUID `json:"id"`
	MatchID  uuid.UUID `json:"match_id"`
	UserID   uuid.UUID `json:"user_id"`
	Side     *string   `json:"side,omitempty"` // "HOST", "A"/"B" in couple mode, nil otherwise
	JoinedAt time.Time `json:"joined_at"`
}

const SideHost = "HOST"

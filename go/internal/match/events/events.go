// Package events defines the wire envelope and payloads broadcast to
// match observers, plus the outbound publisher that mirrors committed
// events onto the message bus for downstream consumers (leaderboard,
// analytics).
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type enumerates every event broadcast to a match room.
type Type string

const (
	TypeRoomState      Type = "room_state"
	TypeRoundStarted   Type = "round_started"
	TypeRoundEnded     Type = "round_ended"
	TypeTimerTick      Type = "timer_tick"
	TypeReactionUpdate Type = "reaction_update"
	TypeVoteUpdate     Type = "vote_update"
	TypeScoreReady     Type = "score_ready"
)

// Event is the envelope every broadcast travels in.
type Event struct {
	ID        string          `json:"id"`
	MatchID   string          `json:"match_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// New wraps a payload in an envelope.
func New(matchID uuid.UUID, t Type, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		MatchID:   matchID.String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// Mode defines which kind of audience a match is set up for.
type Mode string

const (
	ModeSolo   Mode = "SOLO"
	ModeFamily Mode = "FAMILY"
	ModeCouple Mode = "COUPLE"
	ModeGlobal Mode = "GLOBAL"
)

// MatchStatus defines the lifecycle status of a match.
// Transitions are LOBBY -> LIVE -> SCORED, or LIVE -> ENDED on abnormal close.
type MatchStatus string

const (
	MatchStatusLobby  MatchStatus = "LOBBY"
	MatchStatusLive   MatchStatus = "LIVE"
	MatchStatusScored MatchStatus = "SCORED"
	MatchStatusEnded  MatchStatus = "ENDED"
)

// Match represents one debate instance.
type Match struct {
	ID        uuid.UUID   `json:"id"`
	Mode      Mode        `json:"mode"`
	Topic     string      `json:"topic"`
	Status    MatchStatus `json:"status"`
	HostID    uuid.UUID   `json:"host_id"`
	RoomName  string      `json:"room_name"` // media room provisioned for live audio
	Score     *int        `json:"score,omitempty"`
	WinnerID  *uuid.UUID  `json:"winner_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// DefaultTopic returns the fallback debate topic for a mode.
func DefaultTopic(mode Mode) string {
	switch mode {
	case ModeSolo:
		return "What new skill should everyone learn this year?"
	case ModeFamily:
		return "How should families balance screen time and play?"
	case ModeCouple:
		return "What makes a perfect unplugged date night?"
	case ModeGlobal:
		return "Should AI moderators shape online debates?"
	default:
		return "Open floor: convince the room of anything."
	}
}

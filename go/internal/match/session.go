package match

import (
	"time"

	"github.com/google/uuid"

	"github.com/echoplay/echoplay/go/internal/models"
)

// Session is the authoritative in-memory state for one live match. It is
// owned by the Registry and only ever touched on the session's turn (see
// Registry.Do), so none of its methods lock.
//
// Mutators assume the caller has already validated the move and durably
// persisted it; validation helpers are separate so a failed store write
// leaves the session untouched.
type Session struct {
	match        models.Match
	participants []models.Participant
	rounds       []models.Round
	reactions    *ReactionTally
	votes        *VoteTally
	evaluation   *models.Evaluation
}

// SessionSnapshot is the durable image of a session, as loaded from or
// written to the persistent store.
type SessionSnapshot struct {
	Match        models.Match
	Participants []models.Participant
	Rounds       []models.Round
}

func NewSession(snap SessionSnapshot) *Session {
	s := &Session{
		match:        snap.Match,
		participants: append([]models.Participant(nil), snap.Participants...),
		rounds:       append([]models.Round(nil), snap.Rounds...),
		reactions:    NewReactionTally(),
		votes:        NewVoteTally(),
	}
	if snap.Match.Score != nil {
		s.evaluation = &models.Evaluation{Score: *snap.Match.Score, WinnerID: snap.Match.WinnerID}
	}
	return s
}

func (s *Session) Match() models.Match { return s.match }

func (s *Session) Participants() []models.Participant {
	return append([]models.Participant(nil), s.participants...)
}

func (s *Session) Rounds() []models.Round {
	return append([]models.Round(nil), s.rounds...)
}

// Participant looks up a participant record by user ID.
func (s *Session) Participant(userID uuid.UUID) (models.Participant, bool) {
	for _, p := range s.participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return models.Participant{}, false
}

func (s *Session) IsHost(userID uuid.UUID) bool { return s.match.HostID == userID }

// OpenRound returns the single round with no end time, if any. The session
// invariant is that at most one such round exists.
func (s *Session) OpenRound() (models.Round, bool) {
	for i := len(s.rounds) - 1; i >= 0; i-- {
		if s.rounds[i].Open() {
			return s.rounds[i], true
		}
	}
	return models.Round{}, false
}

// LatestRound returns the highest-numbered round, open or not.
func (s *Session) LatestRound() (models.Round, bool) {
	if len(s.rounds) == 0 {
		return models.Round{}, false
	}
	return s.rounds[len(s.rounds)-1], true
}

// NextRoundNumber allocates the next display number: previous max + 1.
func (s *Session) NextRoundNumber() int {
	max := 0
	for _, r := range s.rounds {
		if r.Number > max {
			max = r.Number
		}
	}
	return max + 1
}

// CanStartRound validates the state machine for a round start without
// mutating anything.
func (s *Session) CanStartRound() error {
	if s.match.Status != models.MatchStatusLive {
		return ErrInvalidTransition
	}
	if _, open := s.OpenRound(); open {
		return ErrInvalidTransition
	}
	return nil
}

// CanTransition reports whether the match status may move to next.
// LOBBY -> LIVE -> SCORED, with LIVE -> ENDED on abnormal close.
func (s *Session) CanTransition(next models.MatchStatus) bool {
	switch s.match.Status {
	case models.MatchStatusLobby:
		return next == models.MatchStatusLive
	case models.MatchStatusLive:
		return next == models.MatchStatusScored || next == models.MatchStatusEnded
	default:
		return false
	}
}

func (s *Session) Evaluation() *models.Evaluation { return s.evaluation }

func (s *Session) Reactions() *ReactionTally { return s.reactions }

func (s *Session) Votes() *VoteTally { return s.votes }

// --- mutators: call only after the corresponding durable write succeeded ---

func (s *Session) AddParticipant(p models.Participant) {
	s.participants = append(s.participants, p)
}

func (s *Session) SetLive(startedAt time.Time) {
	s.match.Status = models.MatchStatusLive
	s.match.StartedAt = &startedAt
}

func (s *Session) AppendRound(r models.Round) {
	s.rounds = append(s.rounds, r)
}

// CloseOpenRound stamps the open round's end time and returns the closed
// round. Closing when nothing is open is a no-op reporting false.
func (s *Session) CloseOpenRound(endedAt time.Time) (models.Round, bool) {
	for i := len(s.rounds) - 1; i >= 0; i-- {
		if s.rounds[i].Open() {
			t := endedAt
			s.rounds[i].EndedAt = &t
			return s.rounds[i], true
		}
	}
	return models.Round{}, false
}

// SetScored caches the evaluation and moves the match to SCORED.
func (s *Session) SetScored(eval models.Evaluation, endedAt time.Time) {
	s.match.Status = models.MatchStatusScored
	s.match.Score = &eval.Score
	s.match.WinnerID = eval.WinnerID
	s.match.EndedAt = &endedAt
	s.evaluation = &eval
}

// SetEnded marks an abnormal close.
func (s *Session) SetEnded(endedAt time.Time) {
	s.match.Status = models.MatchStatusEnded
	s.match.EndedAt = &endedAt
}

// AssignSide picks the side tag for a joining participant. Couple mode
// alternates A/B; other modes carry no side.
func (s *Session) AssignSide() *string {
	if s.match.Mode != models.ModeCouple {
		return nil
	}
	side := "A"
	if len(s.participants)%2 != 0 {
		side = "B"
	}
	return &side
}

package match

import (
	"github.com/google/uuid"

	"github.com/echoplay/echoplay/go/internal/models"
)

// ReactionTally accumulates audience reactions for one match. Counts only
// ever grow; the tally dies with the session.
type ReactionTally struct {
	counts map[models.ReactionKind]int
}

func NewReactionTally() *ReactionTally {
	t := &ReactionTally{counts: make(map[models.ReactionKind]int, 4)}
	for _, kind := range models.ReactionKinds() {
		t.counts[kind] = 0
	}
	return t
}

// Add increments one counter and returns the full snapshot, so late joiners
// can always ask for current state instead of replaying history.
func (t *ReactionTally) Add(kind models.ReactionKind) map[models.ReactionKind]int {
	t.counts[kind]++
	return t.Counts()
}

// Counts returns a copy carrying every kind, including zeroes.
func (t *ReactionTally) Counts() map[models.ReactionKind]int {
	out := make(map[models.ReactionKind]int, len(t.counts))
	for kind, n := range t.counts {
		out[kind] = n
	}
	return out
}

// VoteTally tracks peer votes for one match. An identified voter holds at
// most one active ballot; casting again moves it to the new target.
// Anonymous ballots are unattributed and always add a new unit.
type VoteTally struct {
	ballots map[uuid.UUID]uuid.UUID // voter -> current target
	anon    map[uuid.UUID]int       // target -> unattributed ballot count
}

func NewVoteTally() *VoteTally {
	return &VoteTally{
		ballots: make(map[uuid.UUID]uuid.UUID),
		anon:    make(map[uuid.UUID]int),
	}
}

// Cast records a ballot and returns the recomputed totals.
func (t *VoteTally) Cast(voter uuid.NullUUID, target uuid.UUID) map[string]int {
	if voter.Valid {
		t.ballots[voter.UUID] = target
	} else {
		t.anon[target]++
	}
	return t.Totals()
}

// Totals returns vote counts keyed by target user ID. Targets with no votes
// are omitted, matching the wire shape clients already consume.
func (t *VoteTally) Totals() map[string]int {
	out := make(map[string]int)
	for _, target := range t.ballots {
		out[target.String()]++
	}
	for target, n := range t.anon {
		out[target.String()] += n
	}
	return out
}

// TotalsByUser is Totals keyed by UUID, for the evaluator.
func (t *VoteTally) TotalsByUser() map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	for _, target := range t.ballots {
		out[target]++
	}
	for target, n := range t.anon {
		out[target] += n
	}
	return out
}

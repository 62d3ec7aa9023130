package models

// ReactionKind defines the fixed set of audience reactions.
type ReactionKind string

const (
	ReactionHeart  ReactionKind = "heart"
	ReactionThumbs ReactionKind = "thumbs"
	ReactionLaugh  ReactionKind = "laugh"
	ReactionFlame  ReactionKind = "flame"
)

// ReactionKinds lists every kind in baseline order. Count snapshots always
// carry all kinds so late joiners never have to replay history.
func ReactionKinds() []ReactionKind {
	return []ReactionKind{ReactionHeart, ReactionThumbs, ReactionLaugh, ReactionFlame}
}

// ParseReactionKind normalizes client input. Unknown kinds fall back to
// heart, matching the mobile client's default reaction button.
func ParseReactionKind(s string) ReactionKind {
	switch ReactionKind(s) {
	case ReactionHeart, ReactionThumbs, ReactionLaugh, ReactionFlame:
		return ReactionKind(s)
	default:
		return ReactionHeart
	}
}

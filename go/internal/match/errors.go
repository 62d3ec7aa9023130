package match

import "errors"

// Command-level error taxonomy. Every failure surfaced to a client maps to
// one of these; they are recovered locally and never take down a session
// worker or another participant's connection.
var (
	// ErrUnauthenticated means no credential or an invalid one accompanied the command.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrUnauthorized means the identity is valid but lacks the role for the action.
	ErrUnauthorized = errors.New("not allowed for this participant")

	// ErrNotFound means the match is unknown or was evicted mid-command.
	ErrNotFound = errors.New("match not found")

	// ErrNoRound means there is no round to act on.
	ErrNoRound = errors.New("no round to end")

	// ErrInvalidTransition means the state machine rejected the requested move.
	ErrInvalidTransition = errors.New("invalid match state for this action")

	// ErrTargetNotInMatch means the referenced user is not a participant of the match.
	ErrTargetNotInMatch = errors.New("user is not part of this match")

	// ErrUpstreamFailure means a collaborator (store, evaluator, provisioning)
	// failed or timed out. In-memory state is left untouched and the command
	// may be retried.
	ErrUpstreamFailure = errors.New("upstream collaborator failed")
)

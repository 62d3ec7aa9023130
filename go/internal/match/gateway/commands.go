package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/echoplay/echoplay/go/internal/match"
	"github.com/echoplay/echoplay/go/internal/match/events"
	"github.com/echoplay/echoplay/go/internal/models"
)

// Client command vocabulary. Every command is acked on the issuing
// connection; state changes reach the room through broadcasts.
const (
	CmdJoinRoom     = "join_room"
	CmdStartDebate  = "start_debate"
	CmdStartRound   = "start_round"
	CmdEndRound     = "end_round"
	CmdReaction     = "submit_reaction"
	CmdVote         = "submit_vote"
	CmdRequestScore = "request_ai_score"
)

// CredentialVerifier checks a bearer credential and resolves the caller.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Core defines what the dispatcher needs from the match application.
type Core interface {
	JoinMatch(ctx context.Context, matchID, userID uuid.UUID) (match.JoinMatchResult, error)
	StartMatch(ctx context.Context, matchID uuid.UUID, actor match.Actor, speakerID uuid.NullUUID, durationSec int) (match.StartRoundResult, error)
	StartRound(ctx context.Context, matchID uuid.UUID, actor match.Actor, speakerID uuid.NullUUID, durationSec int) (match.StartRoundResult, error)
	EndRound(ctx context.Context, matchID uuid.UUID, actor match.Actor) (match.EndRoundResult, error)
	React(ctx context.Context, matchID uuid.UUID, userID uuid.NullUUID, kind string) (map[models.ReactionKind]int, error)
	Vote(ctx context.Context, matchID uuid.UUID, voterID uuid.NullUUID, forUserID uuid.UUID) (map[string]int, error)
	RequestScore(ctx context.Context, matchID uuid.UUID, actor match.Actor) (match.ScoreResult, error)
	Snapshot(ctx context.Context, matchID uuid.UUID) (events.RoomStatePayload, error)
}

// ClientCommand is the wire shape of every inbound WebSocket message.
type ClientCommand struct {
	Type        string     `json:"type"`
	MatchID     uuid.UUID  `json:"match_id"`
	Token       string     `json:"token,omitempty"`
	SpeakerID   *uuid.UUID `json:"speaker_id,omitempty"`
	DurationSec int        `json:"duration_sec,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	ForUserID   *uuid.UUID `json:"for_user_id,omitempty"`
}

// Ack is the per-command reply sent back on the issuing connection.
type Ack struct {
	Type  string          `json:"type"`
	Cmd   string          `json:"cmd"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Dispatcher routes client commands to the match core. Credentials are
// verified lazily: the first command carrying a token resolves it and the
// identity sticks to the connection for its lifetime.
type Dispatcher struct {
	core     Core
	verifier CredentialVerifier
	manager  *ConnectionManager
	timeout  time.Duration
}

// NewDispatcher creates a command dispatcher and installs it on the
// connection manager.
func NewDispatcher(core Core, verifier CredentialVerifier, manager *ConnectionManager) *Dispatcher {
	d := &Dispatcher{
		core:     core,
		verifier: verifier,
		manager:  manager,
		timeout:  15 * time.Second,
	}
	manager.SetDispatcher(d.Dispatch)
	return d
}

// Dispatch handles one raw client message.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Connection, raw []byte) {
	var cmd ClientCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		d.nack(c, "", "malformed command")
		return
	}
	if cmd.MatchID == uuid.Nil {
		d.nack(c, cmd.Type, "match_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch cmd.Type {
	case CmdJoinRoom:
		d.handleJoin(ctx, c, cmd)
	case CmdStartDebate:
		d.handleStart(ctx, c, cmd, d.core.StartMatch)
	case CmdStartRound:
		d.handleStart(ctx, c, cmd, d.core.StartRound)
	case CmdEndRound:
		d.handleEndRound(ctx, c, cmd)
	case CmdReaction:
		d.handleReaction(ctx, c, cmd)
	case CmdVote:
		d.handleVote(ctx, c, cmd)
	case CmdRequestScore:
		d.handleRequestScore(ctx, c, cmd)
	default:
		d.nack(c, cmd.Type, "unknown command")
	}
}

// handleJoin registers the connection as an observer and, when the caller
// is authenticated, enrolls them as a participant. The joiner alone gets
// a room_state snapshot; the room is not re-broadcast for a lurker.
func (d *Dispatcher) handleJoin(ctx context.Context, c *Connection, cmd ClientCommand) {
	id, err := d.authenticate(ctx, c, cmd.Token)
	if err != nil {
		d.nack(c, cmd.Type, "invalid credential")
		return
	}

	if err := d.manager.JoinMatch(ctx, c, cmd.MatchID); err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}

	if id != nil {
		if _, err := d.core.JoinMatch(ctx, cmd.MatchID, id.UserID); err != nil {
			d.nackErr(c, cmd.Type, err)
			return
		}
	}

	snap, err := d.core.Snapshot(ctx, cmd.MatchID)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	ev, err := events.New(cmd.MatchID, events.TypeRoomState, snap)
	if err != nil {
		log.Error().Err(err).Str("match_id", cmd.MatchID.String()).Msg("could not build room state event")
		d.nack(c, cmd.Type, "internal error")
		return
	}
	d.ack(c, cmd.Type, nil)
	d.manager.SendTo(c, ev)
}

func (d *Dispatcher) handleStart(
	ctx context.Context, c *Connection, cmd ClientCommand,
	op func(context.Context, uuid.UUID, match.Actor, uuid.NullUUID, int) (match.StartRoundResult, error),
) {
	id, err := d.requireIdentity(ctx, c, cmd.Token)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}

	var speaker uuid.NullUUID
	if cmd.SpeakerID != nil {
		speaker = uuid.NullUUID{UUID: *cmd.SpeakerID, Valid: true}
	}
	res, err := op(ctx, cmd.MatchID, match.Actor{UserID: id.UserID}, speaker, cmd.DurationSec)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	d.ack(c, cmd.Type, res)
}

func (d *Dispatcher) handleEndRound(ctx context.Context, c *Connection, cmd ClientCommand) {
	id, err := d.requireIdentity(ctx, c, cmd.Token)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	res, err := d.core.EndRound(ctx, cmd.MatchID, match.Actor{UserID: id.UserID})
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	d.ack(c, cmd.Type, res)
}

// handleReaction accepts reactions from anyone in the room, credential
// or not. Unknown kinds degrade inside the core.
func (d *Dispatcher) handleReaction(ctx context.Context, c *Connection, cmd ClientCommand) {
	id, err := d.authenticate(ctx, c, cmd.Token)
	if err != nil {
		d.nack(c, cmd.Type, "invalid credential")
		return
	}
	var userID uuid.NullUUID
	if id != nil {
		userID = uuid.NullUUID{UUID: id.UserID, Valid: true}
	}
	counts, err := d.core.React(ctx, cmd.MatchID, userID, cmd.Kind)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	d.ack(c, cmd.Type, events.ReactionUpdatePayload{Counts: counts})
}

func (d *Dispatcher) handleVote(ctx context.Context, c *Connection, cmd ClientCommand) {
	if cmd.ForUserID == nil {
		d.nack(c, cmd.Type, "for_user_id is required")
		return
	}
	id, err := d.authenticate(ctx, c, cmd.Token)
	if err != nil {
		d.nack(c, cmd.Type, "invalid credential")
		return
	}
	var voterID uuid.NullUUID
	if id != nil {
		voterID = uuid.NullUUID{UUID: id.UserID, Valid: true}
	}
	totals, err := d.core.Vote(ctx, cmd.MatchID, voterID, *cmd.ForUserID)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	d.ack(c, cmd.Type, events.VoteUpdatePayload{Totals: totals})
}

func (d *Dispatcher) handleRequestScore(ctx context.Context, c *Connection, cmd ClientCommand) {
	id, err := d.requireIdentity(ctx, c, cmd.Token)
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	res, err := d.core.RequestScore(ctx, cmd.MatchID, match.Actor{UserID: id.UserID})
	if err != nil {
		d.nackErr(c, cmd.Type, err)
		return
	}
	d.ack(c, cmd.Type, res)
}

// authenticate resolves an optional credential. A connection keeps its
// first verified identity; later tokens on the same connection are
// ignored. Returns nil identity for anonymous callers.
func (d *Dispatcher) authenticate(ctx context.Context, c *Connection, token string) (*Identity, error) {
	if c.identity != nil {
		return c.identity, nil
	}
	if token == "" {
		return nil, nil
	}
	id, err := d.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	c.identity = &id
	return c.identity, nil
}

// requireIdentity is authenticate for commands that role-check.
func (d *Dispatcher) requireIdentity(ctx context.Context, c *Connection, token string) (*Identity, error) {
	id, err := d.authenticate(ctx, c, token)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, match.ErrUnauthenticated
	}
	return id, nil
}

func (d *Dispatcher) ack(c *Connection, cmdType string, data any) {
	a := Ack{Type: "ack", Cmd: cmdType, OK: true}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Error().Err(err).Str("cmd", cmdType).Msg("could not marshal ack data")
		} else {
			a.Data = raw
		}
	}
	d.manager.SendTo(c, a)
}

func (d *Dispatcher) nack(c *Connection, cmdType, reason string) {
	d.manager.SendTo(c, Ack{Type: "ack", Cmd: cmdType, OK: false, Error: reason})
}

// nackErr maps core sentinel errors onto stable client-facing reasons.
func (d *Dispatcher) nackErr(c *Connection, cmdType string, err error) {
	reason := "internal error"
	switch {
	case errors.Is(err, match.ErrUnauthenticated):
		reason = "authentication required"
	case errors.Is(err, match.ErrUnauthorized):
		reason = "not allowed"
	case errors.Is(err, match.ErrNotFound):
		reason = "match not found"
	case errors.Is(err, match.ErrNoRound):
		reason = "no round to end"
	case errors.Is(err, match.ErrInvalidTransition):
		reason = "invalid match state"
	case errors.Is(err, match.ErrTargetNotInMatch):
		reason = "target is not in the match"
	case errors.Is(err, match.ErrUpstreamFailure):
		reason = "upstream failure"
	}
	log.Debug().Err(err).Str("cmd", cmdType).Str("reason", reason).Msg("command rejected")
	d.nack(c, cmdType, reason)
}

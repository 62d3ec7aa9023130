package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/echoplay/echoplay/go/internal/match"
	"github.com/echoplay/echoplay/go/internal/models"
	"github.com/echoplay/echoplay/go/internal/sqlutil"
)

// Repository implements match data access on Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new match repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateMatch persists a new match and its host participant in one txn.
func (r *Repository) CreateMatch(ctx context.Context, m models.Match, host models.Participant) error {
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO matches (id, mode, topic, status, host_id, room_name, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, string(m.Mode), m.Topic, string(m.Status), m.HostID, m.RoomName, m.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create match: %w", err)
		}
		if err := insertParticipant(ctx, tx, host); err != nil {
			return err
		}
		return nil
	})
}

// AddParticipant enrolls a user in a match. Re-joining the same match is
// a no-op thanks to the (match_id, user_id) unique constraint.
func (r *Repository) AddParticipant(ctx context.Context, p models.Participant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_participants (id, match_id, user_id, side, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, user_id) DO NOTHING`,
		p.ID, p.MatchID, p.UserID, sqlutil.ToSqlString(p.Side), p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

func insertParticipant(ctx context.Context, tx *sql.Tx, p models.Participant) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO match_participants (id, match_id, user_id, side, joined_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.MatchID, p.UserID, sqlutil.ToSqlString(p.Side), p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add participant: %w", err)
	}
	return nil
}

// LoadSession rehydrates the durable image of a match: the match row, its
// participants, and its rounds. Returns match.ErrNotFound for unknown IDs.
func (r *Repository) LoadSession(ctx context.Context, matchID uuid.UUID) (match.SessionSnapshot, error) {
	var snap match.SessionSnapshot

	var (
		mode, status string
		score        sql.NullInt32
		winnerID     uuid.NullUUID
		startedAt    sql.NullTime
		endedAt      sql.NullTime
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT id, mode, topic, status, host_id, room_name, score, winner_id, created_at, started_at, ended_at
		FROM matches WHERE id = $1`, matchID)
	err := row.Scan(
		&snap.Match.ID, &mode, &snap.Match.Topic, &status, &snap.Match.HostID,
		&snap.Match.RoomName, &score, &winnerID, &snap.Match.CreatedAt, &startedAt, &endedAt,
	)
	if err == sql.ErrNoRows {
		return match.SessionSnapshot{}, match.ErrNotFound
	}
	if err != nil {
		return match.SessionSnapshot{}, fmt.Errorf("failed to get match: %w", err)
	}
	snap.Match.Mode = models.Mode(mode)
	snap.Match.Status = models.MatchStatus(status)
	snap.Match.Score = sqlutil.FromSqlInt32(score)
	snap.Match.WinnerID = sqlutil.FromNullUUID(winnerID)
	snap.Match.StartedAt = sqlutil.FromSqlTime(startedAt)
	snap.Match.EndedAt = sqlutil.FromSqlTime(endedAt)

	snap.Participants, err = r.listParticipants(ctx, matchID)
	if err != nil {
		return match.SessionSnapshot{}, err
	}
	snap.Rounds, err = r.listRounds(ctx, matchID)
	if err != nil {
		return match.SessionSnapshot{}, err
	}
	return snap, nil
}

func (r *Repository) listParticipants(ctx context.Context, matchID uuid.UUID) ([]models.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, user_id, side, joined_at
		FROM match_participants WHERE match_id = $1
		ORDER BY joined_at, id`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	var out []models.Participant
	for rows.Next() {
		var p models.Participant
		var side sql.NullString
		if err := rows.Scan(&p.ID, &p.MatchID, &p.UserID, &side, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		p.Side = sqlutil.FromSqlStringPtr(side)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) listRounds(ctx context.Context, matchID uuid.UUID) ([]models.Round, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, number, speaker_id, started_at, ended_at
		FROM rounds WHERE match_id = $1
		ORDER BY number`, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	var out []models.Round
	for rows.Next() {
		var rd models.Round
		var endedAt sql.NullTime
		if err := rows.Scan(&rd.ID, &rd.MatchID, &rd.Number, &rd.SpeakerID, &rd.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rd.EndedAt = sqlutil.FromSqlTime(endedAt)
		out = append(out, rd)
	}
	return out, rows.Err()
}

// StartMatch moves the match to LIVE and opens round #1 atomically.
func (r *Repository) StartMatch(ctx context.Context, matchID uuid.UUID, startedAt time.Time, first models.Round) error {
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE matches SET status = $1, started_at = $2
			WHERE id = $3 AND status = $4`,
			string(models.MatchStatusLive), startedAt, matchID, string(models.MatchStatusLobby),
		)
		if err != nil {
			return fmt.Errorf("failed to start match: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("failed to start match %s: not in lobby", matchID)
		}
		return insertRound(ctx, tx, first)
	})
}

// AppendRound persists a newly opened round.
func (r *Repository) AppendRound(ctx context.Context, rd models.Round) error {
	return sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		return insertRound(ctx, tx, rd)
	})
}

func insertRound(ctx context.Context, tx *sql.Tx, rd models.Round) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO rounds (id, match_id, number, speaker_id, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rd.ID, rd.MatchID, rd.Number, rd.SpeakerID, rd.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append round: %w", err)
	}
	return nil
}

// CloseRound stamps a round's end time. Closing an already-closed round is
// a no-op; the first end time wins.
func (r *Repository) CloseRound(ctx context.Context, roundID uuid.UUID, endedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rounds SET ended_at = $1
		WHERE id = $2 AND ended_at IS NULL`,
		endedAt, roundID,
	)
	if err != nil {
		return fmt.Errorf("failed to close round: %w", err)
	}
	return nil
}

// RecordReaction appends one audience reaction.
func (r *Repository) RecordReaction(ctx context.Context, matchID uuid.UUID, userID uuid.NullUUID, kind models.ReactionKind) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reactions (id, match_id, user_id, kind, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), matchID, userID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("failed to record reaction: %w", err)
	}
	return nil
}

// UpsertVote writes a ballot. An identified voter's ballot replaces their
// previous one via the partial unique index; anonymous ballots always insert.
func (r *Repository) UpsertVote(ctx context.Context, v models.Vote) error {
	if !v.VoterID.Valid {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO votes (id, match_id, voter_id, for_user_id, cast_at)
			VALUES ($1, $2, NULL, $3, $4)`,
			v.ID, v.MatchID, v.ForID, v.CastAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO votes (id, match_id, voter_id, for_user_id, cast_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, voter_id) WHERE voter_id IS NOT NULL
		DO UPDATE SET for_user_id = EXCLUDED.for_user_id, cast_at = EXCLUDED.cast_at`,
		v.ID, v.MatchID, v.VoterID.UUID, v.ForID, v.CastAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

// FinalizeMatch closes the match lifecycle: status, end time and, when the
// evaluator ran, the score with its full detail payload.
func (r *Repository) FinalizeMatch(ctx context.Context, matchID uuid.UUID, status models.MatchStatus, eval *models.Evaluation, endedAt time.Time) error {
	var (
		score    sql.NullInt32
		winnerID uuid.NullUUID
		details  pqtype.NullRawMessage
	)
	if eval != nil {
		score = sql.NullInt32{Int32: int32(eval.Score), Valid: true}
		if eval.WinnerID != nil {
			winnerID = uuid.NullUUID{UUID: *eval.WinnerID, Valid: true}
		}
		raw, err := json.Marshal(eval)
		if err != nil {
			return fmt.Errorf("failed to marshal evaluation: %w", err)
		}
		details = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET status = $1, score = $2, winner_id = $3, evaluation = $4, ended_at = $5
		WHERE id = $6`,
		string(status), score, winnerID, details, endedAt, matchID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize match: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return match.ErrNotFound
	}
	return nil
}

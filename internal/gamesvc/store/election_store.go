package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
)

const sessionColumns = `id, game_id, kind, question, started_at, ends_at, is_active,
	no_self_vote, tie_policy, duration_seconds, result, winner_option_id`

type ElectionStore struct {
	db *pgxpool.Pool
}

func NewElectionStore(db *pgxpool.Pool) *ElectionStore {
	return &ElectionStore{db: db}
}

func scanSession(row pgx.Row) (*models.ElectionSession, error) {
	s := &models.ElectionSession{}
	err := row.Scan(
		&s.ID,
		&s.GameID,
		&s.Kind,
		&s.Question,
		&s.StartedAt,
		&s.EndsAt,
		&s.IsActive,
		&s.NoSelfVote,
		&s.TiePolicy,
		&s.DurationSeconds,
		&s.Result,
		&s.WinnerOptionID,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ActiveSession returns the single active session of the given kind, or
// nil when the game is idle.
func (s *ElectionStore) ActiveSession(ctx context.Context, gameID string, kind models.SessionKind) (*models.ElectionSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM election_sessions
		WHERE game_id = $1 AND kind = $2 AND is_active = true
		ORDER BY started_at DESC
		LIMIT 1
	`
	session, err := scanSession(s.db.QueryRow(ctx, query, gameID, kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return session, nil
}

// CreateSession inserts the session and its candidate options in one
// transaction.
func (s *ElectionStore) CreateSession(ctx context.Context, session *models.ElectionSession, options []*models.VoteOption) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO election_sessions (game_id, kind, question, started_at, is_active,
			no_self_vote, tie_policy, duration_seconds, result)
		VALUES ($1,$2,$3,$4,true,$5,$6,$7,$8)
		RETURNING id
	`, session.GameID, session.Kind, session.Question, session.StartedAt,
		session.NoSelfVote, session.TiePolicy, session.DurationSeconds, models.ResultPending,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	for _, opt := range options {
		opt.SessionID = session.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO vote_options (session_id, player_id, label)
			VALUES ($1,$2,$3)
			RETURNING id
		`, opt.SessionID, opt.PlayerID, opt.Label).Scan(&opt.ID)
		if err != nil {
			return fmt.Errorf("failed to create option for player %d: %w", opt.PlayerID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *ElectionStore) GetOption(ctx context.Context, optionID int64) (*models.VoteOption, error) {
	opt := &models.VoteOption{}
	err := s.db.QueryRow(ctx, `
		SELECT id, session_id, player_id, label FROM vote_options WHERE id = $1
	`, optionID).Scan(&opt.ID, &opt.SessionID, &opt.PlayerID, &opt.Label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get option: %w", err)
	}
	return opt, nil
}

func (s *ElectionStore) GetOptionByPlayer(ctx context.Context, sessionID, playerID int64) (*models.VoteOption, error) {
	opt := &models.VoteOption{}
	err := s.db.QueryRow(ctx, `
		SELECT id, session_id, player_id, label
		FROM vote_options
		WHERE session_id = $1 AND player_id = $2
	`, sessionID, playerID).Scan(&opt.ID, &opt.SessionID, &opt.PlayerID, &opt.Label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get option by player: %w", err)
	}
	return opt, nil
}

// UpsertBallot stores the voter's choice; voting again before the session
// closes overwrites the previous ballot.
func (s *ElectionStore) UpsertBallot(ctx context.Context, sessionID, voterUserID, optionID int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO vote_ballots (session_id, voter_user_id, option_id, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (session_id, voter_user_id)
		DO UPDATE SET option_id = EXCLUDED.option_id, updated_at = EXCLUDED.updated_at
	`, sessionID, voterUserID, optionID, at)
	if err != nil {
		return fmt.Errorf("failed to cast ballot: %w", err)
	}
	return nil
}

func (s *ElectionStore) CountBallots(ctx context.Context, sessionID int64) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM vote_ballots WHERE session_id = $1
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ballots: %w", err)
	}
	return count, nil
}

// Tally orders by count descending then option id ascending so the same
// ballots always produce the same rows.
func (s *ElectionStore) Tally(ctx context.Context, sessionID int64) ([]models.TallyRow, error) {
	rows, err := s.db.Query(ctx, `
		SELECT option_id, COUNT(*) AS votes
		FROM vote_ballots
		WHERE session_id = $1
		GROUP BY option_id
		ORDER BY votes DESC, option_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to tally session %d: %w", sessionID, err)
	}
	defer rows.Close()

	var tally []models.TallyRow
	for rows.Next() {
		var row models.TallyRow
		if err := rows.Scan(&row.OptionID, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tally row: %w", err)
		}
		tally = append(tally, row)
	}
	return tally, rows.Err()
}

// CloseSession deactivates the session. Returns false when another worker
// already closed it, which callers treat as a no-op.
func (s *ElectionStore) CloseSession(ctx context.Context, sessionID int64, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE election_sessions SET is_active = false, ends_at = $2
		WHERE id = $1 AND is_active = true
	`, sessionID, at)
	if err != nil {
		return false, fmt.Errorf("failed to close session %d: %w", sessionID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ElectionStore) SetResult(ctx context.Context, sessionID int64, result models.ElectionResult, winnerOptionID *int64) error {
	_, err := s.db.Exec(ctx, `
		UPDATE election_sessions SET result = $2, winner_option_id = $3 WHERE id = $1
	`, sessionID, result, winnerOptionID)
	if err != nil {
		return fmt.Errorf("failed to set result for session %d: %w", sessionID, err)
	}
	return nil
}

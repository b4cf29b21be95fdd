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

const gameColumns = `id, name, creator_user_id, is_active, is_voting, start_time,
	entrepreneur_chance, election_interval_seconds, election_duration_seconds,
	last_election_time, voting_started_at, voting_paused_seconds,
	paused_at, total_paused_seconds, state_balance, bank_balance,
	created_at, updated_at`

type GameStore struct {
	db *pgxpool.Pool
}

func NewGameStore(db *pgxpool.Pool) *GameStore {
	return &GameStore{db: db}
}

func scanGame(row pgx.Row) (*models.Game, error) {
	g := &models.Game{}
	var intervalSec, durationSec int64
	err := row.Scan(
		&g.ID,
		&g.Name,
		&g.CreatorUserID,
		&g.IsActive,
		&g.IsVoting,
		&g.StartTime,
		&g.EntrepreneurChance,
		&intervalSec,
		&durationSec,
		&g.LastElectionTime,
		&g.VotingStartedAt,
		&g.VotingPausedSeconds,
		&g.PausedAt,
		&g.TotalPausedSeconds,
		&g.StateBalance,
		&g.BankBalance,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.ElectionInterval = time.Duration(intervalSec) * time.Second
	g.ElectionDuration = time.Duration(durationSec) * time.Second
	return g, nil
}

func (s *GameStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE id = $1`

	game, err := scanGame(s.db.QueryRow(ctx, query, gameID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // game not found
		}
		return nil, fmt.Errorf("failed to get game by ID: %w", err)
	}
	return game, nil
}

func (s *GameStore) CreateGame(ctx context.Context, g *models.Game) error {
	query := `
		INSERT INTO games (
			id, name, creator_user_id, is_active, is_voting, start_time,
			entrepreneur_chance, election_interval_seconds, election_duration_seconds,
			last_election_time, voting_paused_seconds, paused_at, total_paused_seconds,
			state_balance, bank_balance, created_at, updated_at
		) VALUES ($1,$2,$3,$4,false,$5,$6,$7,$8,$9,0,$10,0,$11,$12,now(),now())
	`
	_, err := s.db.Exec(ctx, query,
		g.ID, g.Name, g.CreatorUserID, g.IsActive, g.StartTime,
		g.EntrepreneurChance,
		int64(g.ElectionInterval.Seconds()), int64(g.ElectionDuration.Seconds()),
		g.LastElectionTime, g.PausedAt, g.StateBalance, g.BankBalance,
	)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	return nil
}

// DeleteGame removes the game row; players, sessions, ballots and asked
// questions cascade through foreign keys.
func (s *GameStore) DeleteGame(ctx context.Context, gameID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", gameID, err)
	}
	return nil
}

// PauseGame freezes the game clock. The guard makes a second pause a no-op
// so concurrent calls never double-record the pause instant.
func (s *GameStore) PauseGame(ctx context.Context, gameID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE games SET paused_at = $2, updated_at = now()
		WHERE id = $1 AND paused_at IS NULL
	`, gameID, at)
	if err != nil {
		return false, fmt.Errorf("failed to pause game %s: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ResumeGame folds the paused interval into the total, and into the
// election accumulator as well while a vote is running, in one statement
// so the interval is counted exactly once.
func (s *GameStore) ResumeGame(ctx context.Context, gameID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE games SET
			total_paused_seconds = total_paused_seconds
				+ CAST(EXTRACT(EPOCH FROM ($2::timestamptz - paused_at)) AS INT),
			voting_paused_seconds = voting_paused_seconds
				+ CASE WHEN is_voting
					THEN CAST(EXTRACT(EPOCH FROM ($2::timestamptz - paused_at)) AS INT)
					ELSE 0 END,
			paused_at = NULL,
			updated_at = now()
		WHERE id = $1 AND paused_at IS NOT NULL
	`, gameID, at)
	if err != nil {
		return false, fmt.Errorf("failed to resume game %s: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// BeginVoting flips the voting flag. Returns false when another tick or an
// early-quorum close already started a round.
func (s *GameStore) BeginVoting(ctx context.Context, gameID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE games SET
			is_voting = true,
			voting_started_at = $2,
			voting_paused_seconds = 0,
			updated_at = now()
		WHERE id = $1 AND is_voting = false
	`, gameID, at)
	if err != nil {
		return false, fmt.Errorf("failed to begin voting for game %s: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// EndVoting clears the voting flag and stamps last_election_time so the
// scheduler measures the next interval from the close.
func (s *GameStore) EndVoting(ctx context.Context, gameID string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE games SET
			is_voting = false,
			voting_started_at = NULL,
			last_election_time = $2,
			updated_at = now()
		WHERE id = $1 AND is_voting = true
	`, gameID, at)
	if err != nil {
		return false, fmt.Errorf("failed to end voting for game %s: %w", gameID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *GameStore) ListGamesDueForElection(ctx context.Context, now time.Time) ([]*models.Game, error) {
	query := `
		SELECT ` + gameColumns + `
		FROM games
		WHERE is_active = true
		  AND is_voting = false
		  AND last_election_time <= $1::timestamptz - make_interval(secs => election_interval_seconds)
	`
	return s.listGames(ctx, query, now)
}

func (s *GameStore) ListVotingGames(ctx context.Context) ([]*models.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE is_active = true AND is_voting = true`
	return s.listGames(ctx, query)
}

func (s *GameStore) listGames(ctx context.Context, query string, args ...any) ([]*models.Game, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

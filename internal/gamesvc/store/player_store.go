package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
)

const playerColumns = `id, game_id, user_id, username, role, special_role,
	money, influence, is_active, is_observer, joined_at`

type PlayerStore struct {
	db *pgxpool.Pool
}

func NewPlayerStore(db *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{db: db}
}

func scanPlayer(row pgx.Row) (*models.Player, error) {
	p := &models.Player{}
	err := row.Scan(
		&p.ID,
		&p.GameID,
		&p.UserID,
		&p.Username,
		&p.Role,
		&p.SpecialRole,
		&p.Money,
		&p.Influence,
		&p.IsActive,
		&p.IsObserver,
		&p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PlayerStore) GetPlayer(ctx context.Context, gameID string, userID int64) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE game_id = $1 AND user_id = $2`

	p, err := scanPlayer(s.db.QueryRow(ctx, query, gameID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return p, nil
}

func (s *PlayerStore) GetPlayerByID(ctx context.Context, playerID int64) (*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE id = $1`

	p, err := scanPlayer(s.db.QueryRow(ctx, query, playerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get player by ID: %w", err)
	}
	return p, nil
}

func (s *PlayerStore) ListPlayers(ctx context.Context, gameID string) ([]*models.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE game_id = $1 ORDER BY id`

	rows, err := s.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []*models.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player row: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// CountEligibleVoters counts active non-observers, the quorum base. Always
// evaluated at the moment of the call, not at session open.
func (s *PlayerStore) CountEligibleVoters(ctx context.Context, gameID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM players
		WHERE game_id = $1 AND is_active = true AND is_observer = false
	`, gameID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count eligible voters: %w", err)
	}
	return count, nil
}

func (s *PlayerStore) CountActive(ctx context.Context, gameID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM players WHERE game_id = $1 AND is_active = true
	`, gameID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active players: %w", err)
	}
	return count, nil
}

func (s *PlayerStore) CreatePlayer(ctx context.Context, p *models.Player) error {
	query := `
		INSERT INTO players (game_id, user_id, username, role, special_role,
			money, influence, is_active, is_observer, joined_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		RETURNING id, joined_at
	`
	err := s.db.QueryRow(ctx, query,
		p.GameID, p.UserID, p.Username, p.Role, p.SpecialRole,
		p.Money, p.Influence, p.IsActive, p.IsObserver,
	).Scan(&p.ID, &p.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (s *PlayerStore) SetActive(ctx context.Context, playerID int64, active bool) error {
	_, err := s.db.Exec(ctx, `
		UPDATE players SET is_active = $2 WHERE id = $1
	`, playerID, active)
	if err != nil {
		return fmt.Errorf("failed to set player %d active=%v: %w", playerID, active, err)
	}
	return nil
}

// UpgradeRole moves the player one step up the ladder and debits the chosen
// resource in the same guarded statement, so a concurrent drain of the
// balance cannot push it negative.
func (s *PlayerStore) UpgradeRole(ctx context.Context, playerID int64, role models.Role, moneyCost, influenceCost int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE players SET
			role = $2,
			money = money - $3,
			influence = influence - $4
		WHERE id = $1 AND money >= $3 AND influence >= $4 AND role < $2
	`, playerID, role, moneyCost, influenceCost)
	if err != nil {
		return false, fmt.Errorf("failed to upgrade player %d: %w", playerID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetSpecialRole assigns a special role to one player and strips it from
// whoever held it, in a single transaction so two holders can never be
// observed.
func (s *PlayerStore) SetSpecialRole(ctx context.Context, gameID string, playerID int64, role models.SpecialRole) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE players SET special_role = $3
		WHERE game_id = $1 AND special_role = $2 AND id <> $4
	`, gameID, role, models.SpecialNone, playerID)
	if err != nil {
		return fmt.Errorf("failed to clear special role %v: %w", role, err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE players SET special_role = $2 WHERE id = $1
	`, playerID, role)
	if err != nil {
		return fmt.Errorf("failed to assign special role %v to %d: %w", role, playerID, err)
	}

	return tx.Commit(ctx)
}

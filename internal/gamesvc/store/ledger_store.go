package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
)

// ErrInsufficientFunds is returned when the debited account cannot cover
// the transfer. The transaction rolls back and no balance changes.
var ErrInsufficientFunds = errors.New("insufficient funds")

type LedgerStore struct {
	db *pgxpool.Pool
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{db: db}
}

// Transfer moves funds between two accounts under row locks. The game row
// is locked only when a shared account is involved; player rows are locked
// in ascending id order so two opposing transfers cannot deadlock.
func (s *LedgerStore) Transfer(ctx context.Context, op models.TransferOp) error {
	if op.Amount <= 0 {
		return fmt.Errorf("invalid transfer amount: %d", op.Amount)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	shared := op.Debit.Kind != models.AccountPersonal || op.Credit.Kind != models.AccountPersonal

	var stateBalance, bankBalance int64
	if shared {
		err := tx.QueryRow(ctx, `
			SELECT state_balance, bank_balance FROM games WHERE id = $1 FOR UPDATE
		`, op.GameID).Scan(&stateBalance, &bankBalance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("game %s not found", op.GameID)
			}
			return fmt.Errorf("lock game balances: %w", err)
		}
	}

	playerMoney := map[int64]int64{}
	var playerIDs []int64
	for _, ref := range []models.AccountRef{op.Debit, op.Credit} {
		if ref.Kind == models.AccountPersonal {
			playerIDs = append(playerIDs, ref.PlayerID)
		}
	}
	sort.Slice(playerIDs, func(i, j int) bool { return playerIDs[i] < playerIDs[j] })
	for _, id := range playerIDs {
		var money int64
		err := tx.QueryRow(ctx, `
			SELECT money FROM players WHERE id = $1 AND game_id = $2 FOR UPDATE
		`, id, op.GameID).Scan(&money)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("player %d not found in game %s", id, op.GameID)
			}
			return fmt.Errorf("lock player balance: %w", err)
		}
		playerMoney[id] = money
	}

	var debitBalance int64
	switch op.Debit.Kind {
	case models.AccountPersonal:
		debitBalance = playerMoney[op.Debit.PlayerID]
	case models.AccountState:
		debitBalance = stateBalance
	case models.AccountBank:
		debitBalance = bankBalance
	}
	if debitBalance < op.Amount {
		return ErrInsufficientFunds
	}

	if err := s.applyDelta(ctx, tx, op.GameID, op.Debit, -op.Amount); err != nil {
		return err
	}
	if err := s.applyDelta(ctx, tx, op.GameID, op.Credit, op.Amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transfer %s: %w", op.Ref, err)
	}
	return nil
}

func (s *LedgerStore) applyDelta(ctx context.Context, tx pgx.Tx, gameID string, ref models.AccountRef, delta int64) error {
	switch ref.Kind {
	case models.AccountPersonal:
		_, err := tx.Exec(ctx, `
			UPDATE players SET money = money + $2 WHERE id = $1
		`, ref.PlayerID, delta)
		if err != nil {
			return fmt.Errorf("update player %d balance: %w", ref.PlayerID, err)
		}
	case models.AccountState:
		_, err := tx.Exec(ctx, `
			UPDATE games SET state_balance = state_balance + $2 WHERE id = $1
		`, gameID, delta)
		if err != nil {
			return fmt.Errorf("update state balance: %w", err)
		}
	case models.AccountBank:
		_, err := tx.Exec(ctx, `
			UPDATE games SET bank_balance = bank_balance + $2 WHERE id = $1
		`, gameID, delta)
		if err != nil {
			return fmt.Errorf("update bank balance: %w", err)
		}
	default:
		return fmt.Errorf("unknown account kind %d", ref.Kind)
	}
	return nil
}

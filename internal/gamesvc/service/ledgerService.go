package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
	"github.com/bizmono/monopoly-services/internal/gamesvc/store"
)

// LedgerStore executes one transfer atomically under row locks.
type LedgerStore interface {
	Transfer(ctx context.Context, op models.TransferOp) error
}

// Receiver names where a transfer lands: another player's personal
// account or one of the two shared accounts.
type Receiver struct {
	Kind     models.AccountKind
	PlayerID int64 // set when Kind is AccountPersonal
}

// LedgerService validates transfers and resolves which account funds a
// player's spending based on their special role.
type LedgerService struct {
	ledger   LedgerStore
	games    GameStore
	players  PlayerStore
	notifier notify.Notifier
}

func NewLedgerService(ledger LedgerStore, games GameStore, players PlayerStore, notifier notify.Notifier) *LedgerService {
	return &LedgerService{
		ledger:   ledger,
		games:    games,
		players:  players,
		notifier: notifier,
	}
}

// ResolveAccount picks the account a transfer debits. The Politician
// always spends state money; a Banker spends bank money only on explicit
// request; everyone else spends their own, whatever the hint says.
func ResolveAccount(actor *models.Player, source string) (models.AccountRef, error) {
	switch source {
	case "", "personal", "state", "bank":
	default:
		return models.AccountRef{}, Validationf("unknown source account %q", source)
	}

	switch actor.SpecialRole {
	case models.SpecialPolitician:
		return models.AccountRef{Kind: models.AccountState}, nil
	case models.SpecialBanker:
		if source == "bank" {
			return models.AccountRef{Kind: models.AccountBank}, nil
		}
		return models.AccountRef{Kind: models.AccountPersonal, PlayerID: actor.ID}, nil
	case models.SpecialNone:
		return models.AccountRef{Kind: models.AccountPersonal, PlayerID: actor.ID}, nil
	}
	return models.AccountRef{Kind: models.AccountPersonal, PlayerID: actor.ID}, nil
}

// Transfer moves amount from the actor's resolved account to the
// receiver. A player receiver is always credited on their personal
// account; bank and state receivers credit the shared balance.
func (s *LedgerService) Transfer(ctx context.Context, gameID string, actorUserID int64, receiver Receiver, amount int64, source string) error {
	if amount <= 0 {
		return Validationf("amount must be a positive number")
	}

	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return NotFoundf("game not found")
	}

	actor, err := s.players.GetPlayer(ctx, gameID, actorUserID)
	if err != nil {
		return err
	}
	if actor == nil {
		return NotFoundf("you are not part of this game")
	}
	if actor.IsObserver {
		return Validationf("observers cannot transfer money")
	}

	credit := models.AccountRef{Kind: receiver.Kind}
	var target *models.Player
	if receiver.Kind == models.AccountPersonal {
		target, err = s.players.GetPlayerByID(ctx, receiver.PlayerID)
		if err != nil {
			return err
		}
		if target == nil || target.GameID != gameID {
			return NotFoundf("receiver not found in this game")
		}
		if target.ID == actor.ID {
			return Validationf("you cannot transfer money to yourself")
		}
		if target.IsObserver {
			return Validationf("observers cannot receive money")
		}
		credit.PlayerID = target.ID
	}

	debit, err := ResolveAccount(actor, source)
	if err != nil {
		return err
	}

	op := models.TransferOp{
		GameID: gameID,
		Debit:  debit,
		Credit: credit,
		Amount: amount,
		Ref:    fmt.Sprintf("TXF-%s", uuid.New().String()[:8]),
	}
	if err := s.ledger.Transfer(ctx, op); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return Validationf("insufficient funds on the selected account")
		}
		return err
	}

	switch receiver.Kind {
	case models.AccountPersonal:
		s.notifier.SendPersonal(ctx, actor.UserID,
			fmt.Sprintf("Transferred %d to %s.", amount, target.Username), notify.LevelSuccess, nil)
		s.notifier.SendPersonal(ctx, target.UserID,
			fmt.Sprintf("%s sent you %d.", actor.Username, amount), notify.LevelInfo, nil)
	default:
		s.notifier.SendPersonal(ctx, actor.UserID,
			fmt.Sprintf("Transferred %d to the %s account.", amount, receiver.Kind), notify.LevelSuccess, nil)
	}
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

package notify

import (
	"context"
	"time"

	"github.com/bizmono/monopoly-services/internal/comm"
	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
)

// Level classifies a personal message for the client UI.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event tags pushed to every subscriber of a game room.
const (
	EventVotingStarted = "voting_started"
	EventVotingEnded   = "voting_ended"
	EventGameDeleted   = "game_deleted"
)

// Notifier is the delivery contract the game services call into. Every
// method is fire-and-forget: implementations log failures locally and a
// delivery outage never fails the state mutation that triggered it.
type Notifier interface {
	BroadcastGameState(ctx context.Context, gameID string)
	NotifyEvent(ctx context.Context, gameID string, event string)
	SendPersonal(ctx context.Context, userID int64, message string, level Level, extra map[string]any)
	BroadcastPersonalToGame(ctx context.Context, gameID string, message string, level Level, extra map[string]any, includeObservers, activeOnly bool)
}

// GameReader and PlayerLister are the read surface a notifier needs to
// build snapshots without depending on the store package.
type GameReader interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
}

type PlayerLister interface {
	ListPlayers(ctx context.Context, gameID string) ([]*models.Player, error)
}

// BuildGameState assembles the snapshot clients render: every active
// player plus the voting/pause flags and the election countdown.
func BuildGameState(ctx context.Context, games GameReader, players PlayerLister, gameID string, now time.Time) (*comm.GameStateData, error) {
	game, err := games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, nil
	}

	list, err := players.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}

	state := &comm.GameStateData{
		GameID:   gameID,
		IsVoting: game.IsVoting,
		Paused:   game.IsPaused(),
	}
	if game.IsVoting {
		state.ElectionRemaining = game.ElectionRemainingSeconds(now)
	}
	for _, p := range list {
		if !p.IsActive {
			continue
		}
		state.Players = append(state.Players, comm.PlayerState{
			ID:          p.ID,
			Username:    p.Username,
			Money:       p.Money,
			Influence:   p.Influence,
			Role:        p.DisplayRole(),
			RoleID:      int(p.Role),
			SpecialRole: int(p.SpecialRole),
			IsObserver:  p.IsObserver,
			IsActive:    p.IsActive,
		})
	}
	return state, nil
}

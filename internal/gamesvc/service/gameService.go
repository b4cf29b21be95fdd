package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
)

// GameStore is the game persistence surface. Implemented by
// store.GameStore; tests use an in-memory double. Every state-flag
// transition is guarded in the store so concurrent callers resolve to
// exactly one winner and the rest see a no-op.
type GameStore interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	CreateGame(ctx context.Context, g *models.Game) error
	DeleteGame(ctx context.Context, gameID string) error
	PauseGame(ctx context.Context, gameID string, at time.Time) (bool, error)
	ResumeGame(ctx context.Context, gameID string, at time.Time) (bool, error)
	BeginVoting(ctx context.Context, gameID string, at time.Time) (bool, error)
	EndVoting(ctx context.Context, gameID string, at time.Time) (bool, error)
	ListGamesDueForElection(ctx context.Context, now time.Time) ([]*models.Game, error)
	ListVotingGames(ctx context.Context) ([]*models.Game, error)
}

// ForceResult tells EndElection how the round is being closed.
type ForceResult int

const (
	ForceNone ForceResult = iota
	// ForceTimeout closes the round discarding any partial tally; the
	// scheduler uses it when time ran out short of quorum.
	ForceTimeout
)

// Config carries the economy constants new games and players start with.
type Config struct {
	StartingMoney        int64
	StartingStateBalance int64
	StartingBankBalance  int64
}

func DefaultConfig() Config {
	return Config{
		StartingMoney:        10000,
		StartingStateBalance: 100000,
		StartingBankBalance:  100000,
	}
}

// GameSettings are the per-game knobs fixed at creation.
type GameSettings struct {
	EntrepreneurChance float64
	ElectionInterval   time.Duration
	ElectionDuration   time.Duration
}

func DefaultGameSettings() GameSettings {
	return GameSettings{
		EntrepreneurChance: 0.3,
		ElectionInterval:   90 * time.Minute,
		ElectionDuration:   30 * time.Second,
	}
}

// GameService is the top-level session state machine: pause/resume, player
// membership, the role economy, special-role bookkeeping and the election
// resolution ladder.
type GameService struct {
	games     GameStore
	players   PlayerStore
	elections *ElectionService
	notifier  notify.Notifier
	cfg       Config

	now      func() time.Time
	roll     func() float64 // entrepreneur dice, [0,1)
	runAsync func(f func())
}

func NewGameService(games GameStore, players PlayerStore, elections *ElectionService, notifier notify.Notifier, cfg Config) *GameService {
	return &GameService{
		games:     games,
		players:   players,
		elections: elections,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		roll:      rand.Float64,
		runAsync:  func(f func()) { go f() },
	}
}

func (s *GameService) getGame(ctx context.Context, gameID string) (*models.Game, error) {
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, NotFoundf("game not found")
	}
	return game, nil
}

// CreateGame opens a new session. An empty game starts paused; the first
// join resumes the clock.
func (s *GameService) CreateGame(ctx context.Context, name string, creatorUserID int64, settings GameSettings) (*models.Game, error) {
	if name == "" {
		return nil, Validationf("game name must not be empty")
	}
	if settings.EntrepreneurChance < 0 || settings.EntrepreneurChance > 1 {
		return nil, Validationf("entrepreneur chance must be between 0 and 1")
	}
	if settings.ElectionInterval <= 0 || settings.ElectionDuration <= 0 {
		return nil, Validationf("election interval and duration must be positive")
	}

	now := s.now()
	game := &models.Game{
		ID:                 uuid.New().String(),
		Name:               name,
		CreatorUserID:      creatorUserID,
		IsActive:           true,
		StartTime:          now,
		EntrepreneurChance: settings.EntrepreneurChance,
		ElectionInterval:   settings.ElectionInterval,
		ElectionDuration:   settings.ElectionDuration,
		LastElectionTime:   now,
		PausedAt:           &now,
		StateBalance:       s.cfg.StartingStateBalance,
		BankBalance:        s.cfg.StartingBankBalance,
	}
	if err := s.games.CreateGame(ctx, game); err != nil {
		return nil, err
	}
	return game, nil
}

// DeleteGame removes the game and everything it owns. Creator only.
func (s *GameService) DeleteGame(ctx context.Context, gameID string, byUserID int64) error {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.CreatorUserID != byUserID {
		return Authorizationf("only the game creator can delete the game")
	}

	s.notifier.NotifyEvent(ctx, gameID, notify.EventGameDeleted)
	return s.games.DeleteGame(ctx, gameID)
}

// Pause freezes the game clock. Safe to call repeatedly; only the first
// call records the pause instant.
func (s *GameService) Pause(ctx context.Context, gameID string) error {
	if _, err := s.getGame(ctx, gameID); err != nil {
		return err
	}
	changed, err := s.games.PauseGame(ctx, gameID, s.now())
	if err != nil {
		return err
	}
	if changed {
		s.notifier.BroadcastGameState(ctx, gameID)
	}
	return nil
}

// Resume unfreezes the clock, folding the paused interval into the game
// total and, when an election was running, into its pause accumulator.
func (s *GameService) Resume(ctx context.Context, gameID string) error {
	if _, err := s.getGame(ctx, gameID); err != nil {
		return err
	}
	changed, err := s.games.ResumeGame(ctx, gameID, s.now())
	if err != nil {
		return err
	}
	if changed {
		s.notifier.BroadcastGameState(ctx, gameID)
	}
	return nil
}

// JoinGame adds the user to the game, rolling the starting role for first
// joins. Re-joining only reactivates the existing player, keeping money,
// role and history.
func (s *GameService) JoinGame(ctx context.Context, gameID string, userID int64, username string, observer bool) (*models.Player, error) {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	player, err := s.players.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if player != nil {
		if !player.IsActive {
			if err := s.players.SetActive(ctx, player.ID, true); err != nil {
				return nil, err
			}
			player.IsActive = true
		}
	} else {
		role := models.RoleUnemployed
		if !observer && s.roll() < game.EntrepreneurChance {
			role = models.RoleEntrepreneur
		}
		player = &models.Player{
			GameID:      gameID,
			UserID:      userID,
			Username:    username,
			Role:        role,
			SpecialRole: models.SpecialNone,
			Money:       s.cfg.StartingMoney,
			Influence:   0,
			IsActive:    true,
			IsObserver:  observer,
		}
		if err := s.players.CreatePlayer(ctx, player); err != nil {
			return nil, err
		}
	}

	s.updatePauseState(ctx, gameID)
	s.notifier.SendPersonal(ctx, userID, fmt.Sprintf("Welcome to %s!", game.Name), notify.LevelInfo, nil)
	s.notifier.BroadcastGameState(ctx, gameID)
	return player, nil
}

// LeaveGame deactivates the player without deleting the record.
func (s *GameService) LeaveGame(ctx context.Context, gameID string, userID int64) error {
	if _, err := s.getGame(ctx, gameID); err != nil {
		return err
	}
	player, err := s.players.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return err
	}
	if player == nil {
		return NotFoundf("you are not part of this game")
	}
	if err := s.players.SetActive(ctx, player.ID, false); err != nil {
		return err
	}

	s.updatePauseState(ctx, gameID)
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

// updatePauseState pauses an emptied game and resumes it once someone is
// back. Both store calls are guarded no-ops when already in that state.
func (s *GameService) updatePauseState(ctx context.Context, gameID string) {
	count, err := s.players.CountActive(ctx, gameID)
	if err != nil {
		log.Errorf("update pause state for game %s: %v", gameID, err)
		return
	}
	if count > 0 {
		_, err = s.games.ResumeGame(ctx, gameID, s.now())
	} else {
		_, err = s.games.PauseGame(ctx, gameID, s.now())
	}
	if err != nil {
		log.Errorf("update pause state for game %s: %v", gameID, err)
	}
}

// UpgradeRole climbs the ladder one step, paying with money when it
// covers the cost and with influence otherwise. Failures are reported to
// the actor only.
func (s *GameService) UpgradeRole(ctx context.Context, gameID string, userID int64) error {
	if _, err := s.getGame(ctx, gameID); err != nil {
		return err
	}
	player, err := s.players.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return err
	}
	if player == nil {
		return NotFoundf("you are not part of this game")
	}
	if player.SpecialRole != models.SpecialNone {
		return Validationf("special role holders cannot upgrade")
	}

	next, cost, ok := player.Role.Next()
	if !ok {
		return Validationf("you are already at the top of the ladder")
	}

	var moneyCost, influenceCost int64
	switch {
	case player.Money >= cost.Money:
		moneyCost = cost.Money
	case player.Influence >= cost.Influence:
		influenceCost = cost.Influence
	default:
		return Validationf("you need %d money or %d influence to become a %s", cost.Money, cost.Influence, next)
	}

	upgraded, err := s.players.UpgradeRole(ctx, player.ID, next, moneyCost, influenceCost)
	if err != nil {
		return err
	}
	if !upgraded {
		// balance changed under us between the read and the guarded update
		return Validationf("you need %d money or %d influence to become a %s", cost.Money, cost.Influence, next)
	}

	s.notifier.SendPersonal(ctx, userID, fmt.Sprintf("You are now a %s.", next), notify.LevelSuccess, nil)
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

func (s *GameService) IsPolitician(ctx context.Context, gameID string, userID int64) (bool, error) {
	player, err := s.players.GetPlayer(ctx, gameID, userID)
	if err != nil {
		return false, err
	}
	return player != nil && player.SpecialRole == models.SpecialPolitician, nil
}

// ChooseBanker installs the Politician's pick as the game's single Banker.
func (s *GameService) ChooseBanker(ctx context.Context, gameID string, actorUserID, targetPlayerID int64) error {
	if _, err := s.getGame(ctx, gameID); err != nil {
		return err
	}
	actor, err := s.players.GetPlayer(ctx, gameID, actorUserID)
	if err != nil {
		return err
	}
	if actor == nil {
		return NotFoundf("you are not part of this game")
	}
	if actor.SpecialRole != models.SpecialPolitician {
		return Authorizationf("only the Politician can appoint a Banker")
	}

	target, err := s.players.GetPlayerByID(ctx, targetPlayerID)
	if err != nil {
		return err
	}
	if target == nil || target.GameID != gameID {
		return NotFoundf("player not found in this game")
	}
	if !target.IsActive || target.IsObserver {
		return Validationf("the Banker must be an active player, not an observer")
	}
	if target.SpecialRole == models.SpecialPolitician {
		return Validationf("the Politician cannot also be the Banker")
	}

	if err := s.players.SetSpecialRole(ctx, gameID, target.ID, models.SpecialBanker); err != nil {
		return err
	}

	s.notifier.SendPersonal(ctx, target.UserID, "You are the new Banker.", notify.LevelSuccess, nil)
	s.notifier.BroadcastPersonalToGame(ctx, gameID, fmt.Sprintf("%s is the new Banker.", target.Username), notify.LevelInfo, nil, true, true)
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

// StartBankerSelection prompts the Politician with every player eligible
// to be appointed Banker.
func (s *GameService) StartBankerSelection(ctx context.Context, gameID string, politician *models.Player) {
	list, err := s.players.ListPlayers(ctx, gameID)
	if err != nil {
		log.Errorf("banker selection for game %s: %v", gameID, err)
		return
	}

	var candidates []map[string]any
	for _, p := range list {
		if !p.IsActive || p.IsObserver || p.SpecialRole != models.SpecialNone || p.ID == politician.ID {
			continue
		}
		candidates = append(candidates, map[string]any{"id": p.ID, "username": p.Username})
	}

	s.notifier.SendPersonal(ctx, politician.UserID, "Choose your Banker.", notify.LevelInfo,
		map[string]any{"candidates": candidates})
}

// StartElection opens a voting round. No-op when one is already running.
func (s *GameService) StartElection(ctx context.Context, gameID string) error {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return err
	}

	now := s.now()
	started, err := s.games.BeginVoting(ctx, gameID, now)
	if err != nil {
		return err
	}
	if !started {
		return nil // another tick or an early close got there first
	}
	game.IsVoting = true
	game.VotingStartedAt = &now
	game.VotingPausedSeconds = 0

	if _, err := s.elections.StartSession(ctx, game); err != nil {
		return err
	}

	s.notifier.NotifyEvent(ctx, gameID, notify.EventVotingStarted)
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

// CastVote records a ballot and, once every eligible voter has voted,
// closes the round early in the background.
func (s *GameService) CastVote(ctx context.Context, gameID string, voterUserID, candidatePlayerID int64) error {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return err
	}

	allVoted, err := s.elections.CastVote(ctx, game, voterUserID, candidatePlayerID)
	if err != nil {
		return err
	}

	s.notifier.SendPersonal(ctx, voterUserID, "Your vote has been recorded.", notify.LevelSuccess, nil)

	if allVoted {
		s.runAsync(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.EndElection(ctx, gameID, ForceNone); err != nil {
				log.Errorf("early election close for game %s: %v", gameID, err)
			}
		})
	}
	return nil
}

// EndElection closes the running round and resolves it. Only a unique
// winner with full quorum ends the loop; every other outcome broadcasts
// why and immediately opens a fresh round with the same settings.
func (s *GameService) EndElection(ctx context.Context, gameID string, force ForceResult) error {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return err
	}
	if !game.IsVoting {
		return nil
	}

	ended, err := s.games.EndVoting(ctx, gameID, s.now())
	if err != nil {
		return err
	}
	if !ended {
		return nil // lost the race; the winner of the guard runs the ladder
	}
	s.notifier.NotifyEvent(ctx, gameID, notify.EventVotingEnded)

	var out *ElectionOutcome
	if force == ForceTimeout {
		out, err = s.elections.CloseTimeout(ctx, game)
	} else {
		out, err = s.elections.FinishForce(ctx, game)
	}
	if err != nil {
		return err
	}
	if out == nil {
		return nil // session already closed elsewhere
	}

	eligible, err := s.players.CountEligibleVoters(ctx, gameID)
	if err != nil {
		return err
	}

	switch {
	case out.Result == models.ResultTimeout:
		s.notifier.BroadcastPersonalToGame(ctx, gameID,
			"The election timed out before everyone voted. A new round is starting.",
			notify.LevelWarning, nil, true, true)
		return s.StartElection(ctx, gameID)

	case out.Ballots < eligible:
		s.notifier.BroadcastPersonalToGame(ctx, gameID,
			"Not enough votes were cast. A new round is starting.",
			notify.LevelWarning, nil, true, true)
		return s.StartElection(ctx, gameID)

	case out.Result == models.ResultWinner && out.Winner != nil:
		winner, err := s.players.GetPlayerByID(ctx, out.Winner.PlayerID)
		if err != nil {
			return err
		}
		if winner == nil {
			break // winner left and was purged; fall through to restart
		}
		if err := s.players.SetSpecialRole(ctx, gameID, winner.ID, models.SpecialPolitician); err != nil {
			return err
		}
		s.notifier.BroadcastPersonalToGame(ctx, gameID,
			fmt.Sprintf("%s won the election and is the new Politician!", winner.Username),
			notify.LevelSuccess,
			map[string]any{"winner_id": winner.ID, "winner_name": winner.Username},
			true, true)
		s.StartBankerSelection(ctx, gameID, winner)
		s.notifier.BroadcastGameState(ctx, gameID)
		return nil

	case out.Result == models.ResultTie:
		s.notifier.BroadcastPersonalToGame(ctx, gameID,
			"The election ended in a tie. A new round is starting.",
			notify.LevelWarning, nil, true, true)
		return s.StartElection(ctx, gameID)
	}

	s.notifier.BroadcastPersonalToGame(ctx, gameID,
		"The election produced no winner. A new round is starting.",
		notify.LevelWarning, nil, true, true)
	return s.StartElection(ctx, gameID)
}

// Tick is the scheduler entry point: starts elections that are due and
// ends rounds whose time ran out. One game's failure never stops the scan.
func (s *GameService) Tick(ctx context.Context) {
	now := s.now()

	due, err := s.games.ListGamesDueForElection(ctx, now)
	if err != nil {
		log.Errorf("tick: list due games: %v", err)
	}
	for _, g := range due {
		if err := s.StartElection(ctx, g.ID); err != nil {
			log.Errorf("tick: start election for game %s: %v", g.ID, err)
			continue
		}
		log.Infof("tick: election started for game %s", g.ID)
	}

	voting, err := s.games.ListVotingGames(ctx)
	if err != nil {
		log.Errorf("tick: list voting games: %v", err)
		return
	}
	for _, g := range voting {
		if g.ElectionRemainingSeconds(now) > 0 {
			continue
		}

		ballots, err := s.elections.ActiveBallots(ctx, g.ID)
		if err != nil {
			log.Errorf("tick: count ballots for game %s: %v", g.ID, err)
			continue
		}
		eligible, err := s.players.CountEligibleVoters(ctx, g.ID)
		if err != nil {
			log.Errorf("tick: count voters for game %s: %v", g.ID, err)
			continue
		}

		force := ForceNone
		if ballots >= 0 && ballots < eligible {
			force = ForceTimeout
		}
		if err := s.EndElection(ctx, g.ID, force); err != nil {
			log.Errorf("tick: end election for game %s: %v", g.ID, err)
			continue
		}
		log.Infof("tick: election ended for game %s", g.ID)
	}
}

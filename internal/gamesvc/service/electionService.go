package service

import (
	"context"
	"time"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
)

// ElectionStore is the persistence surface the election mechanics need.
// Implemented by store.ElectionStore; tests use an in-memory double.
type ElectionStore interface {
	ActiveSession(ctx context.Context, gameID string, kind models.SessionKind) (*models.ElectionSession, error)
	CreateSession(ctx context.Context, session *models.ElectionSession, options []*models.VoteOption) error
	GetOption(ctx context.Context, optionID int64) (*models.VoteOption, error)
	GetOptionByPlayer(ctx context.Context, sessionID, playerID int64) (*models.VoteOption, error)
	UpsertBallot(ctx context.Context, sessionID, voterUserID, optionID int64, at time.Time) error
	CountBallots(ctx context.Context, sessionID int64) (int, error)
	Tally(ctx context.Context, sessionID int64) ([]models.TallyRow, error)
	CloseSession(ctx context.Context, sessionID int64, at time.Time) (bool, error)
	SetResult(ctx context.Context, sessionID int64, result models.ElectionResult, winnerOptionID *int64) error
}

// PlayerStore is the player persistence surface shared by the services.
type PlayerStore interface {
	GetPlayer(ctx context.Context, gameID string, userID int64) (*models.Player, error)
	GetPlayerByID(ctx context.Context, playerID int64) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID string) ([]*models.Player, error)
	CountEligibleVoters(ctx context.Context, gameID string) (int, error)
	CountActive(ctx context.Context, gameID string) (int, error)
	CreatePlayer(ctx context.Context, p *models.Player) error
	SetActive(ctx context.Context, playerID int64, active bool) error
	UpgradeRole(ctx context.Context, playerID int64, role models.Role, moneyCost, influenceCost int64) (bool, error)
	SetSpecialRole(ctx context.Context, gameID string, playerID int64, role models.SpecialRole) error
}

const electionQuestion = "Who should govern the state?"

// ElectionOutcome is what closing a session produced. Winner is nil unless
// Result is ResultWinner.
type ElectionOutcome struct {
	Session *models.ElectionSession
	Result  models.ElectionResult
	Winner  *models.VoteOption
	Ballots int
}

// ElectionService owns voting-session mechanics: lifecycle, ballots and
// tallying. The decision ladder that reacts to an outcome lives in
// GameService.
type ElectionService struct {
	elections ElectionStore
	players   PlayerStore
	now       func() time.Time
}

func NewElectionService(elections ElectionStore, players PlayerStore) *ElectionService {
	return &ElectionService{
		elections: elections,
		players:   players,
		now:       time.Now,
	}
}

// StartSession opens an election round with one option per eligible
// player. Idempotent: an already-active session is returned unchanged.
func (s *ElectionService) StartSession(ctx context.Context, game *models.Game) (*models.ElectionSession, error) {
	existing, err := s.elections.ActiveSession(ctx, game.ID, models.KindElection)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	session := &models.ElectionSession{
		GameID:          game.ID,
		Kind:            models.KindElection,
		Question:        electionQuestion,
		StartedAt:       s.now(),
		IsActive:        true,
		NoSelfVote:      true,
		TiePolicy:       "random", // recorded only; a tie restarts the round
		DurationSeconds: int(game.ElectionDuration.Seconds()),
		Result:          models.ResultPending,
	}

	list, err := s.players.ListPlayers(ctx, game.ID)
	if err != nil {
		return nil, err
	}
	var options []*models.VoteOption
	for _, p := range list {
		if !p.EligibleVoter() {
			continue
		}
		options = append(options, &models.VoteOption{PlayerID: p.ID, Label: p.Username})
	}

	if err := s.elections.CreateSession(ctx, session, options); err != nil {
		return nil, err
	}
	return session, nil
}

// CastVote validates and stores one ballot. allVoted reports whether every
// eligible voter has now voted, so the caller can close the round early.
func (s *ElectionService) CastVote(ctx context.Context, game *models.Game, voterUserID, candidatePlayerID int64) (allVoted bool, err error) {
	session, err := s.elections.ActiveSession(ctx, game.ID, models.KindElection)
	if err != nil {
		return false, err
	}
	if session == nil {
		return false, NotFoundf("no active voting session")
	}

	option, err := s.elections.GetOptionByPlayer(ctx, session.ID, candidatePlayerID)
	if err != nil {
		return false, err
	}
	if option == nil {
		return false, NotFoundf("candidate is not part of this election")
	}

	voter, err := s.players.GetPlayer(ctx, game.ID, voterUserID)
	if err != nil {
		return false, err
	}
	if voter == nil {
		return false, NotFoundf("you are not part of this game")
	}
	if voter.IsObserver {
		return false, Validationf("observers cannot vote")
	}
	if session.NoSelfVote && option.PlayerID == voter.ID {
		return false, Validationf("you cannot vote for yourself")
	}

	if err := s.elections.UpsertBallot(ctx, session.ID, voterUserID, option.ID, s.now()); err != nil {
		return false, err
	}

	ballots, err := s.elections.CountBallots(ctx, session.ID)
	if err != nil {
		return false, err
	}
	eligible, err := s.players.CountEligibleVoters(ctx, game.ID)
	if err != nil {
		return false, err
	}
	return eligible > 0 && ballots >= eligible, nil
}

// FinishForce closes the active session and tallies it. Returns nil when
// no session was active or another worker closed it first; both are
// treated as a completed no-op by callers.
func (s *ElectionService) FinishForce(ctx context.Context, game *models.Game) (*ElectionOutcome, error) {
	session, err := s.elections.ActiveSession(ctx, game.ID, models.KindElection)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	closed, err := s.elections.CloseSession(ctx, session.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, nil
	}

	ballots, err := s.elections.CountBallots(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	tally, err := s.elections.Tally(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	result, winnerOptionID := models.Winner(tally)
	if err := s.elections.SetResult(ctx, session.ID, result, winnerOptionID); err != nil {
		return nil, err
	}
	session.Result = result
	session.WinnerOptionID = winnerOptionID

	out := &ElectionOutcome{Session: session, Result: result, Ballots: ballots}
	if winnerOptionID != nil {
		winner, err := s.elections.GetOption(ctx, *winnerOptionID)
		if err != nil {
			return nil, err
		}
		out.Winner = winner
	}
	return out, nil
}

// CloseTimeout closes the active session tagging it as timed out, without
// honoring any partial tally. No-op when the session is already closed.
func (s *ElectionService) CloseTimeout(ctx context.Context, game *models.Game) (*ElectionOutcome, error) {
	session, err := s.elections.ActiveSession(ctx, game.ID, models.KindElection)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	closed, err := s.elections.CloseSession(ctx, session.ID, s.now())
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, nil
	}

	if err := s.elections.SetResult(ctx, session.ID, models.ResultTimeout, nil); err != nil {
		return nil, err
	}
	session.Result = models.ResultTimeout

	ballots, err := s.elections.CountBallots(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &ElectionOutcome{Session: session, Result: models.ResultTimeout, Ballots: ballots}, nil
}

// ActiveBallots reports the ballot count of the running session, or -1
// when no session is active.
func (s *ElectionService) ActiveBallots(ctx context.Context, gameID string) (int, error) {
	session, err := s.elections.ActiveSession(ctx, gameID, models.KindElection)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return -1, nil
	}
	return s.elections.CountBallots(ctx, session.ID)
}

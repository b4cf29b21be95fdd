package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
)

func startedElection(t *testing.T, env *testEnv, userIDs ...int64) (*models.Game, []*models.Player) {
	t.Helper()
	game := env.createGame(t)
	var players []*models.Player
	for i, id := range userIDs {
		players = append(players, env.join(t, game.ID, id, "player"+string(rune('a'+i))))
	}
	require.NoError(t, env.svc.StartElection(context.Background(), game.ID))
	return game, players
}

func (env *testEnv) vote(t *testing.T, gameID string, voterUserID, candidatePlayerID int64) {
	t.Helper()
	require.NoError(t, env.svc.CastVote(context.Background(), gameID, voterUserID, candidatePlayerID))
}

func TestStartSessionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	game, _ := startedElection(t, env, 10, 11)

	g, _ := env.games.GetGame(context.Background(), game.ID)
	first, err := env.esvc.StartSession(context.Background(), g)
	require.NoError(t, err)
	second, err := env.esvc.StartSession(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestCastVoteRejectsSelfVote(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11)

	err := env.svc.CastVote(context.Background(), game.ID, 10, players[0].ID)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)
}

func TestCastVoteRejectsObserver(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11)
	_, err := env.svc.JoinGame(context.Background(), game.ID, 12, "watcher", true)
	require.NoError(t, err)

	err = env.svc.CastVote(context.Background(), game.ID, 12, players[0].ID)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)
}

func TestCastVoteRejectsUnknownCandidate(t *testing.T) {
	env := newTestEnv(t)
	game, _ := startedElection(t, env, 10, 11)

	err := env.svc.CastVote(context.Background(), game.ID, 10, 9999)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindNotFound, kind)
}

func TestRevoteOverwritesBallot(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11, 12)

	env.vote(t, game.ID, 10, players[1].ID)
	env.vote(t, game.ID, 10, players[2].ID)

	session, _ := env.elections.ActiveSession(context.Background(), game.ID, models.KindElection)
	n, _ := env.elections.CountBallots(context.Background(), session.ID)
	require.Equal(t, 1, n)
}

// Everyone voting for the same player ends the round immediately with a
// Politician installed; the election loop stops.
func TestFullQuorumWinnerEndsElection(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11, 12)

	env.vote(t, game.ID, 11, players[0].ID)
	env.vote(t, game.ID, 12, players[0].ID)
	env.vote(t, game.ID, 10, players[1].ID) // last ballot closes the round early

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.False(t, stored.IsVoting, "winner must end the voting round")

	winner, _ := env.players.GetPlayerByID(context.Background(), players[0].ID)
	require.Equal(t, models.SpecialPolitician, winner.SpecialRole)

	// the new Politician is prompted to pick a Banker
	prompts := env.notifier.personalsFor(winner.UserID)
	var prompted bool
	for _, m := range prompts {
		if m.Extra != nil {
			if _, ok := m.Extra["candidates"]; ok {
				prompted = true
			}
		}
	}
	require.True(t, prompted)

	session, _ := env.elections.ActiveSession(context.Background(), game.ID, models.KindElection)
	require.Nil(t, session, "no session should stay open after a clean win")
}

// A tie at full quorum restarts the round instead of picking at random.
func TestTieRestartsElection(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11)

	env.vote(t, game.ID, 10, players[1].ID)
	env.vote(t, game.ID, 11, players[0].ID) // 1:1, closes with a tie

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.True(t, stored.IsVoting, "tie must reopen the round")

	for _, p := range players {
		got, _ := env.players.GetPlayerByID(context.Background(), p.ID)
		require.Equal(t, models.SpecialNone, got.SpecialRole)
	}

	session, _ := env.elections.ActiveSession(context.Background(), game.ID, models.KindElection)
	require.NotNil(t, session)
	n, _ := env.elections.CountBallots(context.Background(), session.ID)
	require.Equal(t, 0, n, "the fresh round starts with an empty ballot box")
}

// The scheduler forces a timeout when the round runs out below quorum; the
// partial tally is discarded and a new round opens.
func TestTimeoutBelowQuorumRestartsWithoutWinner(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11, 12)

	env.vote(t, game.ID, 11, players[0].ID) // only one of three votes

	env.advance(time.Minute) // past the 30s round duration
	env.svc.Tick(context.Background())

	leader, _ := env.players.GetPlayerByID(context.Background(), players[0].ID)
	require.Equal(t, models.SpecialNone, leader.SpecialRole, "partial tally must not crown a winner")

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.True(t, stored.IsVoting, "timeout must open a fresh round")
}

// Full quorum with a clean winner resolved by the scheduler, not an early
// close: the round still terminates.
func TestTickResolvesFullQuorum(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11, 12)

	// disable the early close so the scheduler does the work
	env.svc.runAsync = func(f func()) {}

	env.vote(t, game.ID, 10, players[1].ID)
	env.vote(t, game.ID, 11, players[2].ID)
	env.vote(t, game.ID, 12, players[1].ID)

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.True(t, stored.IsVoting)

	env.advance(time.Minute)
	env.svc.Tick(context.Background())

	winner, _ := env.players.GetPlayerByID(context.Background(), players[1].ID)
	require.Equal(t, models.SpecialPolitician, winner.SpecialRole)
	stored, _ = env.games.GetGame(context.Background(), game.ID)
	require.False(t, stored.IsVoting)
}

func TestElectionWinnerReplacesPreviousPolitician(t *testing.T) {
	env := newTestEnv(t)
	game, players := startedElection(t, env, 10, 11, 12)
	require.NoError(t, env.players.SetSpecialRole(context.Background(), game.ID, players[2].ID, models.SpecialPolitician))

	env.vote(t, game.ID, 11, players[0].ID)
	env.vote(t, game.ID, 12, players[0].ID)
	env.vote(t, game.ID, 10, players[1].ID)

	old, _ := env.players.GetPlayerByID(context.Background(), players[2].ID)
	require.Equal(t, models.SpecialNone, old.SpecialRole)
	winner, _ := env.players.GetPlayerByID(context.Background(), players[0].ID)
	require.Equal(t, models.SpecialPolitician, winner.SpecialRole)
}

func TestVotingPauseExtendsDeadline(t *testing.T) {
	env := newTestEnv(t)
	game, _ := startedElection(t, env, 10, 11)

	env.advance(10 * time.Second)
	require.NoError(t, env.svc.Pause(context.Background(), game.ID))
	env.advance(5 * time.Minute)
	require.NoError(t, env.svc.Resume(context.Background(), game.ID))

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.Equal(t, 20, stored.ElectionRemainingSeconds(env.clock),
		"paused time must not count against the round")
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
)

type testEnv struct {
	games     *fakeGameStore
	players   *fakePlayerStore
	elections *fakeElectionStore
	notifier  *recordingNotifier
	svc       *GameService
	esvc      *ElectionService

	clock time.Time
	roll  float64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		games:     newFakeGameStore(),
		players:   newFakePlayerStore(),
		elections: newFakeElectionStore(),
		notifier:  &recordingNotifier{},
		clock:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		roll:      0.9, // above the default chance, first joins start unemployed
	}
	env.esvc = NewElectionService(env.elections, env.players)
	env.esvc.now = func() time.Time { return env.clock }
	env.svc = NewGameService(env.games, env.players, env.esvc, env.notifier, DefaultConfig())
	env.svc.now = func() time.Time { return env.clock }
	env.svc.roll = func() float64 { return env.roll }
	env.svc.runAsync = func(f func()) { f() }
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func (env *testEnv) createGame(t *testing.T) *models.Game {
	t.Helper()
	game, err := env.svc.CreateGame(context.Background(), "Monopoly Night", 1, DefaultGameSettings())
	require.NoError(t, err)
	return game
}

func (env *testEnv) join(t *testing.T, gameID string, userID int64, name string) *models.Player {
	t.Helper()
	p, err := env.svc.JoinGame(context.Background(), gameID, userID, name, false)
	require.NoError(t, err)
	return p
}

func TestCreateGameStartsPaused(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)

	stored, err := env.games.GetGame(context.Background(), game.ID)
	require.NoError(t, err)
	require.True(t, stored.IsPaused())
	require.False(t, stored.IsVoting)
	require.Equal(t, int64(100000), stored.StateBalance)
	require.Equal(t, int64(100000), stored.BankBalance)
}

func TestCreateGameRejectsBadSettings(t *testing.T) {
	env := newTestEnv(t)

	settings := DefaultGameSettings()
	settings.EntrepreneurChance = 1.5
	_, err := env.svc.CreateGame(context.Background(), "bad", 1, settings)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)

	_, err = env.svc.CreateGame(context.Background(), "", 1, DefaultGameSettings())
	require.Error(t, err)
}

func TestJoinGameResumesAndPaysStartingMoney(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)

	p := env.join(t, game.ID, 10, "ada")
	require.Equal(t, int64(10000), p.Money)
	require.Equal(t, models.RoleUnemployed, p.Role)

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.False(t, stored.IsPaused(), "first join should resume the empty game")
}

func TestJoinGameRollsEntrepreneur(t *testing.T) {
	env := newTestEnv(t)
	env.roll = 0.1 // under the 0.3 chance
	game := env.createGame(t)

	p := env.join(t, game.ID, 10, "ada")
	require.Equal(t, models.RoleEntrepreneur, p.Role)
}

func TestRejoinKeepsMoneyAndRole(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	p := env.join(t, game.ID, 10, "ada")
	env.players.credit(p.ID, 500, 2)

	require.NoError(t, env.svc.LeaveGame(context.Background(), game.ID, 10))
	again := env.join(t, game.ID, 10, "ada")

	require.Equal(t, p.ID, again.ID)
	money, influence := env.players.balance(p.ID)
	require.Equal(t, int64(10500), money)
	require.Equal(t, int64(2), influence)
}

func TestLeaveGamePausesWhenEmpty(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	env.join(t, game.ID, 10, "ada")

	require.NoError(t, env.svc.LeaveGame(context.Background(), game.ID, 10))

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.True(t, stored.IsPaused())
}

func TestPauseIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	env.join(t, game.ID, 10, "ada")

	require.NoError(t, env.svc.Pause(context.Background(), game.ID))
	pausedAt := env.clock
	env.advance(time.Minute)
	require.NoError(t, env.svc.Pause(context.Background(), game.ID))

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.Equal(t, pausedAt, *stored.PausedAt, "second pause must not move the pause instant")
}

func TestResumeFoldsPausedTime(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	env.join(t, game.ID, 10, "ada")

	require.NoError(t, env.svc.Pause(context.Background(), game.ID))
	env.advance(90 * time.Second)
	require.NoError(t, env.svc.Resume(context.Background(), game.ID))

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.False(t, stored.IsPaused())
	require.Equal(t, 90, stored.TotalPausedSeconds)
}

func TestDeleteGameCreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)

	err := env.svc.DeleteGame(context.Background(), game.ID, 99)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindAuthorization, kind)

	require.NoError(t, env.svc.DeleteGame(context.Background(), game.ID, 1))
	require.True(t, env.notifier.hasEvent(notify.EventGameDeleted))

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.Nil(t, stored)
}

func TestUpgradeRolePaysMoneyFirst(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	p := env.join(t, game.ID, 10, "ada")

	require.NoError(t, env.svc.UpgradeRole(context.Background(), game.ID, 10))

	money, _ := env.players.balance(p.ID)
	require.Equal(t, int64(9500), money)
	upgraded, _ := env.players.GetPlayerByID(context.Background(), p.ID)
	require.Equal(t, models.RoleWorker, upgraded.Role)
}

func TestUpgradeRoleFallsBackToInfluence(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	p := env.join(t, game.ID, 10, "ada")
	env.players.credit(p.ID, -10000, 5) // broke, but influential

	require.NoError(t, env.svc.UpgradeRole(context.Background(), game.ID, 10))

	money, influence := env.players.balance(p.ID)
	require.Equal(t, int64(0), money)
	require.Equal(t, int64(2), influence)
}

func TestUpgradeRoleRejectsWhenBroke(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	p := env.join(t, game.ID, 10, "ada")
	env.players.credit(p.ID, -10000, 0)

	err := env.svc.UpgradeRole(context.Background(), game.ID, 10)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)
}

func TestUpgradeRoleTopOfLadder(t *testing.T) {
	env := newTestEnv(t)
	env.roll = 0.0 // join as entrepreneur
	game := env.createGame(t)
	env.join(t, game.ID, 10, "ada")

	err := env.svc.UpgradeRole(context.Background(), game.ID, 10)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)
}

func TestChooseBankerRequiresPolitician(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	a := env.join(t, game.ID, 10, "ada")
	env.join(t, game.ID, 11, "bob")

	err := env.svc.ChooseBanker(context.Background(), game.ID, 11, a.ID)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindAuthorization, kind)
}

func TestChooseBankerDemotesPrevious(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	pol := env.join(t, game.ID, 10, "ada")
	b1 := env.join(t, game.ID, 11, "bob")
	b2 := env.join(t, game.ID, 12, "eve")
	require.NoError(t, env.players.SetSpecialRole(context.Background(), game.ID, pol.ID, models.SpecialPolitician))

	require.NoError(t, env.svc.ChooseBanker(context.Background(), game.ID, 10, b1.ID))
	require.NoError(t, env.svc.ChooseBanker(context.Background(), game.ID, 10, b2.ID))

	first, _ := env.players.GetPlayerByID(context.Background(), b1.ID)
	second, _ := env.players.GetPlayerByID(context.Background(), b2.ID)
	require.Equal(t, models.SpecialNone, first.SpecialRole)
	require.Equal(t, models.SpecialBanker, second.SpecialRole)
}

func TestTickStartsDueElection(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	env.join(t, game.ID, 10, "ada")
	env.join(t, game.ID, 11, "bob")

	env.advance(90 * time.Minute)
	env.svc.Tick(context.Background())

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.True(t, stored.IsVoting)
	require.True(t, env.notifier.hasEvent(notify.EventVotingStarted))

	session, err := env.elections.ActiveSession(context.Background(), game.ID, models.KindElection)
	require.NoError(t, err)
	require.NotNil(t, session)
}

func TestTickDoesNotStartEarly(t *testing.T) {
	env := newTestEnv(t)
	game := env.createGame(t)
	env.join(t, game.ID, 10, "ada")

	env.advance(time.Minute)
	env.svc.Tick(context.Background())

	stored, _ := env.games.GetGame(context.Background(), game.ID)
	require.False(t, stored.IsVoting)
}

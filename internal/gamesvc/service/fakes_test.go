package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
	"github.com/bizmono/monopoly-services/internal/gamesvc/questions"
	"github.com/bizmono/monopoly-services/internal/gamesvc/store"
)

// In-memory store doubles mirroring the guarded-update semantics of the
// pgx stores: every flag transition checks the current state first and
// reports whether it changed anything.

type fakeGameStore struct {
	mu    sync.Mutex
	games map[string]*models.Game
}

func newFakeGameStore() *fakeGameStore {
	return &fakeGameStore{games: make(map[string]*models.Game)}
}

func (f *fakeGameStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (f *fakeGameStore) CreateGame(ctx context.Context, g *models.Game) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *g
	f.games[g.ID] = &cp
	return nil
}

func (f *fakeGameStore) DeleteGame(ctx context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.games, gameID)
	return nil
}

func (f *fakeGameStore) PauseGame(ctx context.Context, gameID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || g.PausedAt != nil {
		return false, nil
	}
	t := at
	g.PausedAt = &t
	return true, nil
}

func (f *fakeGameStore) ResumeGame(ctx context.Context, gameID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || g.PausedAt == nil {
		return false, nil
	}
	delta := int(at.Sub(*g.PausedAt).Seconds())
	g.TotalPausedSeconds += delta
	if g.IsVoting {
		g.VotingPausedSeconds += delta
	}
	g.PausedAt = nil
	return true, nil
}

func (f *fakeGameStore) BeginVoting(ctx context.Context, gameID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || g.IsVoting {
		return false, nil
	}
	t := at
	g.IsVoting = true
	g.VotingStartedAt = &t
	g.VotingPausedSeconds = 0
	return true, nil
}

func (f *fakeGameStore) EndVoting(ctx context.Context, gameID string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.games[gameID]
	if !ok || !g.IsVoting {
		return false, nil
	}
	g.IsVoting = false
	g.VotingStartedAt = nil
	g.LastElectionTime = at
	return true, nil
}

func (f *fakeGameStore) ListGamesDueForElection(ctx context.Context, now time.Time) ([]*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*models.Game
	for _, g := range f.games {
		if g.IsActive && !g.IsVoting && g.ElectionDue(now) {
			cp := *g
			due = append(due, &cp)
		}
	}
	return due, nil
}

func (f *fakeGameStore) ListVotingGames(ctx context.Context) ([]*models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var voting []*models.Game
	for _, g := range f.games {
		if g.IsActive && g.IsVoting {
			cp := *g
			voting = append(voting, &cp)
		}
	}
	return voting, nil
}

type fakePlayerStore struct {
	mu      sync.Mutex
	nextID  int64
	players map[int64]*models.Player
}

func newFakePlayerStore() *fakePlayerStore {
	return &fakePlayerStore{players: make(map[int64]*models.Player)}
}

func (f *fakePlayerStore) GetPlayer(ctx context.Context, gameID string, userID int64) (*models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if p.GameID == gameID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakePlayerStore) GetPlayerByID(ctx context.Context, playerID int64) (*models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[playerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePlayerStore) ListPlayers(ctx context.Context, gameID string) ([]*models.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*models.Player
	for _, p := range f.players {
		if p.GameID == gameID {
			cp := *p
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (f *fakePlayerStore) CountEligibleVoters(ctx context.Context, gameID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.players {
		if p.GameID == gameID && p.EligibleVoter() {
			n++
		}
	}
	return n, nil
}

func (f *fakePlayerStore) CountActive(ctx context.Context, gameID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.players {
		if p.GameID == gameID && p.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakePlayerStore) CreatePlayer(ctx context.Context, p *models.Player) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	p.ID = f.nextID
	p.JoinedAt = time.Now()
	cp := *p
	f.players[p.ID] = &cp
	return nil
}

func (f *fakePlayerStore) SetActive(ctx context.Context, playerID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.players[playerID]; ok {
		p.IsActive = active
	}
	return nil
}

func (f *fakePlayerStore) UpgradeRole(ctx context.Context, playerID int64, role models.Role, moneyCost, influenceCost int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[playerID]
	if !ok || p.Role >= role || p.Money < moneyCost || p.Influence < influenceCost {
		return false, nil
	}
	p.Role = role
	p.Money -= moneyCost
	p.Influence -= influenceCost
	return true, nil
}

func (f *fakePlayerStore) SetSpecialRole(ctx context.Context, gameID string, playerID int64, role models.SpecialRole) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.players {
		if p.GameID == gameID && p.SpecialRole == role {
			p.SpecialRole = models.SpecialNone
		}
	}
	if p, ok := f.players[playerID]; ok {
		p.SpecialRole = role
	}
	return nil
}

// credit is test plumbing shared with the ledger and question fakes.
func (f *fakePlayerStore) credit(playerID, money, influence int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.players[playerID]; ok {
		p.Money += money
		p.Influence += influence
	}
}

func (f *fakePlayerStore) balance(playerID int64) (money, influence int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.players[playerID]; ok {
		return p.Money, p.Influence
	}
	return 0, 0
}

type fakeElectionStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]*models.ElectionSession
	options  map[int64]*models.VoteOption
	ballots  map[int64]map[int64]int64 // sessionID -> voterUserID -> optionID
}

func newFakeElectionStore() *fakeElectionStore {
	return &fakeElectionStore{
		sessions: make(map[int64]*models.ElectionSession),
		options:  make(map[int64]*models.VoteOption),
		ballots:  make(map[int64]map[int64]int64),
	}
}

func (f *fakeElectionStore) ActiveSession(ctx context.Context, gameID string, kind models.SessionKind) (*models.ElectionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.GameID == gameID && s.Kind == kind && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeElectionStore) CreateSession(ctx context.Context, session *models.ElectionSession, options []*models.VoteOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	session.ID = f.nextID
	cp := *session
	f.sessions[session.ID] = &cp
	f.ballots[session.ID] = make(map[int64]int64)
	for _, o := range options {
		f.nextID++
		o.ID = f.nextID
		o.SessionID = session.ID
		ocp := *o
		f.options[o.ID] = &ocp
	}
	return nil
}

func (f *fakeElectionStore) GetOption(ctx context.Context, optionID int64) (*models.VoteOption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.options[optionID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeElectionStore) GetOptionByPlayer(ctx context.Context, sessionID, playerID int64) (*models.VoteOption, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.options {
		if o.SessionID == sessionID && o.PlayerID == playerID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeElectionStore) UpsertBallot(ctx context.Context, sessionID, voterUserID, optionID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ballots[sessionID][voterUserID] = optionID
	return nil
}

func (f *fakeElectionStore) CountBallots(ctx context.Context, sessionID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ballots[sessionID]), nil
}

func (f *fakeElectionStore) Tally(ctx context.Context, sessionID int64) ([]models.TallyRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[int64]int)
	for _, optionID := range f.ballots[sessionID] {
		counts[optionID]++
	}
	var tally []models.TallyRow
	for id, n := range counts {
		tally = append(tally, models.TallyRow{OptionID: id, Count: n})
	}
	sort.Slice(tally, func(i, j int) bool {
		if tally[i].Count != tally[j].Count {
			return tally[i].Count > tally[j].Count
		}
		return tally[i].OptionID < tally[j].OptionID
	})
	return tally, nil
}

func (f *fakeElectionStore) CloseSession(ctx context.Context, sessionID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || !s.IsActive {
		return false, nil
	}
	s.IsActive = false
	t := at
	s.EndsAt = &t
	return true, nil
}

func (f *fakeElectionStore) SetResult(ctx context.Context, sessionID int64, result models.ElectionResult, winnerOptionID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok {
		s.Result = result
		s.WinnerOptionID = winnerOptionID
	}
	return nil
}

// fakeLedgerStore applies transfers against the game and player fakes so
// tests observe real balance movement.
type fakeLedgerStore struct {
	games   *fakeGameStore
	players *fakePlayerStore
}

func (f *fakeLedgerStore) Transfer(ctx context.Context, op models.TransferOp) error {
	f.games.mu.Lock()
	defer f.games.mu.Unlock()
	g, ok := f.games.games[op.GameID]
	if !ok {
		return nil
	}

	balance := func(ref models.AccountRef) int64 {
		switch ref.Kind {
		case models.AccountState:
			return g.StateBalance
		case models.AccountBank:
			return g.BankBalance
		default:
			money, _ := f.players.balance(ref.PlayerID)
			return money
		}
	}
	apply := func(ref models.AccountRef, delta int64) {
		switch ref.Kind {
		case models.AccountState:
			g.StateBalance += delta
		case models.AccountBank:
			g.BankBalance += delta
		default:
			f.players.credit(ref.PlayerID, delta, 0)
		}
	}

	if balance(op.Debit) < op.Amount {
		return store.ErrInsufficientFunds
	}
	apply(op.Debit, -op.Amount)
	apply(op.Credit, op.Amount)
	return nil
}

type fakeQuestionStore struct {
	mu      sync.Mutex
	nextID  int64
	asked   map[int64]*models.AskedQuestion
	pending map[int64]*models.PendingAnswer
	players *fakePlayerStore
}

func newFakeQuestionStore(players *fakePlayerStore) *fakeQuestionStore {
	return &fakeQuestionStore{
		asked:   make(map[int64]*models.AskedQuestion),
		pending: make(map[int64]*models.PendingAnswer),
		players: players,
	}
}

func (f *fakeQuestionStore) CreateAskedQuestion(ctx context.Context, aq *models.AskedQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	aq.ID = f.nextID
	aq.CreatedAt = time.Now()
	cp := *aq
	f.asked[aq.ID] = &cp
	return nil
}

func (f *fakeQuestionStore) AskedByToken(ctx context.Context, gameID, token string) (*models.AskedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, aq := range f.asked {
		if aq.GameID == gameID && aq.Token == token {
			cp := *aq
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeQuestionStore) LatestUnanswered(ctx context.Context, gameID string, targetPlayerID int64, questionID int) (*models.AskedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.AskedQuestion
	for _, aq := range f.asked {
		if aq.GameID == gameID && aq.TargetPlayerID == targetPlayerID && aq.QuestionID == questionID && !aq.Answered {
			if latest == nil || aq.ID > latest.ID {
				latest = aq
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeQuestionStore) LatestAsked(ctx context.Context, gameID string, targetPlayerID int64, questionID int) (*models.AskedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.AskedQuestion
	for _, aq := range f.asked {
		if aq.GameID == gameID && aq.TargetPlayerID == targetPlayerID && aq.QuestionID == questionID {
			if latest == nil || aq.ID > latest.ID {
				latest = aq
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeQuestionStore) AnswerQuestion(ctx context.Context, askedID int64, choice int, correct bool, reward questions.Reward, targetPlayerID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	aq, ok := f.asked[askedID]
	if !ok || aq.Answered {
		f.mu.Unlock()
		return false, nil
	}
	aq.Answered = true
	aq.ChoiceIndex = &choice
	aq.Correct = &correct
	t := at
	aq.AnsweredAt = &t
	f.mu.Unlock()

	if correct {
		f.players.credit(targetPlayerID, reward.Money, reward.Influence)
	}
	return true, nil
}

func (f *fakeQuestionStore) CreatePendingAnswer(ctx context.Context, pa *models.PendingAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	pa.ID = f.nextID
	pa.CreatedAt = time.Now()
	pa.Status = models.AnswerPending
	cp := *pa
	f.pending[pa.ID] = &cp
	return nil
}

func (f *fakeQuestionStore) LatestPending(ctx context.Context, askedID int64) (*models.PendingAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.PendingAnswer
	for _, pa := range f.pending {
		if pa.AskedQuestionID == askedID && pa.Status == models.AnswerPending {
			if latest == nil || pa.ID > latest.ID {
				latest = pa
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeQuestionStore) DecidePendingAnswer(ctx context.Context, pendingID, askedID, reviewerPlayerID int64, approved bool, reward questions.Reward, targetPlayerID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	pa, ok := f.pending[pendingID]
	if !ok || pa.Status != models.AnswerPending {
		f.mu.Unlock()
		return false, nil
	}
	if approved {
		pa.Status = models.AnswerApproved
	} else {
		pa.Status = models.AnswerRejected
	}
	pa.ReviewerPlayerID = &reviewerPlayerID
	t := at
	pa.DecidedAt = &t
	if aq, ok := f.asked[askedID]; ok {
		aq.Answered = true
		aq.AnsweredAt = &t
	}
	f.mu.Unlock()

	if approved {
		f.players.credit(targetPlayerID, reward.Money, reward.Influence)
	}
	return true, nil
}

// recordingNotifier captures every delivery so tests can assert on what
// players would have seen.
type personalMsg struct {
	UserID  int64
	Message string
	Level   notify.Level
	Extra   map[string]any
}

type recordingNotifier struct {
	mu         sync.Mutex
	broadcasts []string // gameIDs
	events     []string
	personals  []personalMsg
}

func (r *recordingNotifier) BroadcastGameState(ctx context.Context, gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, gameID)
}

func (r *recordingNotifier) NotifyEvent(ctx context.Context, gameID string, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) SendPersonal(ctx context.Context, userID int64, message string, level notify.Level, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personals = append(r.personals, personalMsg{UserID: userID, Message: message, Level: level, Extra: extra})
}

func (r *recordingNotifier) BroadcastPersonalToGame(ctx context.Context, gameID string, message string, level notify.Level, extra map[string]any, includeObservers, activeOnly bool) {
	r.SendPersonal(ctx, -1, message, level, extra) // -1 marks a room-wide message
}

func (r *recordingNotifier) personalsFor(userID int64) []personalMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []personalMsg
	for _, m := range r.personals {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

func (r *recordingNotifier) hasEvent(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

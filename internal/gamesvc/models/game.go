package models

import (
	"time"
)

// Game is one running session of the business game. Balances are whole
// in-game currency units. The pause bookkeeping mirrors the wall clock:
// paused_at is set while the game is frozen, and the accumulated pause
// time is folded into total_paused_seconds on resume.
type Game struct {
	ID            string    `json:"id"` // uuid
	Name          string    `json:"name"`
	CreatorUserID int64     `json:"creator_user_id"`
	IsActive      bool      `json:"is_active"`
	IsVoting      bool      `json:"is_voting"`
	StartTime     time.Time `json:"start_time"`

	// Economy settings, fixed at creation.
	EntrepreneurChance float64       `json:"entrepreneur_chance"`
	ElectionInterval   time.Duration `json:"election_interval"`
	ElectionDuration   time.Duration `json:"election_duration"`

	// Election bookkeeping.
	LastElectionTime    time.Time  `json:"last_election_time"`
	VotingStartedAt     *time.Time `json:"voting_started_at,omitempty"`
	VotingPausedSeconds int        `json:"voting_paused_seconds"`

	// Pause state.
	PausedAt           *time.Time `json:"paused_at,omitempty"`
	TotalPausedSeconds int        `json:"total_paused_seconds"`

	// Shared accounts.
	StateBalance int64 `json:"state_balance"`
	BankBalance  int64 `json:"bank_balance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Game) IsPaused() bool {
	return g.PausedAt != nil
}

// ElapsedSeconds is game time: wall clock since start minus every paused
// interval. While paused the clock is frozen at the pause instant.
func (g *Game) ElapsedSeconds(now time.Time) int {
	base := now
	if g.PausedAt != nil {
		base = *g.PausedAt
	}
	elapsed := int(base.Sub(g.StartTime).Seconds()) - g.TotalPausedSeconds
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ElectionDue reports whether the configured interval has passed since the
// last election ended.
func (g *Game) ElectionDue(now time.Time) bool {
	return now.Sub(g.LastElectionTime) >= g.ElectionInterval
}

// ElectionRemainingSeconds is the time left in the running election round,
// excluding any time the game spent paused during the round. Returns 0 when
// no election is running.
func (g *Game) ElectionRemainingSeconds(now time.Time) int {
	if !g.IsVoting || g.VotingStartedAt == nil {
		return 0
	}
	base := now
	if g.PausedAt != nil {
		base = *g.PausedAt
	}
	elapsed := int(base.Sub(*g.VotingStartedAt).Seconds()) - g.VotingPausedSeconds
	remaining := int(g.ElectionDuration.Seconds()) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

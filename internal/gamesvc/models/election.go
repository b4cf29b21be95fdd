package models

import "time"

// SessionKind separates regular elections from one-off events sharing the
// same session machinery.
type SessionKind int

const (
	KindElection SessionKind = iota + 1
	KindEvent
)

func (k SessionKind) String() string {
	switch k {
	case KindElection:
		return "election"
	case KindEvent:
		return "event"
	}
	return "unknown"
}

// ElectionResult is the structured outcome of a closed session. Pending is
// the only value an active session carries.
type ElectionResult int

const (
	ResultPending ElectionResult = iota
	ResultWinner
	ResultTie
	ResultTimeout
	ResultNoVotes
)

func (r ElectionResult) String() string {
	switch r {
	case ResultPending:
		return "pending"
	case ResultWinner:
		return "winner"
	case ResultTie:
		return "tie"
	case ResultTimeout:
		return "timeout"
	case ResultNoVotes:
		return "no_votes"
	}
	return "unknown"
}

// ElectionSession is one voting round. At most one active session exists
// per (game, kind).
type ElectionSession struct {
	ID              int64          `json:"id"`
	GameID          string         `json:"game_id"`
	Kind            SessionKind    `json:"kind"`
	Question        string         `json:"question"`
	StartedAt       time.Time      `json:"started_at"`
	EndsAt          *time.Time     `json:"ends_at,omitempty"`
	IsActive        bool           `json:"is_active"`
	NoSelfVote      bool           `json:"no_self_vote"`
	TiePolicy       string         `json:"tie_policy"` // recorded but a tie always restarts the round
	DurationSeconds int            `json:"duration_seconds"`
	Result          ElectionResult `json:"result"`
	WinnerOptionID  *int64         `json:"winner_option_id,omitempty"`
}

// VoteOption is one votable candidate of a session, unique per
// (session, player).
type VoteOption struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	PlayerID  int64  `json:"player_id"`
	Label     string `json:"label"`
}

// VoteBallot holds one voter's current choice; casting again overwrites it.
type VoteBallot struct {
	ID          int64     `json:"id"`
	SessionID   int64     `json:"session_id"`
	VoterUserID int64     `json:"voter_user_id"`
	OptionID    int64     `json:"option_id"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TallyRow is one option's ballot count, ordered by count descending then
// option id ascending so equal inputs always tally identically.
type TallyRow struct {
	OptionID int64
	Count    int
}

// Winner resolves a tally: a unique top scorer wins, an empty tally is
// no_votes, and a shared top count is a tie with no winner.
func Winner(tally []TallyRow) (ElectionResult, *int64) {
	if len(tally) == 0 {
		return ResultNoVotes, nil
	}
	top := tally[0].Count
	if len(tally) > 1 && tally[1].Count == top {
		return ResultTie, nil
	}
	id := tally[0].OptionID
	return ResultWinner, &id
}

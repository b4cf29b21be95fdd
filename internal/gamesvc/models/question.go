package models

import "time"

// AskedQuestion links a question from the bank to the player it was posed
// to. The token is single-use and lets the client answer without ambiguity
// when the same question was asked twice.
type AskedQuestion struct {
	ID             int64      `json:"id"`
	GameID         string     `json:"game_id"`
	QuestionID     int        `json:"question_id"`
	AskerPlayerID  int64      `json:"asker_player_id"`
	TargetPlayerID int64      `json:"target_player_id"`
	Token          string     `json:"token"`
	Answered       bool       `json:"answered"`
	ChoiceIndex    *int       `json:"choice_index,omitempty"`
	Correct        *bool      `json:"correct,omitempty"` // nil: not auto-gradable
	CreatedAt      time.Time  `json:"created_at"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
}

// PendingStatus is the review state of a manually graded answer.
type PendingStatus int

const (
	AnswerPending PendingStatus = iota
	AnswerApproved
	AnswerRejected
)

func (s PendingStatus) String() string {
	switch s {
	case AnswerPending:
		return "pending"
	case AnswerApproved:
		return "approved"
	case AnswerRejected:
		return "rejected"
	}
	return "unknown"
}

// PendingAnswer is a free-form answer waiting for a Politician to grade it.
type PendingAnswer struct {
	ID               int64         `json:"id"`
	AskedQuestionID  int64         `json:"asked_question_id"`
	Text             string        `json:"text"`
	Status           PendingStatus `json:"status"`
	ReviewerPlayerID *int64        `json:"reviewer_player_id,omitempty"`
	DecidedAt        *time.Time    `json:"decided_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

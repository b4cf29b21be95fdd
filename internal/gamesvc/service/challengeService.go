package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/notify"
	"github.com/bizmono/monopoly-services/internal/gamesvc/questions"
)

// QuestionStore is the challenge persistence surface. The answer and
// grading mutations are single atomic steps in the store so a reward can
// never be granted twice.
type QuestionStore interface {
	CreateAskedQuestion(ctx context.Context, aq *models.AskedQuestion) error
	AskedByToken(ctx context.Context, gameID, token string) (*models.AskedQuestion, error)
	LatestUnanswered(ctx context.Context, gameID string, targetPlayerID int64, questionID int) (*models.AskedQuestion, error)
	LatestAsked(ctx context.Context, gameID string, targetPlayerID int64, questionID int) (*models.AskedQuestion, error)
	AnswerQuestion(ctx context.Context, askedID int64, choice int, correct bool, reward questions.Reward, targetPlayerID int64, at time.Time) (bool, error)
	CreatePendingAnswer(ctx context.Context, pa *models.PendingAnswer) error
	LatestPending(ctx context.Context, askedID int64) (*models.PendingAnswer, error)
	DecidePendingAnswer(ctx context.Context, pendingID, askedID, reviewerPlayerID int64, approved bool, reward questions.Reward, targetPlayerID int64, at time.Time) (bool, error)
}

// PendingSelector locates the asked question being graded: by its token
// when the client still holds it, else by (player, question).
type PendingSelector struct {
	Token      string
	PlayerID   int64
	QuestionID int
}

// ChallengeService runs the quiz economy: the Politician poses questions,
// players answer, and correct or approved answers pay the configured
// reward.
type ChallengeService struct {
	store    QuestionStore
	players  PlayerStore
	bank     *questions.Bank
	notifier notify.Notifier

	now func() time.Time
	rng *rand.Rand
}

func NewChallengeService(store QuestionStore, players PlayerStore, bank *questions.Bank, notifier notify.Notifier) *ChallengeService {
	return &ChallengeService{
		store:    store,
		players:  players,
		bank:     bank,
		notifier: notifier,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Ask poses a question to a player. Politician only; the question text and
// choices go to the target privately, never to the room.
func (s *ChallengeService) Ask(ctx context.Context, gameID string, askerUserID, targetPlayerID int64, questionID *int) (*models.AskedQuestion, error) {
	asker, err := s.players.GetPlayer(ctx, gameID, askerUserID)
	if err != nil {
		return nil, err
	}
	if asker == nil {
		return nil, NotFoundf("you are not part of this game")
	}
	if asker.SpecialRole != models.SpecialPolitician {
		return nil, Authorizationf("only the Politician can ask questions")
	}

	target, err := s.players.GetPlayerByID(ctx, targetPlayerID)
	if err != nil {
		return nil, err
	}
	if target == nil || target.GameID != gameID {
		return nil, NotFoundf("player not found in this game")
	}
	if !target.IsActive || target.IsObserver {
		return nil, Validationf("questions can only be asked of active players")
	}
	if target.ID == asker.ID {
		return nil, Validationf("you cannot ask yourself")
	}

	var q questions.Question
	if questionID != nil {
		var ok bool
		q, ok = s.bank.ByID(*questionID)
		if !ok {
			return nil, NotFoundf("question %d does not exist", *questionID)
		}
	} else {
		var ok bool
		q, ok = s.bank.Random(s.rng)
		if !ok {
			return nil, NotFoundf("the question bank is empty")
		}
	}

	aq := &models.AskedQuestion{
		GameID:         gameID,
		QuestionID:     q.ID,
		AskerPlayerID:  asker.ID,
		TargetPlayerID: target.ID,
		Token:          uuid.New().String(),
	}
	if err := s.store.CreateAskedQuestion(ctx, aq); err != nil {
		return nil, err
	}

	s.notifier.SendPersonal(ctx, target.UserID, q.Text, notify.LevelInfo, map[string]any{
		"token":       aq.Token,
		"question_id": q.ID,
		"choices":     q.Choices,
	})
	s.notifier.SendPersonal(ctx, asker.UserID,
		fmt.Sprintf("Question sent to %s.", target.Username), notify.LevelSuccess, nil)
	return aq, nil
}

// resolveAsked finds the record an answer applies to: exact token first,
// then the newest open question of that id addressed to the respondent.
func (s *ChallengeService) resolveAsked(ctx context.Context, gameID string, respondent *models.Player, questionID int, token string) (*models.AskedQuestion, error) {
	if token != "" {
		aq, err := s.store.AskedByToken(ctx, gameID, token)
		if err != nil {
			return nil, err
		}
		if aq != nil {
			return aq, nil
		}
	}
	return s.store.LatestUnanswered(ctx, gameID, respondent.ID, questionID)
}

// Answer submits a choice or free text. Auto-gradable questions settle
// immediately and pay on a correct answer; everything else is queued for
// the Politician to grade.
func (s *ChallengeService) Answer(ctx context.Context, gameID string, respondentUserID int64, questionID int, token string, choice *int, freeText string) error {
	respondent, err := s.players.GetPlayer(ctx, gameID, respondentUserID)
	if err != nil {
		return err
	}
	if respondent == nil {
		return NotFoundf("you are not part of this game")
	}

	aq, err := s.resolveAsked(ctx, gameID, respondent, questionID, token)
	if err != nil {
		return err
	}
	if aq == nil {
		return NotFoundf("no question is waiting for your answer")
	}
	if aq.TargetPlayerID != respondent.ID {
		return Authorizationf("this question was not addressed to you")
	}
	if aq.Answered {
		return Validationf("this question was already answered")
	}

	q, ok := s.bank.ByID(aq.QuestionID)
	if !ok {
		return NotFoundf("question %d is no longer in the bank", aq.QuestionID)
	}

	if !q.AutoGraded() {
		return s.submitForReview(ctx, gameID, respondent, aq, q, choice, freeText)
	}

	if choice == nil || *choice < 0 || *choice >= len(q.Choices) {
		return Validationf("choose one of the offered answers")
	}
	correct := *choice == *q.Correct

	answered, err := s.store.AnswerQuestion(ctx, aq.ID, *choice, correct, q.Reward, respondent.ID, s.now())
	if err != nil {
		return err
	}
	if !answered {
		return Validationf("this question was already answered")
	}

	if correct {
		s.notifier.SendPersonal(ctx, respondent.UserID,
			fmt.Sprintf("Correct! You earned %d money and %d influence.", q.Reward.Money, q.Reward.Influence),
			notify.LevelSuccess, nil)
	} else {
		s.notifier.SendPersonal(ctx, respondent.UserID, "Wrong answer.", notify.LevelError, nil)
	}
	s.notifyAsker(ctx, aq, fmt.Sprintf("%s answered your question: %s.", respondent.Username, verdict(correct)))
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

func (s *ChallengeService) submitForReview(ctx context.Context, gameID string, respondent *models.Player, aq *models.AskedQuestion, q questions.Question, choice *int, freeText string) error {
	var text string
	switch {
	case choice != nil:
		if *choice < 0 || *choice >= len(q.Choices) {
			return Validationf("choose one of the offered answers")
		}
		text = q.Choices[*choice]
	case strings.TrimSpace(freeText) != "":
		text = strings.TrimSpace(freeText)
	default:
		return Validationf("an answer must not be empty")
	}

	pa := &models.PendingAnswer{AskedQuestionID: aq.ID, Text: text}
	if err := s.store.CreatePendingAnswer(ctx, pa); err != nil {
		return err
	}

	s.notifier.SendPersonal(ctx, respondent.UserID,
		"Your answer was submitted for review.", notify.LevelInfo, nil)

	list, err := s.players.ListPlayers(ctx, gameID)
	if err != nil {
		return err
	}
	for _, p := range list {
		if p.SpecialRole != models.SpecialPolitician || !p.IsActive {
			continue
		}
		s.notifier.SendPersonal(ctx, p.UserID,
			fmt.Sprintf("%s answered %q, approve or reject it.", respondent.Username, text),
			notify.LevelInfo, map[string]any{
				"token":       aq.Token,
				"player_id":   respondent.ID,
				"question_id": aq.QuestionID,
				"answer":      text,
			})
	}
	return nil
}

// GradePendingAnswer resolves a queued manual answer. Politician only;
// approval pays the reward exactly once.
func (s *ChallengeService) GradePendingAnswer(ctx context.Context, gameID string, reviewerUserID int64, selector PendingSelector, approved bool) error {
	reviewer, err := s.players.GetPlayer(ctx, gameID, reviewerUserID)
	if err != nil {
		return err
	}
	if reviewer == nil {
		return NotFoundf("you are not part of this game")
	}
	if reviewer.SpecialRole != models.SpecialPolitician {
		return Authorizationf("only the Politician can grade answers")
	}

	var aq *models.AskedQuestion
	if selector.Token != "" {
		aq, err = s.store.AskedByToken(ctx, gameID, selector.Token)
	} else {
		aq, err = s.store.LatestAsked(ctx, gameID, selector.PlayerID, selector.QuestionID)
	}
	if err != nil {
		return err
	}
	if aq == nil {
		return NotFoundf("no such question was asked")
	}

	pending, err := s.store.LatestPending(ctx, aq.ID)
	if err != nil {
		return err
	}
	if pending == nil {
		return NotFoundf("no answer is waiting for review")
	}

	q, ok := s.bank.ByID(aq.QuestionID)
	if !ok {
		return NotFoundf("question %d is no longer in the bank", aq.QuestionID)
	}

	decided, err := s.store.DecidePendingAnswer(ctx, pending.ID, aq.ID, reviewer.ID, approved, q.Reward, aq.TargetPlayerID, s.now())
	if err != nil {
		return err
	}
	if !decided {
		return Validationf("this answer was already graded")
	}

	target, err := s.players.GetPlayerByID(ctx, aq.TargetPlayerID)
	if err != nil {
		return err
	}
	if target != nil {
		if approved {
			s.notifier.SendPersonal(ctx, target.UserID,
				fmt.Sprintf("Your answer was approved. You earned %d money and %d influence.", q.Reward.Money, q.Reward.Influence),
				notify.LevelSuccess, nil)
		} else {
			s.notifier.SendPersonal(ctx, target.UserID, "Your answer was rejected.", notify.LevelWarning, nil)
		}
	}
	s.notifyAsker(ctx, aq, fmt.Sprintf("The answer was %s.", decision(approved)))
	s.notifier.BroadcastGameState(ctx, gameID)
	return nil
}

// notifyAsker tells the player who posed the question how it resolved.
func (s *ChallengeService) notifyAsker(ctx context.Context, aq *models.AskedQuestion, message string) {
	asker, err := s.players.GetPlayerByID(ctx, aq.AskerPlayerID)
	if err != nil || asker == nil {
		return
	}
	s.notifier.SendPersonal(ctx, asker.UserID, message, notify.LevelInfo, nil)
}

func verdict(correct bool) string {
	if correct {
		return "correct"
	}
	return "wrong"
}

func decision(approved bool) string {
	if approved {
		return "approved"
	}
	return "rejected"
}

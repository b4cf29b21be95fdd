package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizmono/monopoly-services/internal/gamesvc/models"
	"github.com/bizmono/monopoly-services/internal/gamesvc/questions"
)

const askedColumns = `id, game_id, question_id, asker_player_id, target_player_id,
	token, answered, choice_index, correct, created_at, answered_at`

type QuestionStore struct {
	db *pgxpool.Pool
}

func NewQuestionStore(db *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{db: db}
}

func scanAsked(row pgx.Row) (*models.AskedQuestion, error) {
	aq := &models.AskedQuestion{}
	err := row.Scan(
		&aq.ID,
		&aq.GameID,
		&aq.QuestionID,
		&aq.AskerPlayerID,
		&aq.TargetPlayerID,
		&aq.Token,
		&aq.Answered,
		&aq.ChoiceIndex,
		&aq.Correct,
		&aq.CreatedAt,
		&aq.AnsweredAt,
	)
	if err != nil {
		return nil, err
	}
	return aq, nil
}

func (s *QuestionStore) CreateAskedQuestion(ctx context.Context, aq *models.AskedQuestion) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO asked_questions (game_id, question_id, asker_player_id,
			target_player_id, token, answered, created_at)
		VALUES ($1,$2,$3,$4,$5,false,now())
		RETURNING id, created_at
	`, aq.GameID, aq.QuestionID, aq.AskerPlayerID, aq.TargetPlayerID, aq.Token,
	).Scan(&aq.ID, &aq.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create asked question: %w", err)
	}
	return nil
}

func (s *QuestionStore) AskedByToken(ctx context.Context, gameID, token string) (*models.AskedQuestion, error) {
	query := `SELECT ` + askedColumns + ` FROM asked_questions WHERE game_id = $1 AND token = $2`

	aq, err := scanAsked(s.db.QueryRow(ctx, query, gameID, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asked question by token: %w", err)
	}
	return aq, nil
}

// LatestUnanswered is the fallback lookup when the client lost its token:
// the most recent open question of that id addressed to the player.
func (s *QuestionStore) LatestUnanswered(ctx context.Context, gameID string, targetPlayerID int64, questionID int) (*models.AskedQuestion, error) {
	query := `
		SELECT ` + askedColumns + `
		FROM asked_questions
		WHERE game_id = $1 AND target_player_id = $2 AND question_id = $3 AND answered = false
		ORDER BY created_at DESC
		LIMIT 1
	`
	aq, err := scanAsked(s.db.QueryRow(ctx, query, gameID, targetPlayerID, questionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest unanswered question: %w", err)
	}
	return aq, nil
}

// LatestAsked is the grading selector: answered or not, newest first.
func (s *QuestionStore) LatestAsked(ctx context.Context, gameID string, targetPlayerID int64, questionID int) (*models.AskedQuestion, error) {
	query := `
		SELECT ` + askedColumns + `
		FROM asked_questions
		WHERE game_id = $1 AND target_player_id = $2 AND question_id = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	aq, err := scanAsked(s.db.QueryRow(ctx, query, gameID, targetPlayerID, questionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest asked question: %w", err)
	}
	return aq, nil
}

// AnswerQuestion flips the answered flag and, for a correct answer, credits
// the reward in the same transaction. The answered=false guard is what
// makes the reward impossible to grant twice: the second caller sees zero
// rows and gets false back.
func (s *QuestionStore) AnswerQuestion(ctx context.Context, askedID int64, choice int, correct bool, reward questions.Reward, targetPlayerID int64, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE asked_questions SET answered = true, choice_index = $2, correct = $3, answered_at = $4
		WHERE id = $1 AND answered = false
	`, askedID, choice, correct, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark question %d answered: %w", askedID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil // already answered
	}

	if correct && (reward.Money != 0 || reward.Influence != 0) {
		_, err = tx.Exec(ctx, `
			UPDATE players SET money = money + $2, influence = influence + $3 WHERE id = $1
		`, targetPlayerID, reward.Money, reward.Influence)
		if err != nil {
			return false, fmt.Errorf("failed to credit reward to player %d: %w", targetPlayerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit answer: %w", err)
	}
	return true, nil
}

func (s *QuestionStore) CreatePendingAnswer(ctx context.Context, pa *models.PendingAnswer) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO pending_answers (asked_question_id, answer_text, status, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING id, created_at
	`, pa.AskedQuestionID, pa.Text, models.AnswerPending).Scan(&pa.ID, &pa.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create pending answer: %w", err)
	}
	return nil
}

func (s *QuestionStore) LatestPending(ctx context.Context, askedID int64) (*models.PendingAnswer, error) {
	pa := &models.PendingAnswer{}
	err := s.db.QueryRow(ctx, `
		SELECT id, asked_question_id, answer_text, status, reviewer_player_id, decided_at, created_at
		FROM pending_answers
		WHERE asked_question_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, askedID, models.AnswerPending).Scan(
		&pa.ID, &pa.AskedQuestionID, &pa.Text, &pa.Status,
		&pa.ReviewerPlayerID, &pa.DecidedAt, &pa.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending answer: %w", err)
	}
	return pa, nil
}

// DecidePendingAnswer resolves a manual review. The status=pending guard
// makes grading single-shot; on approval the asked question is closed and
// the reward credited in the same transaction.
func (s *QuestionStore) DecidePendingAnswer(ctx context.Context, pendingID, askedID, reviewerPlayerID int64, approved bool, reward questions.Reward, targetPlayerID int64, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status := models.AnswerRejected
	if approved {
		status = models.AnswerApproved
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pending_answers SET status = $2, reviewer_player_id = $3, decided_at = $4
		WHERE id = $1 AND status = $5
	`, pendingID, status, reviewerPlayerID, at, models.AnswerPending)
	if err != nil {
		return false, fmt.Errorf("failed to decide pending answer %d: %w", pendingID, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil // already graded
	}

	_, err = tx.Exec(ctx, `
		UPDATE asked_questions SET answered = true, correct = $2, answered_at = $3
		WHERE id = $1 AND answered = false
	`, askedID, approved, at)
	if err != nil {
		return false, fmt.Errorf("failed to close asked question %d: %w", askedID, err)
	}

	if approved && (reward.Money != 0 || reward.Influence != 0) {
		_, err = tx.Exec(ctx, `
			UPDATE players SET money = money + $2, influence = influence + $3 WHERE id = $1
		`, targetPlayerID, reward.Money, reward.Influence)
		if err != nil {
			return false, fmt.Errorf("failed to credit reward to player %d: %w", targetPlayerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit grading: %w", err)
	}
	return true, nil
}

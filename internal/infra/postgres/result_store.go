package postgres

import (
	"context"
	"fmt"

	"cognito-live-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ResultStore persists quiz results in Postgres. The unique index on
// (user_id, quiz_id, ref_id) plus ON CONFLICT DO UPDATE gives the Finalizer
// its idempotency: re-running finalization overwrites rather than duplicates.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) Upsert(ctx context.Context, result domain.QuizResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_results
			(user_id, username, quiz_id, ref_id, kind, score, total_questions,
			 correct_answers, percentage, passed, grade, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (user_id, quiz_id, ref_id) DO UPDATE SET
			username        = EXCLUDED.username,
			kind            = EXCLUDED.kind,
			score           = EXCLUDED.score,
			total_questions = EXCLUDED.total_questions,
			correct_answers = EXCLUDED.correct_answers,
			percentage      = EXCLUDED.percentage,
			passed          = EXCLUDED.passed,
			grade           = EXCLUDED.grade,
			completed_at    = EXCLUDED.completed_at`,
		result.UserID, result.Username, result.QuizID, result.RefID, string(result.Kind),
		result.Score, result.TotalQuestions, result.CorrectAnswers, result.Percentage,
		result.Passed, result.Grade, result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

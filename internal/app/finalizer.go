package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cognito-live-service/internal/domain"
)

// Finalizer turns completed session/match state into durable result records.
// Every write is an upsert keyed by (user, quiz, ref), so finalization is
// idempotent: a retry after a partial failure updates in place instead of
// duplicating history.
type Finalizer struct {
	results ResultStore
	now     func() time.Time
}

func NewFinalizer(results ResultStore) *Finalizer {
	return &Finalizer{results: results, now: time.Now}
}

// FinalizeSession emits one result record per active participant who answered
// at least one question. Individual failures are logged and joined; the whole
// call is safe to re-run.
func (f *Finalizer) FinalizeSession(ctx context.Context, session *domain.LiveSession, quiz domain.Quiz) error {
	completedAt := f.now()
	var errs []error
	for i := range session.Participants {
		p := &session.Participants[i]
		if !p.IsActive || len(p.Answers) == 0 {
			continue
		}
		record := buildResult(p.UserID, p.Username, quiz, session.Code, domain.ResultLive, p.Score, countCorrect(p.Answers), completedAt)
		if err := f.results.Upsert(ctx, record); err != nil {
			log.Printf("upsert result for %s in session %s: %v", p.UserID, session.Code, err)
			errs = append(errs, fmt.Errorf("participant %s: %w", p.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// FinalizeMatch emits one result record per duel player who answered at least
// one question.
func (f *Finalizer) FinalizeMatch(ctx context.Context, match *domain.DuelMatch, quiz domain.Quiz) error {
	completedAt := f.now()
	var errs []error
	for _, p := range []*domain.DuelPlayer{match.Player1, match.Player2} {
		if p == nil || len(p.Answers) == 0 {
			continue
		}
		record := buildResult(p.UserID, p.Username, quiz, match.MatchID, domain.ResultDuel, p.Score, p.CorrectAnswers, completedAt)
		if err := f.results.Upsert(ctx, record); err != nil {
			log.Printf("upsert result for %s in duel %s: %v", p.UserID, match.MatchID, err)
			errs = append(errs, fmt.Errorf("player %s: %w", p.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func buildResult(userID, username string, quiz domain.Quiz, refID string, kind domain.ResultKind, score, correct int, completedAt time.Time) domain.QuizResult {
	total := len(quiz.Questions)
	percentage := 0.0
	if total > 0 {
		percentage = float64(correct) / float64(total) * 100
	}
	threshold := quiz.PassingScore
	if threshold == 0 {
		threshold = defaultPassingScore
	}
	return domain.QuizResult{
		UserID:         userID,
		Username:       username,
		QuizID:         quiz.ID,
		RefID:          refID,
		Kind:           kind,
		Score:          score,
		TotalQuestions: total,
		CorrectAnswers: correct,
		Percentage:     percentage,
		Passed:         percentage >= float64(threshold),
		Grade:          Grade(percentage),
		CompletedAt:    completedAt,
	}
}

func countCorrect(answers []domain.AnswerRecord) int {
	n := 0
	for _, a := range answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

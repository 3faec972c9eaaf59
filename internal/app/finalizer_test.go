package app_test

import (
	"context"
	"testing"
	"time"

	"cognito-live-service/internal/app"
	"cognito-live-service/internal/domain"
	"cognito-live-service/internal/infra/memory"
)

func TestFinalizeSessionIsIdempotent(t *testing.T) {
	results := memory.NewResultStore()
	finalizer := app.NewFinalizer(results)
	quiz := threeQuestionQuiz()["quiz-1"]

	session := &domain.LiveSession{
		Code:   "ABC234",
		QuizID: "quiz-1",
		Status: domain.SessionCompleted,
		Participants: []domain.Participant{
			{UserID: "u1", Username: "Alice", Score: 300, IsActive: true, Answers: []domain.AnswerRecord{
				{QuestionIndex: 0, IsCorrect: true}, {QuestionIndex: 1, IsCorrect: true}, {QuestionIndex: 2, IsCorrect: true},
			}},
			{UserID: "u2", Username: "Bob", Score: 100, IsActive: true, Answers: []domain.AnswerRecord{
				{QuestionIndex: 0, IsCorrect: true},
			}},
			{UserID: "lurker", Username: "Lurker", IsActive: true},
			{UserID: "gone", Username: "Gone", IsActive: false, Answers: []domain.AnswerRecord{
				{QuestionIndex: 0, IsCorrect: true},
			}},
		},
		CreatedAt: time.Now(),
	}

	if err := finalizer.FinalizeSession(context.Background(), session, quiz); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := finalizer.FinalizeSession(context.Background(), session, quiz); err != nil {
		t.Fatalf("refinalize: %v", err)
	}

	records := results.Records()
	// Lurker never answered and Gone left; neither gets a record, and the
	// second run updated in place instead of duplicating.
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	for _, r := range records {
		switch r.UserID {
		case "u1":
			if r.Percentage != 100 || !r.Passed || r.Grade != "A" {
				t.Fatalf("unexpected record for u1: %+v", r)
			}
		case "u2":
			if r.Passed || r.Grade != "F" {
				t.Fatalf("one of three correct must fail, got %+v", r)
			}
		default:
			t.Fatalf("unexpected record for %s", r.UserID)
		}
	}
}

func TestFinalizeMatchSkipsSilentPlayers(t *testing.T) {
	results := memory.NewResultStore()
	finalizer := app.NewFinalizer(results)
	quiz := threeQuestionQuiz()["quiz-1"]

	winner := "u1"
	match := &domain.DuelMatch{
		MatchID: "DUEL42",
		QuizID:  "quiz-1",
		Status:  domain.MatchCompleted,
		Winner:  &winner,
		Player1: &domain.DuelPlayer{UserID: "u1", Username: "Alice", Score: 30, CorrectAnswers: 3, Answers: []domain.AnswerRecord{
			{IsCorrect: true}, {IsCorrect: true}, {IsCorrect: true},
		}},
		Player2: &domain.DuelPlayer{UserID: "u2", Username: "Bob"},
	}

	if err := finalizer.FinalizeMatch(context.Background(), match, quiz); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	records := results.Records()
	if len(records) != 1 || records[0].UserID != "u1" || records[0].Kind != domain.ResultDuel {
		t.Fatalf("expected one duel record for u1, got %+v", records)
	}
}

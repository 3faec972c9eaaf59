package app

import (
	"context"
	"errors"
	"log"
	"time"

	"cognito-live-service/internal/domain"
)

// insertAttempts bounds retries when a freshly generated code loses an insert
// race despite the pre-check.
const insertAttempts = 3

// SessionService is the state machine for host-paced live sessions. Every
// mutation of the aggregate goes through the optimistic retry loop;
// broadcasts are always derived from the just-persisted state.
type SessionService struct {
	store     SessionStore
	quizzes   QuizRepository
	codes     *CodeGenerator
	finalizer *Finalizer
	events    Broadcaster
	now       func() time.Time
}

func NewSessionService(store SessionStore, quizzes QuizRepository, finalizer *Finalizer, events Broadcaster) *SessionService {
	return &SessionService{
		store:     store,
		quizzes:   quizzes,
		codes:     NewCodeGenerator(store.Exists),
		finalizer: finalizer,
		events:    events,
		now:       time.Now,
	}
}

// SessionSummary is the client-facing view of a session returned on join.
type SessionSummary struct {
	Code             string                 `json:"code"`
	QuizID           string                 `json:"quizId"`
	QuizTitle        string                 `json:"quizTitle,omitempty"`
	Status           domain.SessionStatus   `json:"status"`
	CurrentQuestion  int                    `json:"currentQuestionIndex"`
	ParticipantCount int                    `json:"participantCount"`
	Settings         domain.SessionSettings `json:"settings"`
}

// JoinResult is the acknowledgement payload for join-session.
type JoinResult struct {
	IsReconnection  bool                      `json:"isReconnection"`
	IsHost          bool                      `json:"isHost"`
	Session         SessionSummary            `json:"session"`
	Leaderboard     []domain.LeaderboardEntry `json:"leaderboard"`
	CurrentQuestion *domain.QuestionView      `json:"currentQuestion,omitempty"`
}

// AnswerOutcome is the acknowledgement payload for submit-answer.
type AnswerOutcome struct {
	IsCorrect     bool   `json:"isCorrect"`
	PointsEarned  int    `json:"pointsEarned"`
	StreakBonus   int    `json:"streakBonus"`
	TotalScore    int    `json:"totalScore"`
	CorrectAnswer *int   `json:"correctAnswer,omitempty"`
	Explanation   string `json:"explanation,omitempty"`
}

// CreateSession validates the quiz, mints a unique code and persists a
// waiting session owned by the creating connection.
func (s *SessionService) CreateSession(ctx context.Context, quizID, hostID, hostUsername, connID string, settings *domain.SessionSettings) (*domain.LiveSession, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	applied := domain.DefaultSessionSettings()
	if settings != nil {
		applied = normalizeSettings(*settings)
	}

	for attempt := 0; attempt < insertAttempts; attempt++ {
		code, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}
		session := &domain.LiveSession{
			Code:            code,
			QuizID:          quizID,
			HostID:          hostID,
			HostUsername:    hostUsername,
			HostConnID:      connID,
			Status:          domain.SessionWaiting,
			CurrentQuestion: -1,
			Settings:        applied,
			CreatedAt:       s.now(),
		}
		err = s.store.Insert(ctx, session)
		if err == nil {
			log.Printf("session %s created for quiz %s by host %s", code, quizID, hostID)
			return session, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, domain.ErrCodeSpaceExhausted
}

// JoinSession admits a new participant or refreshes a returning one. A userId
// already on the roster (or matching the host) is a reconnection: only the
// connection id is updated, no join event is broadcast, and the caller gets
// the current leaderboard plus the in-flight question when the quiz is active.
func (s *SessionService) JoinSession(ctx context.Context, code, userID, username, avatar, connID string) (*JoinResult, error) {
	var (
		reconnection bool
		isHost       bool
	)
	session, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		reconnection, isHost = false, false

		if sess.HostID == userID {
			isHost = true
			reconnection = true
			sess.HostConnID = connID
			return nil
		}
		if p := sess.Participant(userID); p != nil {
			reconnection = true
			p.ConnID = connID
			p.IsActive = true
			p.LeftAt = nil
			return nil
		}

		switch sess.Status {
		case domain.SessionCompleted, domain.SessionCancelled:
			return domain.ErrSessionClosed
		case domain.SessionActive:
			if !sess.Settings.AllowLateJoin {
				return domain.ErrLateJoinDisabled
			}
		}
		if sess.ActiveCount() >= sess.Settings.MaxParticipants {
			return domain.ErrSessionFull
		}

		sess.Participants = append(sess.Participants, domain.Participant{
			UserID:   userID,
			Username: username,
			Avatar:   avatar,
			ConnID:   connID,
			IsActive: true,
			JoinedAt: s.now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, err
	}

	result := &JoinResult{
		IsReconnection: reconnection,
		IsHost:         isHost,
		Session:        summarize(session, quiz.Title),
		Leaderboard:    BuildLeaderboard(session.Participants),
	}
	if session.Status == domain.SessionActive {
		view := questionView(quiz, session.CurrentQuestion, session.Settings)
		result.CurrentQuestion = &view
	}

	if !reconnection {
		s.events.Broadcast(code, "participant-joined", map[string]any{
			"userId":           userID,
			"username":         username,
			"avatar":           avatar,
			"participantCount": session.ActiveCount(),
		})
	}
	return result, nil
}

// StartQuiz moves a waiting session to active and pushes question 0 to every
// connection. Only the recorded host connection may start.
func (s *SessionService) StartQuiz(ctx context.Context, code, connID string) error {
	quizID := ""
	session, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		if sess.HostConnID != connID {
			return domain.ErrNotHost
		}
		if sess.Status != domain.SessionWaiting {
			return domain.ErrInvalidState
		}
		quizID = sess.QuizID
		sess.Status = domain.SessionActive
		sess.CurrentQuestion = 0
		sess.QuestionStartedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	s.events.Broadcast(code, "quiz-started", map[string]any{
		"quizTitle":     quiz.Title,
		"questionCount": len(quiz.Questions),
	})
	s.events.Broadcast(code, "question-started", questionView(quiz, session.CurrentQuestion, session.Settings))
	return nil
}

// SubmitAnswer validates and scores one participant answer, appends it to the
// answer log and broadcasts the refreshed leaderboard. Concurrent submissions
// for the same question are serialized by the version check; no update is lost.
func (s *SessionService) SubmitAnswer(ctx context.Context, code, userID string, questionIndex, answer int, timeSpent float64) (*AnswerOutcome, error) {
	quiz, err := s.quizForSession(ctx, code)
	if err != nil {
		return nil, err
	}

	var outcome AnswerOutcome
	session, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		if sess.Status != domain.SessionActive {
			return domain.ErrInvalidState
		}
		if questionIndex != sess.CurrentQuestion {
			return domain.ErrWrongQuestion
		}
		if questionIndex < 0 || questionIndex >= len(quiz.Questions) {
			return domain.ErrWrongQuestion
		}
		p := sess.Participant(userID)
		if p == nil {
			return domain.ErrParticipantNotFound
		}
		for _, a := range p.Answers {
			if a.QuestionIndex == questionIndex {
				return domain.ErrAlreadyAnswered
			}
		}

		question := effectiveQuestion(quiz, questionIndex, sess.Settings)
		streak := 0
		if answer == question.CorrectIndex {
			streak = CurrentStreak(p.Answers) + 1
		}
		score := ScoreLiveAnswer(question, answer, timeSpent, streak)

		p.Answers = append(p.Answers, domain.AnswerRecord{
			QuestionIndex: questionIndex,
			Answer:        answer,
			IsCorrect:     score.IsCorrect,
			TimeSpent:     timeSpent,
			PointsEarned:  score.PointsEarned,
		})
		p.Score += score.PointsEarned

		outcome = AnswerOutcome{
			IsCorrect:    score.IsCorrect,
			PointsEarned: score.PointsEarned,
			StreakBonus:  score.StreakBonus,
			TotalScore:   p.Score,
		}
		if sess.Settings.ShowCorrectAnswers {
			correct := question.CorrectIndex
			outcome.CorrectAnswer = &correct
			outcome.Explanation = question.Explanation
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	leaderboard := BuildLeaderboard(session.Participants)
	payload := map[string]any{"leaderboard": leaderboard}
	if session.Settings.ShowLeaderboard {
		s.events.Broadcast(code, "leaderboard-update", payload)
	} else {
		s.events.SendToHost(code, "leaderboard-update", payload)
	}
	return &outcome, nil
}

// NextQuestion advances the cursor, or completes the session when the quiz is
// exhausted. Host only.
func (s *SessionService) NextQuestion(ctx context.Context, code, connID string) (int, bool, error) {
	quiz, err := s.quizForSession(ctx, code)
	if err != nil {
		return 0, false, err
	}

	finished := false
	session, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		finished = false
		if sess.HostConnID != connID {
			return domain.ErrNotHost
		}
		if sess.Status != domain.SessionActive {
			return domain.ErrInvalidState
		}
		if sess.CurrentQuestion+1 >= len(quiz.Questions) {
			finished = true
			completeSession(sess)
			return nil
		}
		sess.CurrentQuestion++
		sess.QuestionStartedAt = s.now()
		return nil
	})
	if err != nil {
		return 0, false, err
	}

	if finished {
		s.finishSession(ctx, session, quiz)
		return session.CurrentQuestion, true, nil
	}
	s.events.Broadcast(code, "question-started", questionView(quiz, session.CurrentQuestion, session.Settings))
	return session.CurrentQuestion, false, nil
}

// PauseQuiz suspends an active session. Host only.
func (s *SessionService) PauseQuiz(ctx context.Context, code, connID string) error {
	_, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		if sess.HostConnID != connID {
			return domain.ErrNotHost
		}
		if sess.Status != domain.SessionActive {
			return domain.ErrInvalidState
		}
		sess.Status = domain.SessionPaused
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Broadcast(code, "session-paused", nil)
	return nil
}

// ResumeQuiz reactivates a paused session. Host only.
func (s *SessionService) ResumeQuiz(ctx context.Context, code, connID string) error {
	session, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		if sess.HostConnID != connID {
			return domain.ErrNotHost
		}
		if sess.Status != domain.SessionPaused {
			return domain.ErrInvalidState
		}
		sess.Status = domain.SessionActive
		sess.QuestionStartedAt = s.now()
		return nil
	})
	if err != nil {
		return err
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return err
	}
	s.events.Broadcast(code, "session-resumed", questionView(quiz, session.CurrentQuestion, session.Settings))
	return nil
}

// EndSession completes an active or paused session: final standings are
// stored on the aggregate, results are finalized, and the routing channel is
// released. A session still waiting is cancelled instead. Host only.
func (s *SessionService) EndSession(ctx context.Context, code, connID string) ([]domain.LeaderboardEntry, error) {
	quiz, err := s.quizForSession(ctx, code)
	if err != nil {
		return nil, err
	}

	cancelled := false
	session, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		cancelled = false
		if sess.HostConnID != connID {
			return domain.ErrNotHost
		}
		switch sess.Status {
		case domain.SessionWaiting:
			cancelled = true
			sess.Status = domain.SessionCancelled
			return nil
		case domain.SessionActive, domain.SessionPaused:
			completeSession(sess)
			return nil
		}
		return domain.ErrInvalidState
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		s.events.Broadcast(code, "session-ended", map[string]any{"cancelled": true})
		s.events.Release(code)
		return nil, nil
	}
	s.finishSession(ctx, session, quiz)
	return session.FinalLeaderboard, nil
}

// HandleDisconnect applies the state-machine consequence of a dropped
// connection: the host pauses the session, a participant is deactivated. The
// routing entry itself is the transport's concern.
func (s *SessionService) HandleDisconnect(ctx context.Context, code, connID string) {
	var (
		hostDropped bool
		leftUserID  string
		activeCount int
	)
	_, err := updateWithRetry(ctx, s.store, code, func(sess *domain.LiveSession) error {
		hostDropped, leftUserID = false, ""
		if sess.Status == domain.SessionCompleted || sess.Status == domain.SessionCancelled {
			return errSkipSave
		}
		if sess.HostConnID == connID {
			hostDropped = true
			if sess.Status != domain.SessionActive {
				return errSkipSave
			}
			sess.Status = domain.SessionPaused
			return nil
		}
		p := sess.ParticipantByConn(connID)
		if p == nil || !p.IsActive {
			return errSkipSave
		}
		now := s.now()
		p.IsActive = false
		p.LeftAt = &now
		leftUserID = p.UserID
		activeCount = sess.ActiveCount()
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			log.Printf("disconnect handling for session %s: %v", code, err)
		}
		return
	}

	if hostDropped {
		s.events.Broadcast(code, "host-disconnected", nil)
		return
	}
	if leftUserID != "" {
		s.events.Broadcast(code, "participant-left", map[string]any{
			"userId":           leftUserID,
			"participantCount": activeCount,
		})
	}
}

// finishSession runs the side effects of completion against already-persisted
// state: finalize results, announce standings, release routing.
func (s *SessionService) finishSession(ctx context.Context, session *domain.LiveSession, quiz domain.Quiz) {
	if err := s.finalizer.FinalizeSession(ctx, session, quiz); err != nil {
		log.Printf("finalize session %s: %v", session.Code, err)
	}
	s.events.Broadcast(session.Code, "session-ended", map[string]any{
		"leaderboard": session.FinalLeaderboard,
	})
	s.events.Release(session.Code)
}

func (s *SessionService) quizForSession(ctx context.Context, code string) (domain.Quiz, error) {
	session, err := s.store.Get(ctx, code)
	if err != nil {
		return domain.Quiz{}, err
	}
	return s.quizzes.GetQuiz(ctx, session.QuizID)
}

func completeSession(sess *domain.LiveSession) {
	sess.Status = domain.SessionCompleted
	sess.FinalLeaderboard = BuildLeaderboard(sess.Participants)
}

func summarize(sess *domain.LiveSession, quizTitle string) SessionSummary {
	return SessionSummary{
		Code:             sess.Code,
		QuizID:           sess.QuizID,
		QuizTitle:        quizTitle,
		Status:           sess.Status,
		CurrentQuestion:  sess.CurrentQuestion,
		ParticipantCount: sess.ActiveCount(),
		Settings:         sess.Settings,
	}
}

// effectiveQuestion resolves the per-question time limit against session
// settings before scoring.
func effectiveQuestion(quiz domain.Quiz, index int, settings domain.SessionSettings) domain.Question {
	q := quiz.Questions[index]
	if q.TimeLimitSec == 0 {
		q.TimeLimitSec = settings.TimePerQuestionSec
	}
	return q
}

// questionView projects a question for broadcast. The correct answer never
// leaves the server here.
func questionView(quiz domain.Quiz, index int, settings domain.SessionSettings) domain.QuestionView {
	if index < 0 || index >= len(quiz.Questions) {
		return domain.QuestionView{Index: index, Total: len(quiz.Questions)}
	}
	q := effectiveQuestion(quiz, index, settings)
	points := q.Points
	if points == 0 {
		points = defaultBasePoints
	}
	return domain.QuestionView{
		Index:        index,
		Prompt:       q.Prompt,
		Options:      append([]string(nil), q.Options...),
		Points:       points,
		TimeLimitSec: q.TimeLimitSec,
		Total:        len(quiz.Questions),
	}
}

func normalizeSettings(s domain.SessionSettings) domain.SessionSettings {
	defaults := domain.DefaultSessionSettings()
	if s.TimePerQuestionSec <= 0 {
		s.TimePerQuestionSec = defaults.TimePerQuestionSec
	}
	if s.MaxParticipants <= 0 {
		s.MaxParticipants = defaults.MaxParticipants
	}
	return s
}

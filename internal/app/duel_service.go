package app

import (
	"context"
	"errors"
	"log"
	"time"

	"cognito-live-service/internal/domain"
)

// DuelOptions tunes match expiry and pacing. Zero values fall back to defaults.
type DuelOptions struct {
	// WaitTTL bounds how long an unmatched match sits in the waiting pool.
	WaitTTL time.Duration
	// ActiveTTL bounds an abandoned match once play has started.
	ActiveTTL time.Duration
	// NextQuestionDelay is the fixed pause before a player's next question is pushed.
	NextQuestionDelay time.Duration
}

const (
	defaultDuelWaitTTL   = 2 * time.Minute
	defaultDuelActiveTTL = 30 * time.Minute
	defaultNextDelay     = 1500 * time.Millisecond
)

// errClaimLost aborts a player2 claim when the target match was taken or
// expired between the pool lookup and the versioned save.
var errClaimLost = errors.New("waiting match no longer claimable")

// DuelService is the state machine for asynchronous 1v1 quiz races, and the
// matchmaker pairing players who want the same quiz. The player2 assignment is
// a compare-and-swap on the match aggregate, so two simultaneous FindMatch
// calls can never both claim the same waiting slot.
type DuelService struct {
	store     MatchStore
	quizzes   QuizRepository
	codes     *CodeGenerator
	finalizer *Finalizer
	events    Broadcaster
	opts      DuelOptions
	now       func() time.Time
	schedule  func(d time.Duration, fn func())
}

func NewDuelService(store MatchStore, quizzes QuizRepository, finalizer *Finalizer, events Broadcaster, opts DuelOptions) *DuelService {
	if opts.WaitTTL <= 0 {
		opts.WaitTTL = defaultDuelWaitTTL
	}
	if opts.ActiveTTL <= 0 {
		opts.ActiveTTL = defaultDuelActiveTTL
	}
	if opts.NextQuestionDelay <= 0 {
		opts.NextQuestionDelay = defaultNextDelay
	}
	return &DuelService{
		store:     store,
		quizzes:   quizzes,
		codes:     NewCodeGenerator(store.Exists),
		finalizer: finalizer,
		events:    events,
		opts:      opts,
		now:       time.Now,
		schedule:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// MatchTicket is the acknowledgement payload for find-duel-match.
type MatchTicket struct {
	MatchID  string `json:"matchId"`
	Role     string `json:"role"` // "player1" or "player2"
	Waiting  bool   `json:"waiting"`
	Opponent string `json:"opponent,omitempty"`
}

// DuelAnswerOutcome is the acknowledgement payload for duel-answer.
type DuelAnswerOutcome struct {
	IsCorrect     bool   `json:"isCorrect"`
	PointsEarned  int    `json:"pointsEarned"`
	CorrectAnswer int    `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
	Completed     bool   `json:"completed"`
}

// FindMatch pairs the caller into an existing waiting match for the quiz, or
// parks them as player1 of a fresh one. Losing the claim race falls through to
// creating a new waiting match; the call only fails on an invalid quiz.
func (s *DuelService) FindMatch(ctx context.Context, quizID, userID, username, avatar, connID string) (*MatchTicket, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	if ticket, ok, err := s.tryClaim(ctx, quizID, userID, username, avatar, connID); err != nil {
		return nil, err
	} else if ok {
		return ticket, nil
	}

	for attempt := 0; attempt < insertAttempts; attempt++ {
		id, err := s.codes.Generate(ctx)
		if err != nil {
			return nil, err
		}
		match := &domain.DuelMatch{
			MatchID: id,
			QuizID:  quizID,
			Status:  domain.MatchWaiting,
			Player1: &domain.DuelPlayer{
				UserID:   userID,
				Username: username,
				Avatar:   avatar,
				ConnID:   connID,
				IsActive: true,
			},
			ExpiresAt: s.now().Add(s.opts.WaitTTL),
			CreatedAt: s.now(),
		}
		err = s.store.Insert(ctx, match)
		if err == nil {
			log.Printf("duel %s created for quiz %s, %s waiting", id, quizID, userID)
			return &MatchTicket{MatchID: id, Role: "player1", Waiting: true}, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
	}
	return nil, domain.ErrCodeSpaceExhausted
}

// tryClaim attempts to become player2 of a waiting match. The version check on
// Save guarantees at most one winner; the loser sees the match as taken and
// reports no claim.
func (s *DuelService) tryClaim(ctx context.Context, quizID, userID, username, avatar, connID string) (*MatchTicket, bool, error) {
	waiting, err := s.store.FindWaiting(ctx, quizID, userID)
	if errors.Is(err, domain.ErrMatchNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	match, err := updateWithRetry(ctx, s.store, waiting.MatchID, func(m *domain.DuelMatch) error {
		if m.Status != domain.MatchWaiting || m.Player2 != nil {
			return errClaimLost
		}
		if m.Player1 == nil || m.Player1.UserID == userID {
			return errClaimLost
		}
		if s.now().After(m.ExpiresAt) {
			return errClaimLost
		}
		m.Player2 = &domain.DuelPlayer{
			UserID:   userID,
			Username: username,
			Avatar:   avatar,
			ConnID:   connID,
			IsActive: true,
		}
		m.Status = domain.MatchReady
		return nil
	})
	if errors.Is(err, errClaimLost) || errors.Is(err, domain.ErrMatchNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	log.Printf("duel %s matched: %s vs %s", match.MatchID, match.Player1.UserID, userID)
	s.events.Broadcast(match.MatchID, "duel-matched", map[string]any{
		"matchId": match.MatchID,
		"player1": playerSummary(match.Player1),
		"player2": playerSummary(match.Player2),
	})
	return &MatchTicket{
		MatchID:  match.MatchID,
		Role:     "player2",
		Opponent: match.Player1.Username,
	}, true, nil
}

// MarkReady flags a player as ready. When both are, the match goes active and
// question 0 is pushed to both players.
func (s *DuelService) MarkReady(ctx context.Context, matchID, userID, connID string) error {
	started := false
	match, err := updateWithRetry(ctx, s.store, matchID, func(m *domain.DuelMatch) error {
		started = false
		if m.Status != domain.MatchWaiting && m.Status != domain.MatchReady {
			return domain.ErrInvalidState
		}
		p := m.Player(userID)
		if p == nil {
			return domain.ErrParticipantNotFound
		}
		p.IsReady = true
		if connID != "" {
			p.ConnID = connID
		}
		if m.Status == domain.MatchReady && m.Player1.IsReady && m.Player2 != nil && m.Player2.IsReady {
			m.Status = domain.MatchActive
			m.ExpiresAt = s.now().Add(s.opts.ActiveTTL)
			started = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if started {
		quiz, err := s.quizzes.GetQuiz(ctx, match.QuizID)
		if err != nil {
			return err
		}
		s.events.Broadcast(matchID, "duel-started", map[string]any{
			"matchId":  matchID,
			"player1":  playerSummary(match.Player1),
			"player2":  playerSummary(match.Player2),
			"question": duelQuestionView(quiz, 0),
		})
	}
	return nil
}

// SubmitDuelAnswer scores one answer on the submitter's private cursor. Flat
// points per correct answer; speed matters only through the aggregate-time
// tie-break. The player's next question is pushed after a short fixed delay,
// independent of the opponent's progress; both players get a score update.
func (s *DuelService) SubmitDuelAnswer(ctx context.Context, matchID, userID string, questionIndex, answer int, timeSpent float64) (*DuelAnswerOutcome, error) {
	current, err := s.store.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return nil, err
	}

	var (
		outcome   DuelAnswerOutcome
		nextIndex = -1
	)
	match, err := updateWithRetry(ctx, s.store, matchID, func(m *domain.DuelMatch) error {
		outcome, nextIndex = DuelAnswerOutcome{}, -1
		if m.Status != domain.MatchActive {
			return domain.ErrInvalidState
		}
		p := m.Player(userID)
		if p == nil {
			return domain.ErrParticipantNotFound
		}
		if questionIndex != len(p.Answers) || questionIndex >= len(quiz.Questions) {
			return domain.ErrWrongQuestion
		}

		question := quiz.Questions[questionIndex]
		correct, points := ScoreDuelAnswer(question, answer)
		p.Answers = append(p.Answers, domain.AnswerRecord{
			QuestionIndex: questionIndex,
			Answer:        answer,
			IsCorrect:     correct,
			TimeSpent:     timeSpent,
			PointsEarned:  points,
		})
		p.Score += points
		if correct {
			p.CorrectAnswers++
		}
		p.TotalTime += timeSpent

		if bothComplete(m, len(quiz.Questions)) {
			m.Status = domain.MatchCompleted
			m.Winner = DuelWinner(m.Player1, m.Player2)
		} else if len(p.Answers) < len(quiz.Questions) {
			nextIndex = len(p.Answers)
		}

		outcome = DuelAnswerOutcome{
			IsCorrect:     correct,
			PointsEarned:  points,
			CorrectAnswer: question.CorrectIndex,
			Explanation:   question.Explanation,
			Completed:     m.Status == domain.MatchCompleted,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Broadcast(matchID, "duel-score-update", map[string]any{
		"player1": playerSummary(match.Player1),
		"player2": playerSummary(match.Player2),
	})

	if match.Status == domain.MatchCompleted {
		s.finishMatch(ctx, match, quiz, "")
	} else if nextIndex >= 0 {
		view := duelQuestionView(quiz, nextIndex)
		s.schedule(s.opts.NextQuestionDelay, func() {
			s.events.SendToUser(matchID, userID, "duel-question", view)
		})
	}
	return &outcome, nil
}

// Cancel abandons a match that has not been paired yet.
func (s *DuelService) Cancel(ctx context.Context, matchID string) error {
	_, err := updateWithRetry(ctx, s.store, matchID, func(m *domain.DuelMatch) error {
		if m.Status != domain.MatchWaiting {
			return domain.ErrInvalidState
		}
		m.Status = domain.MatchCancelled
		return nil
	})
	if err != nil {
		return err
	}
	s.events.Broadcast(matchID, "duel-cancelled", map[string]any{"reason": "cancelled"})
	s.events.Release(matchID)
	return nil
}

// HandleDisconnect forfeits an underway match to the remaining player, or
// cancels one still waiting.
func (s *DuelService) HandleDisconnect(ctx context.Context, matchID, connID string) {
	var (
		winner       *string
		cancelledNow bool
	)
	match, err := updateWithRetry(ctx, s.store, matchID, func(m *domain.DuelMatch) error {
		winner, cancelledNow = nil, false
		if m.Status == domain.MatchCompleted || m.Status == domain.MatchCancelled {
			return errSkipSave
		}
		p := m.PlayerByConn(connID)
		if p == nil {
			return errSkipSave
		}
		p.IsActive = false

		opponent := m.Opponent(p.UserID)
		if m.Status != domain.MatchWaiting && opponent != nil && opponent.IsActive {
			m.Status = domain.MatchCompleted
			m.Winner = &opponent.UserID
			winner = m.Winner
			return nil
		}
		m.Status = domain.MatchCancelled
		cancelledNow = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrMatchNotFound) {
			log.Printf("disconnect handling for duel %s: %v", matchID, err)
		}
		return
	}

	if winner != nil {
		quiz, qerr := s.quizzes.GetQuiz(ctx, match.QuizID)
		if qerr != nil {
			log.Printf("load quiz for forfeited duel %s: %v", matchID, qerr)
			s.events.Release(matchID)
			return
		}
		s.finishMatch(ctx, match, quiz, "forfeit")
		return
	}
	if cancelledNow {
		s.events.Broadcast(matchID, "duel-cancelled", map[string]any{"reason": "disconnected"})
		s.events.Release(matchID)
	}
}

// ReapExpired reclaims matches whose expiry has passed without completion.
// Run periodically from the server loop.
func (s *DuelService) ReapExpired(ctx context.Context) (int, error) {
	ids, err := s.store.Expired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	reaped := 0
	for _, id := range ids {
		match, err := s.store.Get(ctx, id)
		if errors.Is(err, domain.ErrMatchNotFound) {
			continue
		}
		if err != nil {
			return reaped, err
		}
		if match.Status == domain.MatchWaiting || match.Status == domain.MatchReady || match.Status == domain.MatchActive {
			s.events.Broadcast(id, "duel-cancelled", map[string]any{"reason": "expired"})
			s.events.Release(id)
		}
		if err := s.store.Delete(ctx, id); err != nil {
			return reaped, err
		}
		reaped++
	}
	if reaped > 0 {
		log.Printf("reaped %d expired duel matches", reaped)
	}
	return reaped, nil
}

// finishMatch runs completion side effects against persisted state.
func (s *DuelService) finishMatch(ctx context.Context, match *domain.DuelMatch, quiz domain.Quiz, reason string) {
	if err := s.finalizer.FinalizeMatch(ctx, match, quiz); err != nil {
		log.Printf("finalize duel %s: %v", match.MatchID, err)
	}
	payload := map[string]any{
		"player1": playerSummary(match.Player1),
		"player2": playerSummary(match.Player2),
	}
	if match.Winner != nil {
		payload["winner"] = *match.Winner
	} else {
		payload["winner"] = nil
	}
	if reason != "" {
		payload["reason"] = reason
	}
	s.events.Broadcast(match.MatchID, "duel-ended", payload)
	s.events.Release(match.MatchID)
}

func bothComplete(m *domain.DuelMatch, total int) bool {
	return m.Player1 != nil && m.Player2 != nil &&
		len(m.Player1.Answers) == total && len(m.Player2.Answers) == total
}

func playerSummary(p *domain.DuelPlayer) map[string]any {
	if p == nil {
		return nil
	}
	return map[string]any{
		"userId":         p.UserID,
		"username":       p.Username,
		"avatar":         p.Avatar,
		"score":          p.Score,
		"correctAnswers": p.CorrectAnswers,
		"totalTime":      p.TotalTime,
		"answered":       len(p.Answers),
		"isActive":       p.IsActive,
	}
}

func duelQuestionView(quiz domain.Quiz, index int) domain.QuestionView {
	return questionView(quiz, index, domain.DefaultSessionSettings())
}

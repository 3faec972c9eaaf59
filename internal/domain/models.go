package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	SessionWaiting   SessionStatus = "waiting"
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// MatchStatus is the lifecycle state of a duel match.
type MatchStatus string

const (
	MatchWaiting   MatchStatus = "waiting"
	MatchReady     MatchStatus = "ready"
	MatchActive    MatchStatus = "active"
	MatchCompleted MatchStatus = "completed"
	MatchCancelled MatchStatus = "cancelled"
)

// AnswerRecord is one entry in a participant's append-only answer log.
type AnswerRecord struct {
	QuestionIndex int     `json:"questionIndex"`
	Answer        int     `json:"answer"`
	IsCorrect     bool    `json:"isCorrect"`
	TimeSpent     float64 `json:"timeSpent"` // seconds
	PointsEarned  int     `json:"pointsEarned"`
}

// SessionSettings controls pacing and admission for a live session.
type SessionSettings struct {
	TimePerQuestionSec int  `json:"timePerQuestionSec"`
	MaxParticipants    int  `json:"maxParticipants"`
	AllowLateJoin      bool `json:"allowLateJoin"`
	ShowCorrectAnswers bool `json:"showCorrectAnswers"`
	ShowLeaderboard    bool `json:"showLeaderboard"`
}

// DefaultSessionSettings returns the settings applied when the host sends none.
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		TimePerQuestionSec: 30,
		MaxParticipants:    50,
		AllowLateJoin:      true,
		ShowCorrectAnswers: true,
		ShowLeaderboard:    true,
	}
}

// Participant is a member of a live session. Participants are never deleted,
// only deactivated, so score history survives a disconnect.
type Participant struct {
	UserID   string         `json:"userId"`
	Username string         `json:"username"`
	Avatar   string         `json:"avatar,omitempty"`
	ConnID   string         `json:"connectionId"`
	Score    int            `json:"score"`
	Answers  []AnswerRecord `json:"answers"`
	IsActive bool           `json:"isActive"`
	JoinedAt time.Time      `json:"joinedAt"`
	LeftAt   *time.Time     `json:"leftAt,omitempty"`
}

// LiveSession is the authoritative aggregate for one hosted quiz run.
type LiveSession struct {
	Code              string             `json:"code"`
	QuizID            string             `json:"quizId"`
	HostID            string             `json:"hostId"`
	HostUsername      string             `json:"hostUsername,omitempty"`
	HostConnID        string             `json:"hostConnectionId"`
	Status            SessionStatus      `json:"status"`
	CurrentQuestion   int                `json:"currentQuestionIndex"` // -1 before start
	QuestionStartedAt time.Time          `json:"questionStartedAt,omitempty"`
	Participants      []Participant      `json:"participants"`
	Settings          SessionSettings    `json:"settings"`
	Version           int64              `json:"version"`
	FinalLeaderboard  []LeaderboardEntry `json:"finalLeaderboard,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
}

// Participant returns a pointer into the roster, or nil.
func (s *LiveSession) Participant(userID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return &s.Participants[i]
		}
	}
	return nil
}

// ParticipantByConn resolves a roster entry by its latest connection id.
func (s *LiveSession) ParticipantByConn(connID string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ConnID == connID {
			return &s.Participants[i]
		}
	}
	return nil
}

// ActiveCount returns the number of currently active participants.
func (s *LiveSession) ActiveCount() int {
	n := 0
	for i := range s.Participants {
		if s.Participants[i].IsActive {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so stored state is never shared with callers.
func (s *LiveSession) Clone() *LiveSession {
	out := *s
	out.Participants = make([]Participant, len(s.Participants))
	for i, p := range s.Participants {
		cp := p
		cp.Answers = append([]AnswerRecord(nil), p.Answers...)
		if p.LeftAt != nil {
			t := *p.LeftAt
			cp.LeftAt = &t
		}
		out.Participants[i] = cp
	}
	out.FinalLeaderboard = append([]LeaderboardEntry(nil), s.FinalLeaderboard...)
	return &out
}

// DuelPlayer is one side of a duel match. len(Answers) is the player's
// private progress cursor; the two sides advance independently.
type DuelPlayer struct {
	UserID         string         `json:"userId"`
	Username       string         `json:"username"`
	Avatar         string         `json:"avatar,omitempty"`
	ConnID         string         `json:"connectionId"`
	Score          int            `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	TotalTime      float64        `json:"totalTime"` // seconds, summed over answers
	Answers        []AnswerRecord `json:"answers"`
	IsReady        bool           `json:"isReady"`
	IsActive       bool           `json:"isActive"`
}

// DuelMatch is the authoritative aggregate for one 1v1 quiz race.
// Player2 is nil until matchmaking assigns it, atomically with waiting→ready.
type DuelMatch struct {
	MatchID   string      `json:"matchId"`
	QuizID    string      `json:"quizId"`
	Status    MatchStatus `json:"status"`
	Player1   *DuelPlayer `json:"player1"`
	Player2   *DuelPlayer `json:"player2,omitempty"`
	Winner    *string     `json:"winner,omitempty"` // nil while running, and on a draw
	Version   int64       `json:"version"`
	ExpiresAt time.Time   `json:"expiresAt"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Player returns the slot belonging to userID, or nil.
func (m *DuelMatch) Player(userID string) *DuelPlayer {
	if m.Player1 != nil && m.Player1.UserID == userID {
		return m.Player1
	}
	if m.Player2 != nil && m.Player2.UserID == userID {
		return m.Player2
	}
	return nil
}

// Opponent returns the other player's slot, or nil.
func (m *DuelMatch) Opponent(userID string) *DuelPlayer {
	if m.Player1 != nil && m.Player1.UserID == userID {
		return m.Player2
	}
	if m.Player2 != nil && m.Player2.UserID == userID {
		return m.Player1
	}
	return nil
}

// PlayerByConn resolves a slot by its latest connection id.
func (m *DuelMatch) PlayerByConn(connID string) *DuelPlayer {
	if m.Player1 != nil && m.Player1.ConnID == connID {
		return m.Player1
	}
	if m.Player2 != nil && m.Player2.ConnID == connID {
		return m.Player2
	}
	return nil
}

// Clone returns a deep copy of the match.
func (m *DuelMatch) Clone() *DuelMatch {
	out := *m
	out.Player1 = clonePlayer(m.Player1)
	out.Player2 = clonePlayer(m.Player2)
	if m.Winner != nil {
		w := *m.Winner
		out.Winner = &w
	}
	return &out
}

func clonePlayer(p *DuelPlayer) *DuelPlayer {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Answers = append([]AnswerRecord(nil), p.Answers...)
	return &cp
}

// Option values in Question.Options are answered by index.
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Points       int      `json:"points"`       // defaults to 100 if zero
	TimeLimitSec int      `json:"timeLimitSec"` // falls back to session settings if zero
	Explanation  string   `json:"explanation,omitempty"`
}

// Quiz is the externally-provided question set for a session or duel.
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title,omitempty"`
	Questions    []Question `json:"questions"`
	PassingScore int        `json:"passingScore"` // percent, defaults to 60 if zero
}

// QuestionView is the client-safe projection of a question. It never carries
// the correct answer or the explanation.
type QuestionView struct {
	Index        int      `json:"index"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	Points       int      `json:"points"`
	TimeLimitSec int      `json:"timeLimitSec"`
	Total        int      `json:"totalQuestions"`
}

// LeaderboardEntry is one ranked row of a session scoreboard.
type LeaderboardEntry struct {
	Rank           int     `json:"rank"`
	UserID         string  `json:"userId"`
	Username       string  `json:"username"`
	Avatar         string  `json:"avatar,omitempty"`
	Score          int     `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalTime      float64 `json:"totalTime"`
	AnswersCount   int     `json:"answersCount"`
	IsActive       bool    `json:"isActive"`
}

// ResultKind distinguishes where a QuizResult came from.
type ResultKind string

const (
	ResultLive ResultKind = "live"
	ResultDuel ResultKind = "duel"
)

// QuizResult is the durable per-participant outcome emitted by the Finalizer.
// The upsert key is (UserID, QuizID, RefID), which makes finalization idempotent.
type QuizResult struct {
	UserID         string     `json:"userId"`
	Username       string     `json:"username"`
	QuizID         string     `json:"quizId"`
	RefID          string     `json:"refId"` // session code or match id
	Kind           ResultKind `json:"kind"`
	Score          int        `json:"score"`
	TotalQuestions int        `json:"totalQuestions"`
	CorrectAnswers int        `json:"correctAnswers"`
	Percentage     float64    `json:"percentage"`
	Passed         bool       `json:"passed"`
	Grade          string     `json:"grade"`
	CompletedAt    time.Time  `json:"completedAt"`
}

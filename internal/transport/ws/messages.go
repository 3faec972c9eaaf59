package ws

import (
	"encoding/json"

	"cognito-live-service/internal/domain"
)

// inbound is a client command. Payload stays raw until the dispatcher knows
// which shape to decode it into.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ack is the per-command reply, distinct from broadcast events.
type ack struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type createSessionPayload struct {
	QuizID   string                  `json:"quizId"`
	HostID   string                  `json:"hostId"`
	Username string                  `json:"username"`
	Settings *domain.SessionSettings `json:"settings,omitempty"`
}

type joinSessionPayload struct {
	SessionCode string `json:"sessionCode"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	Avatar      string `json:"avatar,omitempty"`
}

type sessionPayload struct {
	SessionCode string `json:"sessionCode"`
}

type submitAnswerPayload struct {
	SessionCode   string  `json:"sessionCode"`
	UserID        string  `json:"userId"`
	QuestionIndex int     `json:"questionIndex"`
	Answer        int     `json:"answer"`
	TimeSpent     float64 `json:"timeSpent"`
}

type findDuelPayload struct {
	QuizID   string `json:"quizId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type duelReadyPayload struct {
	MatchID string `json:"matchId"`
	UserID  string `json:"userId"`
}

type duelAnswerPayload struct {
	MatchID       string  `json:"matchId"`
	UserID        string  `json:"userId"`
	QuestionIndex int     `json:"questionIndex"`
	Answer        int     `json:"answer"`
	TimeSpent     float64 `json:"timeSpent"`
}

type cancelDuelPayload struct {
	MatchID string `json:"matchId"`
}

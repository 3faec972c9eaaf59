package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"cognito-live-service/internal/app"
	"cognito-live-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests and dispatches client commands to the
// session and duel engines. Every command gets an ack on the issuing
// connection; state fan-out goes through the hub.
type Handler struct {
	hub      *Hub
	sessions *app.SessionService
	duels    *app.DuelService
}

func NewHandler(hub *Hub, sessions *app.SessionService, duels *app.DuelService) *Handler {
	return &Handler{
		hub:      hub,
		sessions: sessions,
		duels:    duels,
	}
}

// ServeWS handles GET /ws.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}

	conn := NewConnection(uuid.NewString())

	go h.writePump(wsConn, conn)
	h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.disconnect(conn)
		close(conn.Send)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read (conn %s): %v", conn.ID, err)
			}
			return
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.ack(ack{Type: "ack", Event: "unknown", Success: false, Error: "malformed message"})
			continue
		}
		h.dispatch(conn, msg)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect applies the state-machine consequence of a dropped socket:
// host drops pause their session, participant drops deactivate them, duel
// drops forfeit or cancel the match.
func (h *Handler) disconnect(conn *Connection) {
	channel, kind, ok := h.hub.Detach(conn)
	if !ok {
		return
	}
	ctx := context.Background()
	switch kind {
	case "session":
		h.sessions.HandleDisconnect(ctx, channel, conn.ID)
	case "duel":
		h.duels.HandleDisconnect(ctx, channel, conn.ID)
	}
}

func (h *Handler) dispatch(conn *Connection, msg inbound) {
	ctx := context.Background()

	switch msg.Type {
	case "create-session":
		var p createSessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		session, err := h.sessions.CreateSession(ctx, p.QuizID, p.HostID, p.Username, conn.ID, p.Settings)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		h.hub.Attach(conn, session.Code, p.HostID, "session", true)
		conn.ok(msg.Type, struct {
			SessionCode string                 `json:"sessionCode"`
			Settings    domain.SessionSettings `json:"settings"`
		}{session.Code, session.Settings})

	case "join-session":
		var p joinSessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		res, err := h.sessions.JoinSession(ctx, p.SessionCode, p.UserID, p.Username, p.Avatar, conn.ID)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		h.hub.Attach(conn, p.SessionCode, p.UserID, "session", res.IsHost)
		conn.ok(msg.Type, res)

	case "start-quiz":
		var p sessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		if err := h.sessions.StartQuiz(ctx, p.SessionCode, conn.ID); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, nil)

	case "pause-quiz":
		var p sessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		if err := h.sessions.PauseQuiz(ctx, p.SessionCode, conn.ID); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, nil)

	case "resume-quiz":
		var p sessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		if err := h.sessions.ResumeQuiz(ctx, p.SessionCode, conn.ID); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, nil)

	case "submit-answer":
		var p submitAnswerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		outcome, err := h.sessions.SubmitAnswer(ctx, p.SessionCode, p.UserID, p.QuestionIndex, p.Answer, p.TimeSpent)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, outcome)

	case "next-question":
		var p sessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		index, finished, err := h.sessions.NextQuestion(ctx, p.SessionCode, conn.ID)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, struct {
			QuestionIndex int  `json:"questionIndex"`
			Finished      bool `json:"finished"`
		}{index, finished})

	case "end-session":
		var p sessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		leaderboard, err := h.sessions.EndSession(ctx, p.SessionCode, conn.ID)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, struct {
			Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
		}{leaderboard})

	case "find-duel-match":
		var p findDuelPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		ticket, err := h.duels.FindMatch(ctx, p.QuizID, p.UserID, p.Username, p.Avatar, conn.ID)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		h.hub.Attach(conn, ticket.MatchID, p.UserID, "duel", false)
		conn.ok(msg.Type, ticket)

	case "duel-ready":
		var p duelReadyPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		if err := h.duels.MarkReady(ctx, p.MatchID, p.UserID, conn.ID); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, nil)

	case "duel-answer":
		var p duelAnswerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		outcome, err := h.duels.SubmitDuelAnswer(ctx, p.MatchID, p.UserID, p.QuestionIndex, p.Answer, p.TimeSpent)
		if err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, outcome)

	case "cancel-duel":
		var p cancelDuelPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		if err := h.duels.Cancel(ctx, p.MatchID); err != nil {
			conn.fail(msg.Type, err)
			return
		}
		conn.ok(msg.Type, nil)

	default:
		conn.ack(ack{Type: "ack", Event: msg.Type, Success: false, Error: "unknown command"})
	}
}

func (c *Connection) ok(event string, data any) {
	c.ack(ack{Type: "ack", Event: event, Success: true, Data: data})
}

func (c *Connection) fail(event string, err error) {
	c.ack(ack{Type: "ack", Event: event, Success: false, Error: err.Error()})
}

func (c *Connection) ack(a ack) {
	data, err := json.Marshal(a)
	if err != nil {
		log.Printf("marshal %s ack: %v", a.Event, err)
		return
	}
	c.trySend(data)
}

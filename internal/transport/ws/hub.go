package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// envelope is the wire format for every server-to-client event.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Connection is one live WebSocket attachment. Send is drained by the
// connection's writer goroutine; the hub never writes to the socket directly.
type Connection struct {
	ID   string
	Send chan []byte
}

func NewConnection(id string) *Connection {
	return &Connection{ID: id, Send: make(chan []byte, 64)}
}

type binding struct {
	channel string // session code or match id
	userID  string
	isHost  bool
	kind    string // "session" or "duel"
}

// Hub is the connection registry: an in-memory routing table from session
// codes and match ids to the live connections attached to them. It is purely
// advisory — rebuilt as clients reconnect and never consulted for
// correctness — so it carries no versioning, just a lock.
type Hub struct {
	mu       sync.RWMutex
	hosts    map[string]*Connection            // channel -> host connection
	members  map[string]map[string]*Connection // channel -> userID -> connection
	bindings map[*Connection]binding
}

func NewHub() *Hub {
	return &Hub{
		hosts:    make(map[string]*Connection),
		members:  make(map[string]map[string]*Connection),
		bindings: make(map[*Connection]binding),
	}
}

// Attach routes a connection under a channel. A connection holds at most one
// binding; re-attaching moves it.
func (h *Hub) Attach(conn *Connection, channel, userID, kind string, isHost bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(conn)
	b := binding{channel: channel, userID: userID, isHost: isHost, kind: kind}
	h.bindings[conn] = b
	if isHost {
		h.hosts[channel] = conn
		return
	}
	if h.members[channel] == nil {
		h.members[channel] = make(map[string]*Connection)
	}
	h.members[channel][userID] = conn
}

// Detach removes a connection's routing entry and reports what it was bound
// to, so the disconnect handler can apply the state-machine consequence.
func (h *Hub) Detach(conn *Connection) (channel, kind string, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, bound := h.bindings[conn]
	h.detachLocked(conn)
	return b.channel, b.kind, bound
}

func (h *Hub) detachLocked(conn *Connection) {
	b, ok := h.bindings[conn]
	if !ok {
		return
	}
	delete(h.bindings, conn)
	if b.isHost {
		if h.hosts[b.channel] == conn {
			delete(h.hosts, b.channel)
		}
		return
	}
	if conns, ok := h.members[b.channel]; ok {
		if conns[b.userID] == conn {
			delete(conns, b.userID)
		}
		if len(conns) == 0 {
			delete(h.members, b.channel)
		}
	}
}

// Broadcast fans an event out to the host and every member of a channel.
func (h *Hub) Broadcast(channel, event string, payload any) {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		log.Printf("marshal %s broadcast: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if host, ok := h.hosts[channel]; ok {
		host.trySend(data)
	}
	for _, conn := range h.members[channel] {
		conn.trySend(data)
	}
}

// SendToUser unicasts an event to one member of a channel.
func (h *Hub) SendToUser(channel, userID, event string, payload any) {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		log.Printf("marshal %s unicast: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if conn, ok := h.members[channel][userID]; ok {
		conn.trySend(data)
	}
}

// SendToHost unicasts an event to a channel's host connection.
func (h *Hub) SendToHost(channel, event string, payload any) {
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		log.Printf("marshal %s host event: %v", event, err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if host, ok := h.hosts[channel]; ok {
		host.trySend(data)
	}
}

// Release drops every routing entry for a finished channel. Connections stay
// open; clients decide when to go away.
func (h *Hub) Release(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if host, ok := h.hosts[channel]; ok {
		delete(h.bindings, host)
		delete(h.hosts, channel)
	}
	for _, conn := range h.members[channel] {
		delete(h.bindings, conn)
	}
	delete(h.members, channel)
}

// trySend drops the message when the client's buffer is full rather than
// blocking the caller; broadcasts are fire-and-forget.
func (c *Connection) trySend(data []byte) {
	select {
	case c.Send <- data:
	default:
	}
}

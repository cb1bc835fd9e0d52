package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relayhq/chat-api/metrics"
)

const WriteTimeout = 10 * time.Second

// Connection is one subscriber socket. writeMu serializes writes: the
// read loop, fanout goroutines and shutdown all write to the same
// conn.
type Connection struct {
	ws             *websocket.Conn
	UserID         string
	OrgID          string
	ConversationID string
	writeMu        sync.Mutex
}

func (c *Connection) writeJSON(event any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	return c.ws.WriteJSON(event)
}

func (c *Connection) writeClose(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
	c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason))
}

// Hub tracks the sockets subscribed to each conversation and fans
// events out to them.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Connection]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Connection]struct{})}
}

// Register adds conn to its conversation, confirms to the new socket
// and tells the rest of the room someone joined.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	if h.subs[conn.ConversationID] == nil {
		h.subs[conn.ConversationID] = make(map[*Connection]struct{})
	}
	h.subs[conn.ConversationID][conn] = struct{}{}
	total := len(h.subs[conn.ConversationID])
	h.mu.Unlock()

	metrics.WebsocketConnectionsActive.WithLabelValues(conn.ConversationID).Inc()
	metrics.WebsocketConnectionsTotal.WithLabelValues(conn.ConversationID).Inc()
	slog.Info("ws: connected",
		"conversation_id", conn.ConversationID,
		"user_id", conn.UserID,
		"total", total)

	h.SendTo(conn, map[string]any{
		"type":            "connected",
		"conversation_id": conn.ConversationID,
		"user_id":         conn.UserID,
		"org_id":          conn.OrgID,
	})

	h.Broadcast(conn.ConversationID, map[string]any{
		"type":             "user_joined",
		"user_id":          conn.UserID,
		"connection_count": total,
	})
}

// Deregister removes conn from its conversation. Idempotent; repeated
// deregistrations of the same socket count once.
func (h *Hub) Deregister(conn *Connection, reason string) {
	h.mu.Lock()
	subs, ok := h.subs[conn.ConversationID]
	if ok {
		if _, present := subs[conn]; !present {
			ok = false
		}
		delete(subs, conn)
		if len(subs) == 0 {
			delete(h.subs, conn.ConversationID)
		}
	}
	remaining := len(subs)
	h.mu.Unlock()

	if !ok {
		return
	}

	metrics.WebsocketConnectionsActive.WithLabelValues(conn.ConversationID).Dec()
	metrics.WebsocketDisconnectionsTotal.WithLabelValues(conn.ConversationID, reason).Inc()
	slog.Info("ws: disconnected",
		"conversation_id", conn.ConversationID,
		"user_id", conn.UserID,
		"reason", reason)

	h.Broadcast(conn.ConversationID, map[string]any{
		"type":             "user_left",
		"user_id":          conn.UserID,
		"connection_count": remaining,
	})
}

// SendTo delivers an event to a single socket. A failed write drops
// the connection with reason "send_error".
func (h *Hub) SendTo(conn *Connection, event any) {
	if err := conn.writeJSON(event); err != nil {
		slog.Warn("ws: send error",
			"conversation_id", conn.ConversationID,
			"user_id", conn.UserID,
			"error", err)
		h.Deregister(conn, "send_error")
	}
}

// Broadcast sends event to every socket in the conversation, one
// goroutine per socket so a slow client only stalls its own delivery.
// Sockets that fail to take the write are deregistered.
func (h *Hub) Broadcast(conversationID string, event any) {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.subs[conversationID]))
	for conn := range h.subs[conversationID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("ws: encode broadcast error", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			conn.writeMu.Lock()
			conn.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
			err := conn.ws.WriteMessage(websocket.TextMessage, payload)
			conn.writeMu.Unlock()
			if err != nil {
				slog.Warn("ws: broadcast error",
					"conversation_id", conversationID,
					"user_id", conn.UserID,
					"error", err)
				metrics.WebsocketBroadcastErrorsTotal.WithLabelValues(conversationID).Inc()
				h.Deregister(conn, "broadcast_error")
			}
		}(conn)
	}
	wg.Wait()

	metrics.WebsocketBroadcastTotal.WithLabelValues(conversationID).Inc()
}

// ActiveConnections reports the socket count for one conversation.
func (h *Hub) ActiveConnections(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// ShutdownAll notifies every socket the server is going away, closes
// them and clears the registry. Used during graceful shutdown.
func (h *Hub) ShutdownAll() {
	h.mu.Lock()
	all := make([]*Connection, 0)
	for _, subs := range h.subs {
		for conn := range subs {
			all = append(all, conn)
		}
	}
	h.subs = make(map[string]map[*Connection]struct{})
	h.mu.Unlock()

	slog.Info("ws: shutting down all connections", "total", len(all))

	var wg sync.WaitGroup
	for _, conn := range all {
		wg.Add(1)
		go func(conn *Connection) {
			defer wg.Done()
			conn.writeJSON(map[string]any{
				"type":    "server_shutdown",
				"message": "server is shutting down, please reconnect",
			})
			conn.writeClose(websocket.CloseGoingAway, "server shutdown")
			conn.ws.Close()
			metrics.WebsocketConnectionsActive.WithLabelValues(conn.ConversationID).Dec()
			metrics.WebsocketDisconnectionsTotal.WithLabelValues(conn.ConversationID, "server_shutdown").Inc()
		}(conn)
	}
	wg.Wait()
}

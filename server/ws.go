package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/relayhq/chat-api/config"
	"github.com/relayhq/chat-api/domain"
	"github.com/relayhq/chat-api/server/handlers"
)

// TokenValidator verifies an access token and returns the caller
// identity.
type TokenValidator interface {
	Validate(token string) (*domain.AuthContext, error)
}

type WSHandler struct {
	hub       *Hub
	cfg       *config.Config
	validator TokenValidator
	resolver  handlers.PermissionChecker
	upgrader  websocket.Upgrader
}

func NewWSHandler(hub *Hub, cfg *config.Config, validator TokenValidator, resolver handlers.PermissionChecker) *WSHandler {
	h := &WSHandler{hub: hub, cfg: cfg, validator: validator, resolver: resolver}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	allowedOrigins := h.cfg.Server.AllowedOrigins
	for _, o := range allowedOrigins {
		if o == "*" {
			return true
		}
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return h.cfg.Server.AllowEmptyOrigin
	}
	for _, allowed := range allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the socket, then authorizes it. Browsers cannot
// read the response body of a failed upgrade, so authorization errors
// are delivered as close frames on the upgraded connection.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversation_id")
	token := r.URL.Query().Get("token")

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws: upgrade error", "error", err)
		return
	}
	defer ws.Close()

	conn := &Connection{ws: ws, ConversationID: conversationID}

	authCtx, err := h.validator.Validate(token)
	if err != nil {
		slog.Warn("ws: rejected, invalid token", "conversation_id", conversationID, "error", err)
		conn.writeClose(websocket.ClosePolicyViolation, "invalid token")
		return
	}
	conn.UserID = authCtx.UserID
	conn.OrgID = authCtx.OrgID

	if !authCtx.HasScope(domain.PermissionRead) {
		slog.Warn("ws: rejected, missing read scope",
			"conversation_id", conversationID, "user_id", authCtx.UserID)
		conn.writeClose(websocket.ClosePolicyViolation, "missing chat:read scope")
		return
	}

	decision, err := h.resolver.Check(r.Context(), authCtx.OrgID, authCtx.UserID, domain.PermissionRead, conversationID)
	if err != nil {
		slog.Error("ws: authorization unavailable",
			"conversation_id", conversationID, "user_id", authCtx.UserID, "error", err)
		conn.writeClose(websocket.CloseInternalServerErr, "authorization unavailable")
		return
	}
	if !decision.Allowed {
		slog.Warn("ws: rejected, not a conversation member",
			"conversation_id", conversationID, "user_id", authCtx.UserID)
		conn.writeClose(websocket.ClosePolicyViolation, "not authorized for this conversation")
		return
	}

	h.hub.Register(conn)
	defer h.hub.Deregister(conn, "normal")

	h.readLoop(conn)
}

// readLoop consumes client frames until the socket closes. Clients
// only send pings and typing notifications; everything else is
// ignored.
func (h *WSHandler) readLoop(conn *Connection) {
	for {
		var inbound struct {
			Type string `json:"type"`
		}
		if err := conn.ws.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("ws: read error", "conversation_id", conn.ConversationID, "error", err)
			}
			return
		}

		switch inbound.Type {
		case "ping":
			h.hub.SendTo(conn, map[string]any{"type": "pong"})
		case "typing":
			h.hub.Broadcast(conn.ConversationID, map[string]any{
				"type":    "user_typing",
				"user_id": conn.UserID,
			})
		}
	}
}

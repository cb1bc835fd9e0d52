package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/relayhq/chat-api/domain"
	"github.com/relayhq/chat-api/services"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type MessageHandler struct {
	svc      *services.ChatService
	resolver PermissionChecker
}

func NewMessageHandler(svc *services.ChatService, resolver PermissionChecker) *MessageHandler {
	return &MessageHandler{svc: svc, resolver: resolver}
}

type createMessageRequest struct {
	Content string `json:"content"`
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

// Create handles POST /conversations/{conversation_id}/messages.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	authCtx := AuthFromContext(r.Context())
	if authCtx == nil {
		respondError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "conversation_id")

	if !h.authorize(w, r, authCtx, domain.PermissionWrite, conversationID) {
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.CreateMessage(r.Context(), authCtx, conversationID, req.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, msg, http.StatusCreated)
}

// List handles GET /conversations/{conversation_id}/messages.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	authCtx := AuthFromContext(r.Context())
	if authCtx == nil {
		respondError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "conversation_id")

	if !h.authorize(w, r, authCtx, domain.PermissionRead, conversationID) {
		return
	}

	page, err := parseIntQuery(r, "page", 1)
	if err != nil {
		respondError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	pageSize, err := parseIntQuery(r, "page_size", defaultPageSize)
	if err != nil {
		respondError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if page < 1 {
		respondError(w, "page must be at least 1", http.StatusUnprocessableEntity)
		return
	}
	if pageSize < 1 || pageSize > maxPageSize {
		respondError(w, "page_size must be between 1 and 100", http.StatusUnprocessableEntity)
		return
	}

	result, err := h.svc.ListMessages(r.Context(), authCtx, conversationID, page, pageSize)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, result, http.StatusOK)
}

// Update handles PUT /conversations/{conversation_id}/messages/{message_id}.
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	authCtx := AuthFromContext(r.Context())
	if authCtx == nil {
		respondError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "conversation_id")
	messageID := chi.URLParam(r, "message_id")

	if !h.authorize(w, r, authCtx, domain.PermissionWrite, conversationID) {
		return
	}

	var req updateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.UpdateMessage(r.Context(), authCtx, conversationID, messageID, req.Content)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, msg, http.StatusOK)
}

// Delete handles DELETE /conversations/{conversation_id}/messages/{message_id}.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	authCtx := AuthFromContext(r.Context())
	if authCtx == nil {
		respondError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "conversation_id")
	messageID := chi.URLParam(r, "message_id")

	if !h.authorize(w, r, authCtx, domain.PermissionWrite, conversationID) {
		return
	}

	isAdmin := h.isAdmin(r, authCtx, conversationID)
	if err := h.svc.DeleteMessage(r.Context(), authCtx, isAdmin, conversationID, messageID); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize runs the resolver check and writes the failure response
// itself. Returns true when the request may proceed.
func (h *MessageHandler) authorize(w http.ResponseWriter, r *http.Request, authCtx *domain.AuthContext, permission, conversationID string) bool {
	decision, err := h.resolver.Check(r.Context(), authCtx.OrgID, authCtx.UserID, permission, conversationID)
	if err != nil {
		respondError(w, "authorization service unavailable", http.StatusServiceUnavailable)
		return false
	}
	if !decision.Allowed {
		respondError(w, "permission denied", http.StatusForbidden)
		return false
	}
	return true
}

// isAdmin asks whether the caller holds chat:admin, letting them
// delete other users' messages. Best-effort: if the resolver is
// unavailable the caller is treated as a regular user rather than
// failing the request.
func (h *MessageHandler) isAdmin(r *http.Request, authCtx *domain.AuthContext, conversationID string) bool {
	decision, err := h.resolver.Check(r.Context(), authCtx.OrgID, authCtx.UserID, domain.PermissionAdmin, conversationID)
	if err != nil {
		return false
	}
	return decision.Allowed
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadID):
		respondError(w, "malformed message id", http.StatusBadRequest)
	case errors.Is(err, domain.ErrValidation):
		respondError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, "message not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, "permission denied", http.StatusForbidden)
	case errors.Is(err, domain.ErrUnavailable):
		respondError(w, "authorization service unavailable", http.StatusServiceUnavailable)
	default:
		respondError(w, "internal server error", http.StatusInternalServerError)
	}
}

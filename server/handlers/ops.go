package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// PermissionInvalidator drops cached authorization decisions.
type PermissionInvalidator interface {
	InvalidateUser(ctx context.Context, orgID, userID string)
}

// ConversationLister enumerates the conversations with messages in an
// org.
type ConversationLister interface {
	DistinctConversations(ctx context.Context, orgID string) ([]string, error)
}

// OpsHandler exposes operator endpoints. They authenticate with the
// shared service token, not a user token: callers are other backend
// services, typically the authorization service pushing a membership
// change.
type OpsHandler struct {
	serviceToken  string
	invalidator   PermissionInvalidator
	conversations ConversationLister
}

func NewOpsHandler(serviceToken string, invalidator PermissionInvalidator, conversations ConversationLister) *OpsHandler {
	return &OpsHandler{
		serviceToken:  serviceToken,
		invalidator:   invalidator,
		conversations: conversations,
	}
}

func (h *OpsHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	token := r.Header.Get("X-Service-Token")
	if h.serviceToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.serviceToken)) != 1 {
		respondError(w, "invalid service token", http.StatusUnauthorized)
		return false
	}
	return true
}

type invalidateRequest struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
}

// InvalidatePermissions handles POST /ops/invalidate-permissions,
// flushing a user's cached decisions after a permission change.
func (h *OpsHandler) InvalidatePermissions(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	var req invalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OrgID == "" || req.UserID == "" {
		respondError(w, "org_id and user_id are required", http.StatusUnprocessableEntity)
		return
	}

	h.invalidator.InvalidateUser(r.Context(), req.OrgID, req.UserID)
	slog.Info("permissions invalidated", "org_id", req.OrgID, "user_id", req.UserID)
	respondJSON(w, map[string]string{"status": "invalidated"}, http.StatusOK)
}

// ListConversations handles GET /ops/conversations?org_id=..., listing
// the conversations that hold messages for an org.
func (h *OpsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}

	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		respondError(w, "org_id is required", http.StatusUnprocessableEntity)
		return
	}

	ids, err := h.conversations.DistinctConversations(r.Context(), orgID)
	if err != nil {
		respondError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"conversations": ids}, http.StatusOK)
}

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/relayhq/chat-api/auth"
	"github.com/relayhq/chat-api/domain"
)

// PermissionChecker resolves whether a user holds a permission,
// optionally scoped to one conversation.
type PermissionChecker interface {
	Check(ctx context.Context, orgID, userID, permission, resourceID string) (auth.Decision, error)
}

type contextKey string

const authKey contextKey = "auth"

func AuthFromContext(ctx context.Context) *domain.AuthContext {
	if a, ok := ctx.Value(authKey).(*domain.AuthContext); ok {
		return a
	}
	return nil
}

func SetAuthInContext(ctx context.Context, a *domain.AuthContext) context.Context {
	return context.WithValue(ctx, authKey, a)
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

func parseIntQuery(r *http.Request, name string, defaultValue int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return i, nil
}

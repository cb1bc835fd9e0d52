package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingInvalidator struct {
	orgID  string
	userID string
	calls  int
}

func (r *recordingInvalidator) InvalidateUser(_ context.Context, orgID, userID string) {
	r.orgID = orgID
	r.userID = userID
	r.calls++
}

type staticConversations struct {
	ids []string
}

func (s staticConversations) DistinctConversations(_ context.Context, _ string) ([]string, error) {
	return s.ids, nil
}

func TestInvalidatePermissions(t *testing.T) {
	inv := &recordingInvalidator{}
	h := NewOpsHandler("svc-secret", inv, staticConversations{})

	req := httptest.NewRequest(http.MethodPost, "/ops/invalidate-permissions",
		strings.NewReader(`{"org_id":"org-1","user_id":"user-1"}`))
	req.Header.Set("X-Service-Token", "svc-secret")
	rec := httptest.NewRecorder()
	h.InvalidatePermissions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if inv.calls != 1 || inv.orgID != "org-1" || inv.userID != "user-1" {
		t.Errorf("invalidator got %+v", inv)
	}
}

func TestInvalidatePermissionsRejectsBadToken(t *testing.T) {
	inv := &recordingInvalidator{}
	h := NewOpsHandler("svc-secret", inv, staticConversations{})

	for _, token := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodPost, "/ops/invalidate-permissions",
			strings.NewReader(`{"org_id":"org-1","user_id":"user-1"}`))
		if token != "" {
			req.Header.Set("X-Service-Token", token)
		}
		rec := httptest.NewRecorder()
		h.InvalidatePermissions(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rec.Code)
		}
	}
	if inv.calls != 0 {
		t.Error("invalidator called despite bad token")
	}
}

func TestInvalidatePermissionsRejectsWhenUnconfigured(t *testing.T) {
	// An empty configured token must not turn into an open endpoint.
	h := NewOpsHandler("", &recordingInvalidator{}, staticConversations{})

	req := httptest.NewRequest(http.MethodPost, "/ops/invalidate-permissions",
		strings.NewReader(`{"org_id":"o","user_id":"u"}`))
	req.Header.Set("X-Service-Token", "")
	rec := httptest.NewRecorder()
	h.InvalidatePermissions(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestInvalidatePermissionsValidatesBody(t *testing.T) {
	h := NewOpsHandler("svc-secret", &recordingInvalidator{}, staticConversations{})

	req := httptest.NewRequest(http.MethodPost, "/ops/invalidate-permissions",
		strings.NewReader(`{"org_id":"org-1"}`))
	req.Header.Set("X-Service-Token", "svc-secret")
	rec := httptest.NewRecorder()
	h.InvalidatePermissions(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestListConversations(t *testing.T) {
	h := NewOpsHandler("svc-secret", &recordingInvalidator{}, staticConversations{ids: []string{"conv-a", "conv-b"}})

	req := httptest.NewRequest(http.MethodGet, "/ops/conversations?org_id=org-1", nil)
	req.Header.Set("X-Service-Token", "svc-secret")
	rec := httptest.NewRecorder()
	h.ListConversations(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Conversations []string `json:"conversations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Conversations) != 2 {
		t.Errorf("conversations = %v", body.Conversations)
	}
}

func TestListConversationsRequiresOrg(t *testing.T) {
	h := NewOpsHandler("svc-secret", &recordingInvalidator{}, staticConversations{})

	req := httptest.NewRequest(http.MethodGet, "/ops/conversations", nil)
	req.Header.Set("X-Service-Token", "svc-secret")
	rec := httptest.NewRecorder()
	h.ListConversations(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

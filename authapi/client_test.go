package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type staticTokens struct{ token string }

func (s staticTokens) Token(ctx context.Context) (string, error) { return s.token, nil }

func TestCheckPermission(t *testing.T) {
	var gotBody map[string]string
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/authorization/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotToken = r.Header.Get("X-Service-Token")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(CheckResult{Allowed: true, Groups: []string{"g1"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "svc-token", 5*time.Second, nil)
	result, err := c.CheckPermission(context.Background(), "org-1", "user-1", "chat:read")
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed")
	}
	if gotToken != "svc-token" {
		t.Errorf("X-Service-Token = %q, want svc-token", gotToken)
	}
	if gotBody["org_id"] != "org-1" || gotBody["user_id"] != "user-1" || gotBody["permission"] != "chat:read" {
		t.Errorf("unexpected request body %v", gotBody)
	}
}

func TestCheckPermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(CheckResult{Allowed: false, Reason: "not a member"})
	}))
	defer srv.Close()

	c := New(srv.URL, "svc-token", 5*time.Second, nil)
	result, err := c.CheckPermission(context.Background(), "org-1", "user-1", "chat:write")
	if err != nil {
		t.Fatalf("a denial must not be an error: %v", err)
	}
	if result.Allowed {
		t.Error("expected denial")
	}
	if result.Reason != "not a member" {
		t.Errorf("Reason = %q", result.Reason)
	}
}

func TestCheckPermissionInGroup(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/authorization/check-group" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(CheckResult{Allowed: true})
	}))
	defer srv.Close()

	c := New(srv.URL, "svc-token", 5*time.Second, nil)
	result, err := c.CheckPermissionInGroup(context.Background(), "org-1", "user-1", "conv-9", "chat:read")
	if err != nil {
		t.Fatalf("CheckPermissionInGroup: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed")
	}
	if gotBody["group_id"] != "conv-9" {
		t.Errorf("group_id = %q, want conv-9", gotBody["group_id"])
	}
}

func TestServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "svc-token", 5*time.Second, nil)
	if _, err := c.CheckPermission(context.Background(), "o", "u", "chat:read"); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestGetGroupUsesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Group{ID: "conv-9", Name: "general", OrganizationID: "org-1"})
	}))
	defer srv.Close()

	c := New(srv.URL, "svc-token", 5*time.Second, staticTokens{token: "oauth-abc"})
	group, err := c.GetGroup(context.Background(), "conv-9")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if gotAuth != "Bearer oauth-abc" {
		t.Errorf("Authorization = %q, want Bearer oauth-abc", gotAuth)
	}
	if group.ID != "conv-9" || group.OrganizationID != "org-1" {
		t.Errorf("unexpected group %+v", group)
	}
}

func TestGetGroupMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/groups/conv-9/members" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]Member{{UserID: "u1"}, {UserID: "u2"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "svc-token", 5*time.Second, staticTokens{token: "oauth-abc"})
	members, err := c.GetGroupMembers(context.Background(), "conv-9")
	if err != nil {
		t.Fatalf("GetGroupMembers: %v", err)
	}
	if len(members) != 2 || members[0].UserID != "u1" {
		t.Errorf("unexpected members %v", members)
	}
}

// Package authapi is the HTTP client for the Authorization Service.
// It carries no retry logic: the circuit breaker and cache in the
// resolver absorb intermittent failure.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// TokenSource supplies a bearer token for endpoints that require the
// chat backend's own identity (group lookups).
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CheckResult is the authorization service's answer to a permission
// check. A denial is a 200 with allowed=false, never an HTTP error.
type CheckResult struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason,omitempty"`
	Groups  []string `json:"groups,omitempty"`
}

type Group struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	OrganizationID string    `json:"organization_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Member struct {
	UserID string `json:"user_id"`
}

type Client struct {
	baseURL      string
	serviceToken string
	tokens       TokenSource
	http         *http.Client
}

// New builds a client for the authorization service. serviceToken is
// the static X-Service-Token header for check endpoints; tokens (may
// be nil) supplies the OAuth identity for group lookups.
func New(baseURL, serviceToken string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		serviceToken: serviceToken,
		tokens:       tokens,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   20,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}
}

// CheckPermission asks whether the user holds an org-wide permission.
// Any non-200 status, connection failure, or timeout is returned as an
// error; callers treat that as a breaker failure, not a denial.
func (c *Client) CheckPermission(ctx context.Context, orgID, userID, permission string) (*CheckResult, error) {
	body := map[string]string{
		"org_id":     orgID,
		"user_id":    userID,
		"permission": permission,
	}
	var result CheckResult
	if err := c.post(ctx, "/api/v1/authorization/check", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckPermissionInGroup asks whether the user holds a permission in a
// specific group (conversation).
func (c *Client) CheckPermissionInGroup(ctx context.Context, orgID, userID, groupID, permission string) (*CheckResult, error) {
	body := map[string]string{
		"org_id":     orgID,
		"user_id":    userID,
		"group_id":   groupID,
		"permission": permission,
	}
	var result CheckResult
	if err := c.post(ctx, "/api/v1/authorization/check-group", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetGroup fetches conversation metadata on demand. Not in the message
// request path; used by socket diagnostics and operator tooling.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	var group Group
	if err := c.get(ctx, "/api/v1/groups/"+groupID, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *Client) GetGroupMembers(ctx context.Context, groupID string) ([]Member, error) {
	var members []Member
	if err := c.get(ctx, "/api/v1/groups/"+groupID+"/members", &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.serviceToken)

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(req.Context())
		if err != nil {
			return fmt.Errorf("service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-Service-Token", c.serviceToken)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth api returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode auth api response: %w", err)
	}
	return nil
}

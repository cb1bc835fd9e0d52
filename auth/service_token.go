package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a cached service token is
// considered stale.
const refreshBuffer = 5 * time.Minute

// TokenManager holds the chat backend's own OAuth identity, obtained
// via the client-credentials grant. A single token is shared across
// all callers and refreshed under the lock so concurrent requests
// trigger at most one token fetch.
type TokenManager struct {
	clientID     string
	clientSecret string
	tokenURL     string
	scope        string
	http         *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

func NewTokenManager(clientID, clientSecret, tokenURL, scope string) *TokenManager {
	return &TokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		scope:        scope,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          1000,
				MaxConnsPerHost:       200,
				MaxIdleConnsPerHost:   200,
				IdleConnTimeout:       45 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
		now: time.Now,
	}
}

// Token returns a valid service token, fetching a fresh one when the
// cached token is absent or within the refresh buffer of expiring.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Add(refreshBuffer).Before(m.expiresAt) {
		return m.token, nil
	}
	return m.fetchLocked(ctx)
}

// Invalidate discards the cached token so the next call fetches a new
// one. Used when the authorization service rejects our identity.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

func (m *TokenManager) fetchLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}
	if m.scope != "" {
		form.Set("scope", m.scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch service token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty access_token")
	}
	if body.ExpiresIn <= 0 {
		body.ExpiresIn = 3600
	}

	m.token = body.AccessToken
	m.expiresAt = m.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	slog.Info("service token acquired", "expires_in", body.ExpiresIn)
	return m.token, nil
}

// Close releases pooled connections held by the token client.
func (m *TokenManager) Close() {
	m.http.CloseIdleConnections()
}

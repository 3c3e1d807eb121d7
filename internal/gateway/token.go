package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// refreshMargin: re-login when the cached token is this close to expiring.
const refreshMargin = time.Minute

// TokenSource logs the kiosk into the backend and caches the issued JWT.
// The token is parsed unverified, only to read its expiry claim; the kiosk
// does not hold the signing secret.
type TokenSource struct {
	mu       sync.Mutex
	baseURL  string
	username string
	password string
	http     *http.Client
	token    string
	expires  time.Time
}

func NewTokenSource(baseURL, username, password string, timeout time.Duration) *TokenSource {
	if username == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TokenSource{
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && time.Now().Before(t.expires.Add(-refreshMargin)) {
		return t.token, nil
	}
	return t.login(ctx)
}

// login must be called with t.mu held.
func (t *TokenSource) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": t.username,
		"password": t.password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/v1/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login: empty access token")
	}

	t.token = out.AccessToken
	t.expires = tokenExpiry(out.AccessToken)
	return t.token, nil
}

// tokenExpiry reads the exp claim without verifying the signature. A token
// that cannot be parsed is given a short lifetime so it gets replaced soon.
func tokenExpiry(token string) time.Time {
	claims := &jwtlib.RegisteredClaims{}
	parser := jwtlib.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return time.Now().Add(5 * time.Minute)
	}
	return claims.ExpiresAt.Time
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// POSClient talks to the point-of-sale provider, which has no refresh-token
// flow: sessions are renewed by a full credential login.
type POSClient struct {
	baseURL string
	http    *http.Client
}

// NewPOSClient constructs a POSClient.
func NewPOSClient(baseURL string, timeout time.Duration) *POSClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &POSClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Login authenticates with stored credentials and returns a fresh session
// token.
func (c *POSClient) Login(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", fmt.Errorf("%w: login: %s", ErrAuth, strings.TrimSpace(string(body)))
		}
		return "", fmt.Errorf("provider: login status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: login returned empty token", ErrAuth)
	}
	return out.Token, nil
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenPair is the result of an OAuth token grant.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// ExpiresAt converts the relative expiry into an absolute timestamp.
func (t TokenPair) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// OAuthClient performs refresh-token grants against the marketplace
// authentication endpoint.
type OAuthClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
}

// NewOAuthClient constructs an OAuthClient.
func NewOAuthClient(baseURL, clientID, clientSecret string, timeout time.Duration) *OAuthClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OAuthClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         &http.Client{Timeout: timeout},
	}
}

// Refresh exchanges a refresh token for a new token pair.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	form := url.Values{}
	form.Set("grantType", "refresh_token")
	form.Set("refreshToken", refreshToken)
	form.Set("clientId", c.clientID)
	form.Set("clientSecret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authentication/v1.0/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: refresh grant: %s", ErrAuth, strings.TrimSpace(string(body)))
		}
		return nil, fmt.Errorf("provider: refresh grant status %d", resp.StatusCode)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh grant returned empty token", ErrAuth)
	}
	return &pair, nil
}

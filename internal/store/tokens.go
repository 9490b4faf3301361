package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-hq/comanda-sync/internal/platform/cache"
	"github.com/comanda-hq/comanda-sync/internal/provider"
)

// Tokens resolves access tokens for provider requests, consulting the Redis
// cache before the session table. Expired tokens are still returned: the
// provider answers 401 and the token sweep owns renewal.
type Tokens struct {
	repo  RepositoryPort
	cache *cache.TokenCache
}

// NewTokens constructs a token source backed by sessions and cache.
func NewTokens(repo RepositoryPort, tokenCache *cache.TokenCache) *Tokens {
	return &Tokens{repo: repo, cache: tokenCache}
}

// AccessToken implements provider.TokenSource.
func (t *Tokens) AccessToken(ctx context.Context, ref provider.StoreRef) (string, error) {
	if token, err := t.cache.Get(ctx, ref.TenantID, ref.StoreID); err == nil {
		return token, nil
	} else if !errors.Is(err, cache.ErrTokenMiss) {
		return "", err
	}

	sess, err := t.repo.GetSession(ctx, ref.StoreID)
	if err != nil {
		return "", fmt.Errorf("store: session for store %d: %w", ref.StoreID, err)
	}
	_ = t.cache.Put(ctx, ref.TenantID, ref.StoreID, sess.AccessToken, sess.ExpiresAt)
	return sess.AccessToken, nil
}

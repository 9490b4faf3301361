package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenMiss indicates no cached token for the store.
var ErrTokenMiss = errors.New("cache: token miss")

// TokenCache keeps short-lived provider access tokens in Redis so a fresh
// token obtained by one job is visible to the next pass without a database
// round-trip.
type TokenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenCache constructs a TokenCache.
func NewTokenCache(client *redis.Client, ttl time.Duration) *TokenCache {
	return &TokenCache{client: client, ttl: ttl}
}

func tokenKey(tenantID, storeID int64) string {
	return fmt.Sprintf("provider:token:%d:%d", tenantID, storeID)
}

// Get returns the cached access token for a store.
func (c *TokenCache) Get(ctx context.Context, tenantID, storeID int64) (string, error) {
	if c == nil || c.client == nil {
		return "", ErrTokenMiss
	}
	val, err := c.client.Get(ctx, tokenKey(tenantID, storeID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenMiss
		}
		return "", err
	}
	return val, nil
}

// Put stores an access token, capping the TTL at the token's own expiry.
func (c *TokenCache) Put(ctx context.Context, tenantID, storeID int64, token string, expiresAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}
	ttl := c.ttl
	if until := time.Until(expiresAt); until > 0 && until < ttl {
		ttl = until
	}
	if ttl <= 0 {
		return nil
	}
	return c.client.Set(ctx, tokenKey(tenantID, storeID), token, ttl).Err()
}

// Invalidate drops the cached token, typically after an auth failure.
func (c *TokenCache) Invalidate(ctx context.Context, tenantID, storeID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, tokenKey(tenantID, storeID)).Err()
}

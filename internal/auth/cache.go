package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const sellerTokenKeyPrefix = "seller_token:"

// TokenCache keeps the seller token -> seller resolution in Redis so that
// frequent device logins do not hit the ledger store.
type TokenCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenCache constructs the cache. A nil client disables caching.
func NewTokenCache(client *redis.Client, ttl time.Duration) *TokenCache {
	return &TokenCache{client: client, ttl: ttl}
}

// Get returns the cached seller for a token, or nil on miss.
func (c *TokenCache) Get(ctx context.Context, token string) (*Seller, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, sellerTokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var seller Seller
	if err := json.Unmarshal(data, &seller); err != nil {
		// Drop undecodable entries rather than failing the login.
		_ = c.client.Del(ctx, sellerTokenKeyPrefix+token).Err()
		return nil, nil
	}
	return &seller, nil
}

// Set stores the seller under its token.
func (c *TokenCache) Set(ctx context.Context, seller *Seller) error {
	if c == nil || c.client == nil || seller == nil {
		return nil
	}
	data, err := json.Marshal(seller)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sellerTokenKeyPrefix+seller.Token, data, c.ttl).Err()
}

// Invalidate removes a token entry, used on deactivation and regeneration.
func (c *TokenCache) Invalidate(ctx context.Context, token string) error {
	if c == nil || c.client == nil || token == "" {
		return nil
	}
	return c.client.Del(ctx, sellerTokenKeyPrefix+token).Err()
}

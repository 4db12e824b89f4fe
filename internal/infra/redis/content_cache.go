package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// ContentCache stores question-set payloads as plain string values in Redis.
// Entries carry no TTL: cached content is the offline fallback and must
// survive until the next successful fetch overwrites it.
type ContentCache struct {
	client *redis.Client
}

func NewContentCache(client *redis.Client) *ContentCache {
	return &ContentCache{client: client}
}

func (c *ContentCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (c *ContentCache) Set(ctx context.Context, key string, payload []byte) error {
	return c.client.Set(ctx, key, payload, 0).Err()
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

// URLEnv selects a Redis cache when set
const URLEnv = "QUERY_ENGINE_CACHE_URL"

// New returns a Redis cache when url is set and an in-process cache otherwise
func New(ctx context.Context, url string) (interfaces.Cache, error) {
	if url != "" {
		return NewRedisCache(ctx, url)
	}
	return NewMemoryCache()
}

// Key derives a cache key from a namespace and content
func Key(namespace string, content []byte) string {
	hash := sha256.Sum256(content)
	return namespace + ":" + hex.EncodeToString(hash[:])
}

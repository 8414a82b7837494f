package interfaces

import (
	"context"
	"time"
)

// Cache stores rendered artifacts, such as DMMF documents, by key
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Close() error
}

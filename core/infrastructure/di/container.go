package di

import (
	"context"
	"time"

	"github.com/hyperterse/queryengine/core/application/services"
	"github.com/hyperterse/queryengine/core/domain/interfaces"
	"github.com/hyperterse/queryengine/core/engine"
	"github.com/hyperterse/queryengine/core/infrastructure/cache"
	"github.com/hyperterse/queryengine/core/logger"
	"github.com/hyperterse/queryengine/core/runtime/schema"
)

// Config selects the shared infrastructure of a container
type Config struct {
	// CacheURL selects a Redis DMMF cache; empty means in-process
	CacheURL string
	CacheTTL time.Duration
	Deps     engine.Deps
}

// Container holds all dependencies
type Container struct {
	Cache    interfaces.Cache
	Renderer *schema.Renderer
	Registry *engine.Registry
	Service  *services.EngineService
}

// NewContainer creates a new dependency injection container. A cache that
// cannot be reached is logged and replaced by the in-process one.
func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	log := logger.New("di")

	c, err := cache.New(ctx, cfg.CacheURL)
	if err != nil {
		if cfg.CacheURL == "" {
			return nil, err
		}
		log.Warnf("Cache %s unavailable, using in-process cache: %v", cfg.CacheURL, err)
		if c, err = cache.New(ctx, ""); err != nil {
			return nil, err
		}
	}

	renderer := schema.NewRenderer(c, cfg.CacheTTL)
	registry := engine.NewRegistry()

	return &Container{
		Cache:    c,
		Renderer: renderer,
		Registry: registry,
		Service:  services.NewEngineService(registry, cfg.Deps, renderer),
	}, nil
}

// Close disconnects every engine and closes the cache
func (c *Container) Close(ctx context.Context) error {
	if err := c.Registry.DisconnectAll(ctx); err != nil {
		logger.New("di").Warnf("Errors disconnecting engines: %v", err)
	}
	if c.Cache != nil {
		return c.Cache.Close()
	}
	return nil
}

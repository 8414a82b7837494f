package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/infrastructure/cache"
)

func TestNewContainer(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, Config{})
	require.NoError(t, err)
	defer c.Close(ctx)

	assert.IsType(t, &cache.MemoryCache{}, c.Cache)
	assert.Same(t, c.Registry, c.Service.Registry())
}

func TestNewContainerFallsBackToMemoryCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, Config{CacheURL: "redis://127.0.0.1:1/0"})
	require.NoError(t, err)
	defer c.Close(ctx)

	assert.IsType(t, &cache.MemoryCache{}, c.Cache)
}

func TestContainerServesDmmf(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, Config{})
	require.NoError(t, err)
	defer c.Close(ctx)

	schema := "datasource db {\n  provider = \"sqlite\"\n  url      = \"file::memory:\"\n}\n\nmodel User {\n  id Int @id\n}\n"
	first, err := c.Service.Dmmf(ctx, schema)
	require.NoError(t, err)
	second, err := c.Service.Dmmf(ctx, schema)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

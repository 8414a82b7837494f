package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/domain/interfaces"
)

func exerciseCache(t *testing.T, c interfaces.Cache) {
	t.Helper()
	ctx := context.Background()
	key := Key("test", []byte(t.Name()))

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	value := []byte(`{"datamodel":{}}`)
	c.Set(ctx, key, value, time.Minute)

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, value, got)

	// Returned slices do not alias the stored value
	got[0] = 'x'
	again, _ := c.Get(ctx, key)
	assert.Equal(t, value, again)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache()
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)
}

func TestMemoryCache_TTL(t *testing.T) {
	c, err := NewMemoryCache()
	require.NoError(t, err)
	defer c.Close()

	c.Set(context.Background(), "short", []byte("v"), 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := c.Get(context.Background(), "short")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("QUERY_ENGINE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("QUERY_ENGINE_TEST_REDIS_URL not set")
	}

	c, err := New(context.Background(), url)
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)
}

func TestKey(t *testing.T) {
	a := Key("dmmf", []byte("model A {}"))
	b := Key("dmmf", []byte("model B {}"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Key("dmmf", []byte("model A {}")))
	assert.Regexp(t, `^dmmf:[0-9a-f]{64}$`, a)
}

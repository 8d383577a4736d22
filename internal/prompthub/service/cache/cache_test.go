package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestGetMissThenHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	data, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, c.Set(ctx, "fp1", []byte(`{"final_content":"x"}`), time.Minute, []string{"p1"}, "s1"))

	data, err = c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"final_content":"x"}`), data)
}

func TestSetHonorsTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp1", []byte("v"), 30*time.Second, nil, "s1"))
	mr.FastForward(time.Minute)

	data, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestInvalidatePromptDropsIndexedEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp1", []byte("a"), time.Minute, []string{"p1", "p2"}, "s1"))
	require.NoError(t, c.Set(ctx, "fp2", []byte("b"), time.Minute, []string{"p2"}, "s1"))
	require.NoError(t, c.Set(ctx, "fp3", []byte("c"), time.Minute, []string{"p3"}, "s2"))

	require.NoError(t, c.InvalidatePrompt(ctx, "p2"))

	data, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.Nil(t, data)
	data, err = c.Get(ctx, "fp2")
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = c.Get(ctx, "fp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), data)
}

func TestInvalidateSceneDropsOnlyThatScene(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "fp1", []byte("a"), time.Minute, []string{"p1"}, "s1"))
	require.NoError(t, c.Set(ctx, "fp2", []byte("b"), time.Minute, []string{"p1"}, "s2"))

	require.NoError(t, c.InvalidateScene(ctx, "s1"))

	data, err := c.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.Nil(t, data)
	data, err = c.Get(ctx, "fp2")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), data)
}

func TestDoCollapsesConcurrentComputes(t *testing.T) {
	c, _ := newTestCache(t)

	v, err := c.Do("fp1", func() (any, error) { return "computed", nil })
	require.NoError(t, err)
	assert.Equal(t, "computed", v)
}

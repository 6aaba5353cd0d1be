package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*InternalOrderCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewInternalOrderCache(client, time.Hour), mr
}

func TestInternalOrderCache_SetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, map[string]string{"IO100": "CC100", "IO200": "CC200"}))

	got, err := c.Get(ctx, []string{"IO100", "io200", "IO300"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"IO100": "CC100", "io200": "CC200"}, got)
}

func TestInternalOrderCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, map[string]string{"IO100": "CC100"}))
	mr.FastForward(2 * time.Hour)

	got, err := c.Get(ctx, []string{"IO100"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), addr)
	assert.Error(t, err)
}

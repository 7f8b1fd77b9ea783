package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -v --run TestRedisStore
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CRYPTOPULSE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CRYPTOPULSE_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := DialRedis(ctx, addr, "", 0)
	require.NoError(t, err)
	defer store.Close()

	key := "cryptopulse-test:" + time.Now().Format(time.RFC3339Nano)
	_, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, key, []byte(`{"price":1}`), time.Minute))
	v, ok, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"price":1}`, string(v))
	assert.True(t, store.IsHealthy(ctx))
}

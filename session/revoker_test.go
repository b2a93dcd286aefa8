package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRevoker(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	revoker := NewRedisRevoker(client)
	defer revoker.Close()

	ctx := context.Background()
	tokenID := uuid.NewString()

	revoked, err := revoker.IsRevoked(ctx, tokenID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, revoker.Revoke(ctx, tokenID, time.Now().Add(time.Minute)))
	revoked, err = revoker.IsRevoked(ctx, tokenID)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := client.TTL(ctx, "session:revoked:"+tokenID).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	// already expired tokens are not stored
	expiredID := uuid.NewString()
	require.NoError(t, revoker.Revoke(ctx, expiredID, time.Now().Add(-time.Minute)))
	revoked, err = revoker.IsRevoked(ctx, expiredID)
	require.NoError(t, err)
	assert.False(t, revoked)
}

//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/safar/farmstand/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStoreSeenAfterMark(t *testing.T) {
	addr := dbtest.SetupRedis(t)
	client := NewRedisClient(addr, "", 0)
	defer client.Close()

	ctx := context.Background()
	store := NewEventStore(client, "farmstand-test", time.Minute)

	seen, err := store.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkSeen(ctx, "evt_1"))
	require.NoError(t, store.MarkSeen(ctx, "evt_1"))

	seen, err = store.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := client.TTL(ctx, store.GenerateKey("webhook", "evt_1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

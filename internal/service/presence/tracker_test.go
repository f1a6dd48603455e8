package presence_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/cache"
	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/service/presence"
)

func newTracker(t *testing.T) (*presence.Tracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Presence.TTL = time.Hour

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(nil, cache.NewRedisCache(cfg), logger, cfg)
	return presence.NewTracker(appCtx), mr
}

func TestOnlineOfflineRoundTrip(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t)

	online, err := tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, tracker.MarkOnline(ctx, 1))
	online, err = tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, online)

	require.NoError(t, tracker.MarkOffline(ctx, 1))
	online, err = tracker.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestStatusExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	tracker, mr := newTracker(t)

	require.NoError(t, tracker.MarkOnline(ctx, 7))
	assert.Greater(t, mr.TTL(cache.KeyUserStatus(7)), time.Duration(0))

	// an ungraceful drop never calls MarkOffline; TTL expiry covers it
	mr.FastForward(2 * time.Hour)

	online, err := tracker.IsOnline(ctx, 7)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMarkOnlineRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	tracker, mr := newTracker(t)

	require.NoError(t, tracker.MarkOnline(ctx, 3))
	mr.FastForward(30 * time.Minute)
	require.NoError(t, tracker.MarkOnline(ctx, 3))
	mr.FastForward(45 * time.Minute)

	// 75 minutes after first mark but only 45 after the refresh
	online, err := tracker.IsOnline(ctx, 3)
	require.NoError(t, err)
	assert.True(t, online)
}

func TestMarkOfflineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t)

	require.NoError(t, tracker.MarkOffline(ctx, 9))
	require.NoError(t, tracker.MarkOffline(ctx, 9))
}

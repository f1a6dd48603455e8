package presence

import (
	"context"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/cache"
)

const statusOnline = "online"

// Tracker maintains per-user online flags in the TTL cache. Absence of the
// key is authoritative for "offline": ungraceful drops are covered only by
// TTL expiry, which is an accepted staleness window.
type Tracker struct {
	appCtx *app.AppContext
}

// NewTracker creates the presence tracker with dependencies from AppContext.
func NewTracker(appCtx *app.AppContext) *Tracker {
	return &Tracker{appCtx: appCtx}
}

// MarkOnline sets the status key with the configured TTL. Called on connect
// and refreshed on every inbound event from the connection, so long-lived
// active sessions never expire.
func (t *Tracker) MarkOnline(ctx context.Context, userID uint64) error {
	return t.appCtx.RedisCache.Set(ctx, cache.KeyUserStatus(userID), statusOnline, t.appCtx.Config.Presence.TTL)
}

// MarkOffline deletes the status key immediately on graceful disconnect.
func (t *Tracker) MarkOffline(ctx context.Context, userID uint64) error {
	return t.appCtx.RedisCache.Del(ctx, cache.KeyUserStatus(userID))
}

// IsOnline is a pure existence check with no side effect.
func (t *Tracker) IsOnline(ctx context.Context, userID uint64) (bool, error) {
	return t.appCtx.RedisCache.Exists(ctx, cache.KeyUserStatus(userID))
}

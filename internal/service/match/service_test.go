package match_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/service/match"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

func newTestApp(t *testing.T) *app.AppContext {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(database))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.New(database, nil, logger, config.New())
}

func seedUsers(t *testing.T, appCtx *app.AppContext, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		u := db.User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: "x",
			Active:       true,
			Gender:       "female",
			Age:          25,
			LastActiveAt: time.Now().UTC(),
		}
		require.NoError(t, appCtx.DB.Create(&u).Error)
		ids = append(ids, u.ID)
	}
	return ids
}

type notifierSpy struct {
	calls int
}

func (n *notifierSpy) MatchCreated(context.Context, *db.Match) { n.calls++ }

func TestCreateMatchRejectsSelfPair(t *testing.T) {
	ctx := context.Background()
	appCtx := newTestApp(t)
	svc := match.NewService(appCtx)
	ids := seedUsers(t, appCtx, 1)

	_, _, err := svc.CreateMatch(ctx, ids[0], ids[0])
	assert.ErrorIs(t, err, svcerrors.ErrSelfMatch)

	var count int64
	require.NoError(t, appCtx.DB.Model(&db.Match{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateMatchRejectsUnknownUsers(t *testing.T) {
	ctx := context.Background()
	appCtx := newTestApp(t)
	svc := match.NewService(appCtx)
	spy := &notifierSpy{}
	svc.SetNotifier(spy)
	ids := seedUsers(t, appCtx, 1)

	// zero ids never reach the store
	_, _, err := svc.CreateMatch(ctx, 0, ids[0])
	assert.ErrorIs(t, err, svcerrors.ErrUnknownUser)
	_, _, err = svc.CreateMatch(ctx, ids[0], 0)
	assert.ErrorIs(t, err, svcerrors.ErrUnknownUser)

	// both participants must exist
	_, _, err = svc.CreateMatch(ctx, ids[0], 999)
	assert.ErrorIs(t, err, svcerrors.ErrUnknownUser)
	_, _, err = svc.CreateMatch(ctx, 999, ids[0])
	assert.ErrorIs(t, err, svcerrors.ErrUnknownUser)

	var count int64
	require.NoError(t, appCtx.DB.Model(&db.Match{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Zero(t, spy.calls)
}

func TestCreateMatchNotifiesCreatorOnly(t *testing.T) {
	ctx := context.Background()
	appCtx := newTestApp(t)
	svc := match.NewService(appCtx)
	spy := &notifierSpy{}
	svc.SetNotifier(spy)
	ids := seedUsers(t, appCtx, 2)

	m1, created, err := svc.CreateMatch(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 1, spy.calls)

	// the duplicate call returns the same row and stays silent
	m2, created, err := svc.CreateMatch(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m1.ID, m2.ID)
	assert.Equal(t, 1, spy.calls)
}

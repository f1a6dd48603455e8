package ws_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/auth"
	"github.com/emberlink/ember-backend/internal/cache"
	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/service/delivery"
	"github.com/emberlink/ember-backend/internal/service/match"
	"github.com/emberlink/ember-backend/internal/service/pool"
	"github.com/emberlink/ember-backend/internal/service/presence"
	"github.com/emberlink/ember-backend/internal/service/swipe"
	"github.com/emberlink/ember-backend/internal/svcerrors"
	"github.com/emberlink/ember-backend/internal/ws"
)

const testSecret = "gateway-test-secret"

type fixture struct {
	appCtx  *app.AppContext
	gateway *ws.Gateway
	queue   *delivery.Queue
	tracker *presence.Tracker
	server  *httptest.Server
	userIDs []uint64
}

func newFixture(t *testing.T, users int) *fixture {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(database))

	mr := miniredis.RunT(t)
	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Auth.JWTSecret = testSecret

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(database, cache.NewRedisCache(cfg), logger, cfg)

	ids := make([]uint64, 0, users)
	for i := 0; i < users; i++ {
		u := db.User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: "x",
			Active:       true,
			Gender:       "female",
			Age:          25,
			LastActiveAt: time.Now().UTC(),
		}
		require.NoError(t, database.Create(&u).Error)
		ids = append(ids, u.ID)
	}

	tracker := presence.NewTracker(appCtx)
	queue := delivery.NewQueue(appCtx)
	poolSvc := pool.NewService(appCtx)
	replenisher := pool.NewReplenisher(poolSvc, cfg.Pool.ReplenishInterval)
	matches := match.NewService(appCtx)
	coordinator := swipe.NewCoordinator(appCtx, matches)

	hub := ws.NewHub()
	gateway := ws.New(appCtx, hub, auth.NewJWTVerifier(cfg), tracker, queue, coordinator, matches, replenisher)
	matches.SetNotifier(gateway)

	server := httptest.NewServer(http.HandlerFunc(gateway.ServeWS))
	t.Cleanup(server.Close)

	return &fixture{
		appCtx:  appCtx,
		gateway: gateway,
		queue:   queue,
		tracker: tracker,
		server:  server,
		userIDs: ids,
	}
}

func (f *fixture) dial(t *testing.T, userID uint64) *websocket.Conn {
	t.Helper()
	token, err := auth.IssueToken(testSecret, userID, time.Hour)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// awaitEvent reads frames until one matches the wanted event name, skipping
// interleaved presence and status noise.
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", event)

		var env ws.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == event {
			return env.Data
		}
		if env.Event == ws.EventError {
			t.Fatalf("error frame while waiting for %q: %s", event, raw)
		}
		// skip interleaved frames (presence, status, history, other results)
	}
}

func send(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(ws.Envelope{Event: event, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func TestHandshakeFailsClosed(t *testing.T) {
	f := newFixture(t, 0)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// no token at all behaves the same
	url = "ws" + strings.TrimPrefix(f.server.URL, "http")
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestConnectSendsJoinedAndMarksOnline(t *testing.T) {
	f := newFixture(t, 1)
	conn := f.dial(t, f.userIDs[0])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env ws.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, ws.EventJoined, env.Event)

	var joined ws.JoinedPayload
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	assert.Equal(t, f.userIDs[0], joined.UserID)
	assert.Empty(t, joined.MatchIDs)

	assert.Eventually(t, func() bool {
		online, err := f.tracker.IsOnline(context.Background(), f.userIDs[0])
		return err == nil && online
	}, 2*time.Second, 20*time.Millisecond)
}

func TestConnectBumpsActivity(t *testing.T) {
	f := newFixture(t, 1)
	userID := f.userIDs[0]

	// long-dormant user reconnects; the candidate query's activity window
	// must see them as fresh again
	stale := time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, f.appCtx.DB.Model(&db.User{}).
		Where("id = ?", userID).
		Update("last_active_at", stale).Error)

	f.dial(t, userID)

	assert.Eventually(t, func() bool {
		var u db.User
		if err := f.appCtx.DB.First(&u, userID).Error; err != nil {
			return false
		}
		return time.Since(u.LastActiveAt) < time.Minute
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMutualAcceptDeliversMatchToBothSides(t *testing.T) {
	f := newFixture(t, 2)
	alice, bob := f.userIDs[0], f.userIDs[1]

	connA := f.dial(t, alice)
	connB := f.dial(t, bob)

	send(t, connA, ws.EventSwipe, ws.SwipeRequest{SwipeeID: bob, Result: db.SwipeAccepted})
	var res ws.SwipeResultPayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connA, ws.EventSwipeResult), &res))
	assert.False(t, res.IsNewMatch)

	send(t, connB, ws.EventSwipe, ws.SwipeRequest{SwipeeID: alice, Result: db.SwipeAccepted})

	var mA, mB ws.MatchPayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connA, ws.EventMatchCreated), &mA))
	require.NoError(t, json.Unmarshal(awaitEvent(t, connB, ws.EventMatchCreated), &mB))
	assert.Equal(t, mA.MatchID, mB.MatchID)
	assert.ElementsMatch(t, []uint64{alice, bob}, mA.Participants)

	require.NoError(t, json.Unmarshal(awaitEvent(t, connB, ws.EventSwipeResult), &res))
	assert.True(t, res.IsNewMatch)
}

func TestChatMessageFansOutToRoom(t *testing.T) {
	f := newFixture(t, 2)
	alice, bob := f.userIDs[0], f.userIDs[1]

	connA := f.dial(t, alice)
	connB := f.dial(t, bob)

	// create the match over the wire so both sides are in the room
	send(t, connA, ws.EventSwipe, ws.SwipeRequest{SwipeeID: bob, Result: db.SwipeAccepted})
	awaitEvent(t, connA, ws.EventSwipeResult)
	send(t, connB, ws.EventSwipe, ws.SwipeRequest{SwipeeID: alice, Result: db.SwipeAccepted})

	var m ws.MatchPayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connB, ws.EventMatchCreated), &m))
	awaitEvent(t, connA, ws.EventMatchCreated)

	send(t, connA, ws.EventChatMessage, ws.ChatMessageRequest{MatchID: m.MatchID, Content: "hey you"})

	var got ws.ChatMessagePayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connB, ws.EventChatMessage), &got))
	assert.Equal(t, "hey you", got.Content)
	assert.Equal(t, alice, got.SenderID)
	assert.Equal(t, m.MatchID, got.MatchID)
	assert.NotZero(t, got.MessageID)

	// sender sees their own message through the room too
	require.NoError(t, json.Unmarshal(awaitEvent(t, connA, ws.EventChatMessage), &got))
	assert.Equal(t, "hey you", got.Content)
}

func TestChatMessageRejectedForOutsiders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	alice, bob, mallory := f.userIDs[0], f.userIDs[1], f.userIDs[2]

	created, _, err := match.NewService(f.appCtx).CreateMatch(ctx, alice, bob)
	require.NoError(t, err)

	connM := f.dial(t, mallory)
	send(t, connM, ws.EventChatMessage, ws.ChatMessageRequest{MatchID: created.ID, Content: "let me in"})

	var errPayload ws.ErrorPayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connM, ws.EventError), &errPayload))
	assert.Equal(t, svcerrors.CodeForbidden, errPayload.Code)
}

func TestOfflineRecipientGetsQueuedAndDrained(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	alice, bob := f.userIDs[0], f.userIDs[1]

	created, _, err := match.NewService(f.appCtx).CreateMatch(ctx, alice, bob)
	require.NoError(t, err)

	// alice connects and is auto-joined to the existing match room
	connA := f.dial(t, alice)
	send(t, connA, ws.EventChatMessage, ws.ChatMessageRequest{MatchID: created.ID, Content: "you there?"})

	// alice gets the room broadcast; bob is offline so his copy is queued
	awaitEvent(t, connA, ws.EventChatMessage)
	assert.Eventually(t, func() bool {
		n, err := f.queue.Len(ctx, bob, delivery.PurposeMessages)
		return err == nil && n == 1
	}, 2*time.Second, 20*time.Millisecond)

	// bob reconnects and receives the buffered message right after joining
	connB := f.dial(t, bob)
	var got ws.ChatMessagePayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connB, ws.EventChatMessage), &got))
	assert.Equal(t, "you there?", got.Content)
	assert.Equal(t, alice, got.SenderID)

	// drain happens exactly once
	n, err := f.queue.Len(ctx, bob, delivery.PurposeMessages)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmptyMessageRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	alice, bob := f.userIDs[0], f.userIDs[1]

	created, _, err := match.NewService(f.appCtx).CreateMatch(ctx, alice, bob)
	require.NoError(t, err)

	connA := f.dial(t, alice)
	send(t, connA, ws.EventChatMessage, ws.ChatMessageRequest{MatchID: created.ID, Content: ""})

	var errPayload ws.ErrorPayload
	require.NoError(t, json.Unmarshal(awaitEvent(t, connA, ws.EventError), &errPayload))
	assert.Equal(t, svcerrors.CodeInvalidArgument, errPayload.Code)
}

func TestJoinRepliesWithChatHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)
	alice, bob := f.userIDs[0], f.userIDs[1]

	created, _, err := match.NewService(f.appCtx).CreateMatch(ctx, alice, bob)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.appCtx.DB.Create(&db.Message{
			MatchID:  created.ID,
			SenderID: bob,
			Content:  fmt.Sprintf("old %d", i),
		}).Error)
	}

	connA := f.dial(t, alice)
	send(t, connA, ws.EventJoin, ws.RoomRequest{MatchID: created.ID})

	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, connA.SetReadDeadline(deadline))
		_, raw, err := connA.ReadMessage()
		require.NoError(t, err)

		var env ws.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event != ws.EventChatHistory {
			continue
		}
		var history ws.ChatHistoryPayload
		require.NoError(t, json.Unmarshal(env.Data, &history))
		assert.Equal(t, created.ID, history.MatchID)
		assert.Len(t, history.Messages, 3)
		return
	}
}

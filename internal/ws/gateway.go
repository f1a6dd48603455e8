package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/auth"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/repository"
	"github.com/emberlink/ember-backend/internal/service/delivery"
	"github.com/emberlink/ember-backend/internal/service/match"
	"github.com/emberlink/ember-backend/internal/service/pool"
	"github.com/emberlink/ember-backend/internal/service/presence"
	"github.com/emberlink/ember-backend/internal/service/swipe"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

const chatHistoryLimit = 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway manages authenticated websocket sessions: per-user connections,
// one room per match, presence, and live-or-queued event delivery.
//
// Per-connection lifecycle: Connecting → Authenticated → Joined → Disconnected.
// The credential is verified before the upgrade completes; a failed
// verification closes the connection with no events leaked.
type Gateway struct {
	appCtx      *app.AppContext
	hub         *Hub
	verifier    auth.Verifier
	presence    *presence.Tracker
	queue       *delivery.Queue
	coordinator *swipe.Coordinator
	matches     *match.Service
	replenisher *pool.Replenisher
	msgRepo     *repository.MessageRepository
	userRepo    *repository.UserRepository
}

// New creates the gateway. Call matches.SetNotifier(gateway) after
// construction so match events flow back through it.
func New(
	appCtx *app.AppContext,
	hub *Hub,
	verifier auth.Verifier,
	tracker *presence.Tracker,
	queue *delivery.Queue,
	coordinator *swipe.Coordinator,
	matches *match.Service,
	replenisher *pool.Replenisher,
) *Gateway {
	return &Gateway{
		appCtx:      appCtx,
		hub:         hub,
		verifier:    verifier,
		presence:    tracker,
		queue:       queue,
		coordinator: coordinator,
		matches:     matches,
		replenisher: replenisher,
		msgRepo:     repository.NewMessageRepository(appCtx.DB),
		userRepo:    repository.NewUserRepository(appCtx.DB),
	}
}

// ServeWS is the websocket handshake endpoint.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := g.verifier.Verify(auth.BearerToken(r))
	if err != nil {
		// fail closed: no upgrade, no events
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.appCtx.Logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		gateway: g,
		logger:  g.appCtx.Logger,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBufferSize),
		rooms:   make(map[uint64]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	g.hub.Register(client)
	go client.writePump()

	g.connect(client)

	go client.readPump()
}

// connect runs the post-authentication session setup: presence, room
// auto-join, offline drain, replenisher.
func (g *Gateway) connect(c *Client) {
	ctx := c.ctx

	if err := g.presence.MarkOnline(ctx, c.userID); err != nil {
		g.appCtx.Logger.Error("failed to mark user online", "user_id", c.userID, "err", err)
	}

	// connecting counts as activity, which keeps the user inside the
	// candidate query's recently-active window
	if err := g.userRepo.TouchLastActive(ctx, c.userID); err != nil {
		g.appCtx.Logger.Warn("failed to bump last_active_at", "user_id", c.userID, "err", err)
	}

	// auto-join one room per existing match
	matches, err := g.matches.MatchesForUser(ctx, c.userID)
	if err != nil {
		g.appCtx.Logger.Error("failed to load matches on connect", "user_id", c.userID, "err", err)
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.Code(err), Message: "failed to load matches"}))
	}
	matchIDs := make([]uint64, 0, len(matches))
	for i := range matches {
		g.hub.JoinRoom(matches[i].ID, c)
		matchIDs = append(matchIDs, matches[i].ID)
	}

	c.trySend(Encode(EventJoined, JoinedPayload{UserID: c.userID, MatchIDs: matchIDs}))

	// connection is Joined: drain the offline queues exactly once
	events, err := g.queue.Drain(ctx, c.userID)
	if err != nil {
		g.appCtx.Logger.Error("offline drain failed", "user_id", c.userID, "err", err)
	}
	for _, ev := range events {
		c.trySend(Encode(ev.Type, json.RawMessage(ev.Payload)))
	}

	// presence fan-out to this user's rooms
	for _, id := range matchIDs {
		g.hub.BroadcastRoom(id, Encode(EventPresenceChanged, PresencePayload{UserID: c.userID, Online: true}))
	}

	// background pool replenishment; stopped when the last connection drops
	g.replenisher.Start(c.userID)

	g.appCtx.Logger.Info("user connected", "user_id", c.userID, "rooms", len(matchIDs))
}

// disconnect tears a session down. Called once from the read pump.
func (g *Gateway) disconnect(c *Client) {
	c.cancel()
	last := g.hub.Unregister(c)
	if !last {
		return
	}

	// last connection for this user is gone
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g.replenisher.Stop(c.userID)
	if err := g.presence.MarkOffline(ctx, c.userID); err != nil {
		g.appCtx.Logger.Error("failed to mark user offline", "user_id", c.userID, "err", err)
	}
	for matchID := range c.rooms {
		g.hub.BroadcastRoom(matchID, Encode(EventPresenceChanged, PresencePayload{UserID: c.userID, Online: false}))
	}

	g.appCtx.Logger.Info("user disconnected", "user_id", c.userID)
}

// dispatch routes one inbound frame. Every inbound event also refreshes the
// sender's presence TTL, which keeps active sessions alive without a
// separate heartbeat.
func (g *Gateway) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: "malformed frame"}))
		return
	}

	if err := g.presence.MarkOnline(c.ctx, c.userID); err != nil {
		g.appCtx.Logger.Warn("presence refresh failed", "user_id", c.userID, "err", err)
	}

	switch env.Event {
	case EventSwipe:
		g.handleSwipe(c, env.Data)
	case EventChatMessage:
		g.handleChatMessage(c, env.Data)
	case EventJoin:
		g.handleJoin(c, env.Data)
	case EventLeave:
		g.handleLeave(c, env.Data)
	default:
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: fmt.Sprintf("unknown event %q", env.Event)}))
	}
}

// handleSwipe runs the swipe channel: delegate to the coordinator and
// report the outcome on the same channel. Match fan-out happens through
// MatchCreated, which the coordinator triggers on a mutual accept.
func (g *Gateway) handleSwipe(c *Client, data json.RawMessage) {
	var req SwipeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: "malformed swipe"}))
		return
	}

	out, err := g.coordinator.RecordSwipe(c.ctx, c.userID, req.SwipeeID, req.Result)
	if err != nil {
		if out != nil && out.NewMatch {
			// mutual accept happened but match creation failed: report it
			// distinctly so the client does not read silence as pending
			c.trySend(Encode(EventMatchFailed, MatchFailedPayload{
				SwipeeID: req.SwipeeID,
				Code:     svcerrors.Code(err),
				Message:  "match creation failed",
			}))
			return
		}
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.Code(err), Message: err.Error()}))
		return
	}

	c.trySend(Encode(EventSwipeResult, SwipeResultPayload{
		SwipeeID:   req.SwipeeID,
		Result:     out.Record.Result,
		IsNewMatch: out.NewMatch,
	}))
}

// handleChatMessage validates the sender against the match's participant
// ids (not room membership), persists, fans out to the room, and queues for
// an offline recipient.
func (g *Gateway) handleChatMessage(c *Client, data json.RawMessage) {
	var req ChatMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: "malformed message"}))
		return
	}
	if req.Content == "" {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: svcerrors.ErrEmptyMessage.Error()}))
		return
	}

	m, err := g.matches.Get(c.ctx, req.MatchID)
	if err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.Code(err), Message: "unknown match"}))
		return
	}
	if !m.Involves(c.userID) {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeForbidden, Message: svcerrors.ErrNotParticipant.Error()}))
		return
	}

	msg := &db.Message{MatchID: m.ID, SenderID: c.userID, Content: req.Content}
	if err := g.msgRepo.Create(c.ctx, msg); err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.Code(err), Message: "failed to persist message"}))
		return
	}

	payload := ChatMessagePayload{
		MessageID: msg.ID,
		MatchID:   m.ID,
		SenderID:  c.userID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
	g.hub.BroadcastRoom(m.ID, Encode(EventChatMessage, payload))

	recipient := m.OtherParticipant(c.userID)
	online, err := g.presence.IsOnline(c.ctx, recipient)
	if err != nil {
		g.appCtx.Logger.Warn("presence check failed, queueing anyway", "user_id", recipient, "err", err)
	}
	if !online {
		g.enqueueOrDrop(c.ctx, recipient, delivery.PurposeMessages, EventChatMessage, payload)
	}
}

// handleJoin adds the connection to a room it is entitled to and replies
// with recent chat history.
func (g *Gateway) handleJoin(c *Client, data json.RawMessage) {
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: "malformed join"}))
		return
	}

	ok, err := g.matches.IsParticipant(c.ctx, req.MatchID, c.userID)
	if err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.Code(err), Message: "join failed"}))
		return
	}
	if !ok {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeForbidden, Message: svcerrors.ErrNotParticipant.Error()}))
		return
	}

	g.hub.JoinRoom(req.MatchID, c)
	g.hub.BroadcastRoom(req.MatchID, Encode(EventStatus, StatusPayload{Message: fmt.Sprintf("user %d joined", c.userID)}))

	messages, next, err := g.msgRepo.ListByMatch(c.ctx, req.MatchID, nil, chatHistoryLimit)
	if err != nil {
		g.appCtx.Logger.Error("failed to load chat history", "match_id", req.MatchID, "err", err)
		return
	}
	history := ChatHistoryPayload{MatchID: req.MatchID}
	for _, msg := range messages {
		history.Messages = append(history.Messages, ChatMessagePayload{
			MessageID: msg.ID,
			MatchID:   msg.MatchID,
			SenderID:  msg.SenderID,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	if next != nil {
		history.NextToken = *next
	}
	c.trySend(Encode(EventChatHistory, history))
}

func (g *Gateway) handleLeave(c *Client, data json.RawMessage) {
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.trySend(Encode(EventError, ErrorPayload{Code: svcerrors.CodeInvalidArgument, Message: "malformed leave"}))
		return
	}
	g.hub.LeaveRoom(req.MatchID, c)
	g.hub.BroadcastRoom(req.MatchID, Encode(EventStatus, StatusPayload{Message: fmt.Sprintf("user %d left", c.userID)}))
}

// MatchCreated implements match.Notifier. For each participant the room is
// joined and the event delivered inside one hub critical section; offline
// participants get the event queued instead.
func (g *Gateway) MatchCreated(ctx context.Context, m *db.Match) {
	payload := MatchPayload{
		MatchID:      m.ID,
		Participants: []uint64{m.UserLow, m.UserHigh},
		CreatedAt:    m.CreatedAt,
	}
	frame := Encode(EventMatchCreated, payload)

	for _, userID := range payload.Participants {
		if g.hub.JoinAndSend(m.ID, userID, frame) {
			continue
		}
		g.enqueueOrDrop(ctx, userID, delivery.PurposeMatches, EventMatchCreated, payload)
	}
}

// enqueueOrDrop buffers an event for an offline recipient. A failed enqueue
// degrades that one event only: log and drop, never disconnect the session.
func (g *Gateway) enqueueOrDrop(ctx context.Context, userID uint64, purpose, eventType string, payload any) {
	ev, err := delivery.NewEvent(eventType, payload)
	if err != nil {
		g.appCtx.Logger.Error("failed to build queued event", "user_id", userID, "type", eventType, "err", err)
		return
	}
	if err := g.queue.Enqueue(ctx, userID, purpose, ev); err != nil {
		g.appCtx.Logger.Error("failed to enqueue event, dropping", "user_id", userID, "type", eventType, "err", err)
	}
}

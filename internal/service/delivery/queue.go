package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/cache"
)

// Queue purposes, one redis list per recipient per purpose.
const (
	PurposeMatches       = "matches"
	PurposeMessages      = "messages"
	PurposeNotifications = "notifications"
)

// Event is one buffered delivery for an offline recipient. Ids are uuids;
// a crash between read and clear can duplicate a drain, so clients must
// tolerate duplicate event ids.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent wraps a payload into a queued event with a fresh id.
func NewEvent(eventType string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Queue buffers events for disconnected recipients and hands them back, in
// insertion order, when they reconnect.
type Queue struct {
	appCtx *app.AppContext
}

// NewQueue creates the offline delivery queue with dependencies from AppContext.
func NewQueue(appCtx *app.AppContext) *Queue {
	return &Queue{appCtx: appCtx}
}

// Enqueue appends one event to the recipient's list for the given purpose
// and refreshes the list TTL.
func (q *Queue) Enqueue(ctx context.Context, userID uint64, purpose string, ev *Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal queued event: %w", err)
	}
	key := cache.KeyUserQueue(userID, purpose)
	return q.appCtx.RedisCache.RPushWithTTL(ctx, key, q.appCtx.Config.Queue.TTL, raw)
}

// Drain atomically reads and clears all of the recipient's queues and
// returns the events in original insertion order (matches first, then
// messages, then notifications). Called exactly once per reconnect,
// immediately after the connection reaches its joined state.
func (q *Queue) Drain(ctx context.Context, userID uint64) ([]Event, error) {
	var events []Event
	for _, purpose := range []string{PurposeMatches, PurposeMessages, PurposeNotifications} {
		key := cache.KeyUserQueue(userID, purpose)
		raws, err := q.appCtx.RedisCache.ReadAndClear(ctx, key)
		if err != nil {
			return events, err
		}
		for _, raw := range raws {
			var ev Event
			if err := json.Unmarshal([]byte(raw), &ev); err != nil {
				q.appCtx.Logger.Warn("dropping undecodable queued event", "user_id", userID, "purpose", purpose, "err", err)
				continue
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// Len returns the number of buffered events for one purpose.
func (q *Queue) Len(ctx context.Context, userID uint64, purpose string) (int64, error) {
	return q.appCtx.RedisCache.LLen(ctx, cache.KeyUserQueue(userID, purpose))
}

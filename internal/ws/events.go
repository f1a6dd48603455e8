package ws

import (
	"encoding/json"
	"time"
)

// Wire event names. Events are named JSON payloads inside a small envelope;
// the client dispatches on Event.
const (
	// outbound
	EventJoined          = "joined"
	EventChatHistory     = "chat_history"
	EventChatMessage     = "chat_message"
	EventMatchCreated    = "match_created"
	EventMatchFailed     = "match_failed"
	EventSwipeResult     = "swipe_result"
	EventPresenceChanged = "presence_changed"
	EventStatus          = "status"
	EventError           = "error"

	// inbound
	EventSwipe = "swipe"
	EventJoin  = "join"
	EventLeave = "leave"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// --- inbound payloads ---

type SwipeRequest struct {
	SwipeeID uint64 `json:"swipee_id"`
	Result   string `json:"result"`
}

type ChatMessageRequest struct {
	MatchID uint64 `json:"match_id"`
	Content string `json:"content"`
}

type RoomRequest struct {
	MatchID uint64 `json:"match_id"`
}

// --- outbound payloads ---

type JoinedPayload struct {
	UserID   uint64   `json:"user_id"`
	MatchIDs []uint64 `json:"match_ids"`
}

type ChatMessagePayload struct {
	MessageID uint64    `json:"message_id"`
	MatchID   uint64    `json:"match_id"`
	SenderID  uint64    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatHistoryPayload struct {
	MatchID   uint64               `json:"match_id"`
	Messages  []ChatMessagePayload `json:"messages"`
	NextToken string               `json:"next_token,omitempty"`
}

type MatchPayload struct {
	MatchID      uint64    `json:"match_id"`
	Participants []uint64  `json:"participants"`
	CreatedAt    time.Time `json:"created_at"`
}

type MatchFailedPayload struct {
	SwipeeID uint64 `json:"swipee_id"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

type SwipeResultPayload struct {
	SwipeeID   uint64 `json:"swipee_id"`
	Result     string `json:"result"`
	IsNewMatch bool   `json:"is_new_match"`
}

type PresencePayload struct {
	UserID uint64 `json:"user_id"`
	Online bool   `json:"online"`
}

type StatusPayload struct {
	Message string `json:"msg"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode marshals an envelope; payloads are all local structs, so a marshal
// failure is a programming error and yields an internal error frame.
func Encode(event string, payload any) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	b, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return []byte(`{"event":"error","data":{"code":"internal"}}`)
	}
	return b
}

package ws

import (
	"sync"
)

// Hub tracks connections per user and room membership per match. One room
// exists per match and is only ever a fan-out target.
//
// All membership changes and room broadcasts take the hub lock, which makes
// the hub the single writer per room: events reach every member in the
// order they were broadcast, and joining a room is atomic with the first
// event sent to it.
type Hub struct {
	mu      sync.Mutex
	clients map[uint64]map[*Client]struct{} // user id -> connections
	rooms   map[uint64]map[*Client]struct{} // match id -> members
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[uint64]map[*Client]struct{}),
		rooms:   make(map[uint64]map[*Client]struct{}),
	}
}

// Register adds a connection for its user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
}

// Unregister removes a connection from its user and from every room it
// joined, and closes its send channel. Returns true when this was the
// user's last connection.
func (h *Hub) Unregister(c *Client) (last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns := h.clients[c.userID]; conns != nil {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
		}
		if len(conns) == 0 {
			delete(h.clients, c.userID)
			last = true
		}
	}
	for matchID := range c.rooms {
		if members := h.rooms[matchID]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, matchID)
			}
		}
	}
	return last
}

// JoinRoom adds one connection to a room.
func (h *Hub) JoinRoom(matchID uint64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(matchID, c)
}

// LeaveRoom removes one connection from a room.
func (h *Hub) LeaveRoom(matchID uint64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members := h.rooms[matchID]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, matchID)
		}
	}
	delete(c.rooms, matchID)
}

func (h *Hub) joinLocked(matchID uint64, c *Client) {
	if h.rooms[matchID] == nil {
		h.rooms[matchID] = make(map[*Client]struct{})
	}
	h.rooms[matchID][c] = struct{}{}
	c.rooms[matchID] = struct{}{}
}

// BroadcastRoom sends data to every member of the room.
func (h *Hub) BroadcastRoom(matchID uint64, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[matchID] {
		c.trySend(data)
	}
}

// JoinAndSend joins every connection of the user to the room and sends them
// data inside one critical section, so a connection can neither receive a
// room event before it has joined nor miss one by joining late. Returns
// true when at least one connection took the frame.
func (h *Hub) JoinAndSend(matchID, userID uint64, data []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := false
	for c := range h.clients[userID] {
		h.joinLocked(matchID, c)
		if c.trySend(data) {
			delivered = true
		}
	}
	return delivered
}

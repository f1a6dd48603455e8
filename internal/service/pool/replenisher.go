package pool

import (
	"context"
	"sync"
	"time"
)

// Replenisher runs one cancellable background loop per active user that
// keeps their pool at the target size while they are connected. Loops are
// not tied to any single connection: the gateway calls Stop only when the
// user's last connection is gone, so a user with two devices keeps one loop
// until both disconnect.
type Replenisher struct {
	pool     *Service
	interval time.Duration

	mu       sync.Mutex
	sessions map[uint64]*replenishSession
}

// replenishSession identifies one loop. The handle (not just the user id)
// is what teardown compares against, so a loop that dies while a newer loop
// for the same user is already registered cannot tear the new one down.
type replenishSession struct {
	cancel context.CancelFunc
}

// NewReplenisher creates the replenisher for the given pool service.
func NewReplenisher(pool *Service, interval time.Duration) *Replenisher {
	return &Replenisher{
		pool:     pool,
		interval: interval,
		sessions: make(map[uint64]*replenishSession),
	}
}

// Start begins the polling loop for the user if one is not already running.
// The loop exits when the pool reaches the target size or when Stop is
// called.
func (r *Replenisher) Start(userID uint64) {
	r.mu.Lock()
	if _, running := r.sessions[userID]; running {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &replenishSession{cancel: cancel}
	r.sessions[userID] = s
	r.mu.Unlock()

	go r.run(ctx, userID, s)
}

// Stop cancels the user's loop if one is running.
func (r *Replenisher) Stop(userID uint64) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	if ok {
		s.cancel()
	}
}

// release deregisters one specific loop. Only the loop's own entry is
// removed; after a quick Stop/Start the map already holds the restarted
// session, which must keep running.
func (r *Replenisher) release(userID uint64, s *replenishSession) {
	r.mu.Lock()
	if r.sessions[userID] == s {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()
	s.cancel()
}

func (r *Replenisher) run(ctx context.Context, userID uint64, s *replenishSession) {
	defer r.release(userID, s)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		appended, err := r.pool.GenerateAndCache(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.pool.appCtx.Logger.Error("pool replenish failed", "user_id", userID, "err", err)
		} else if appended == 0 {
			// target met or no more eligible candidates
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

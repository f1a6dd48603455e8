package pool

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/cache"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/repository"
)

// Candidate is the cached profile summary served to the swipe loop. Not
// authoritative: always re-derivable from the relational store.
type Candidate struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
	City   string `json:"city"`
	State  string `json:"state"`
	Bio    string `json:"bio,omitempty"`
}

// Service pre-computes and replenishes per-user candidate pools in the TTL
// cache, decoupling the interactive swipe loop from the relational query.
type Service struct {
	appCtx   *app.AppContext
	userRepo *repository.UserRepository

	mu           sync.Mutex
	replenishing map[uint64]struct{}
}

// NewService creates the candidate pool service with dependencies from
// AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:       appCtx,
		userRepo:     repository.NewUserRepository(appCtx.DB),
		replenishing: make(map[uint64]struct{}),
	}
}

// GeneratePool runs the candidate query for the user. Returns an empty
// slice, not an error, when the user has no dating preference configured:
// that is a precondition, not a retryable failure.
func (s *Service) GeneratePool(ctx context.Context, userID uint64, limit int) ([]Candidate, error) {
	user, err := s.userRepo.GetWithPreference(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Preference == nil {
		return nil, nil
	}
	return s.generate(ctx, user, nil, limit)
}

func (s *Service) generate(ctx context.Context, user *db.User, excludeIDs []uint64, limit int) ([]Candidate, error) {
	users, err := s.userRepo.QueryCandidates(ctx, user, user.Preference, excludeIDs, limit)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(users))
	for _, u := range users {
		candidates = append(candidates, Candidate{
			ID:     u.ID,
			Name:   u.Username,
			Age:    u.Age,
			Gender: u.Gender,
			City:   u.City,
			State:  u.State,
			Bio:    u.Bio,
		})
	}
	return candidates, nil
}

// GetNext pops up to count entries from the front of the cached pool
// (FIFO). If the remaining length drops below the floor, one asynchronous
// top-up is scheduled without blocking the caller.
func (s *Service) GetNext(ctx context.Context, userID uint64, count int) ([]Candidate, error) {
	if count <= 0 {
		return nil, nil
	}
	key := cache.KeySwipePool(userID)

	raws, err := s.appCtx.RedisCache.LPopCount(ctx, key, count)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(raws))
	for _, raw := range raws {
		var c Candidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			s.appCtx.Logger.Warn("dropping undecodable pool entry", "user_id", userID, "err", err)
			continue
		}
		candidates = append(candidates, c)
	}

	remaining, err := s.appCtx.RedisCache.LLen(ctx, key)
	if err == nil && remaining < int64(s.appCtx.Config.Pool.Floor) {
		s.scheduleTopUp(userID)
	}

	return candidates, nil
}

// scheduleTopUp fires at most one background generateAndCache per user at a
// time. The task runs on a detached context so it survives the caller's
// request lifetime but still times out on its own.
func (s *Service) scheduleTopUp(userID uint64) {
	s.mu.Lock()
	if _, busy := s.replenishing[userID]; busy {
		s.mu.Unlock()
		return
	}
	s.replenishing[userID] = struct{}{}
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.replenishing, userID)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := s.GenerateAndCache(ctx, userID); err != nil {
			s.appCtx.Logger.Error("pool top-up failed", "user_id", userID, "err", err)
		}
	}()
}

// GenerateAndCache fills the user's pool back toward the target size,
// deduplicated against entries already cached, and refreshes the pool TTL.
// Returns the number of entries appended.
func (s *Service) GenerateAndCache(ctx context.Context, userID uint64) (int, error) {
	user, err := s.userRepo.GetWithPreference(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil || user.Preference == nil {
		return 0, nil
	}

	key := cache.KeySwipePool(userID)

	length, err := s.appCtx.RedisCache.LLen(ctx, key)
	if err != nil {
		return 0, err
	}
	want := s.appCtx.Config.Pool.TargetSize - int(length)
	if want <= 0 {
		return 0, nil
	}

	excludeIDs, err := s.cachedIDs(ctx, key)
	if err != nil {
		return 0, err
	}

	candidates, err := s.generate(ctx, user, excludeIDs, want)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	values := make([]interface{}, 0, len(candidates))
	for _, c := range candidates {
		raw, err := json.Marshal(c)
		if err != nil {
			return 0, err
		}
		values = append(values, raw)
	}

	if err := s.appCtx.RedisCache.RPushWithTTL(ctx, key, s.appCtx.Config.Pool.TTL, values...); err != nil {
		return 0, err
	}
	return len(candidates), nil
}

// cachedIDs collects the user ids already sitting in the cached pool so a
// refill never appends a duplicate.
func (s *Service) cachedIDs(ctx context.Context, key string) ([]uint64, error) {
	raws, err := s.appCtx.RedisCache.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raws))
	for _, raw := range raws {
		var c Candidate
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			continue
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

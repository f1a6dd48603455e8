package match

import (
	"context"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/repository"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

// Notifier receives match-created events. The realtime gateway implements
// this: it delivers live to online participants and enqueues for offline
// ones.
type Notifier interface {
	MatchCreated(ctx context.Context, m *db.Match)
}

// Service idempotently turns a mutual accept into a match record.
type Service struct {
	appCtx    *app.AppContext
	matchRepo *repository.MatchRepository
	userRepo  *repository.UserRepository
	notifier  Notifier
}

// NewService creates the match service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		matchRepo: repository.NewMatchRepository(appCtx.DB),
		userRepo:  repository.NewUserRepository(appCtx.DB),
	}
}

// SetNotifier wires the realtime gateway in after construction. The gateway
// depends on this service, so the notifier cannot be a constructor argument.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateMatch creates the match for the unordered pair (a, b), or returns
// the existing one unchanged.
//
// Behavior:
//   - Idempotent: calling twice (or concurrently) yields exactly one row,
//     and every caller observes the same id.
//   - The match-created notification fires only for the call that actually
//     created the row, never for duplicates.
func (s *Service) CreateMatch(ctx context.Context, a, b uint64) (*db.Match, bool, error) {
	if a == b {
		return nil, false, svcerrors.ErrSelfMatch
	}
	if a == 0 || b == 0 {
		return nil, false, svcerrors.ErrUnknownUser
	}

	for _, id := range []uint64{a, b} {
		exists, err := s.userRepo.Exists(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !exists {
			return nil, false, svcerrors.ErrUnknownUser
		}
	}

	m, created, err := s.matchRepo.Insert(ctx, a, b)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.appCtx.Logger.Info("match created", "match_id", m.ID, "user_low", m.UserLow, "user_high", m.UserHigh)
		if s.notifier != nil {
			s.notifier.MatchCreated(ctx, m)
		}
	}

	return m, created, nil
}

// MatchesForUser lists all matches involving the user, newest first. Used
// by the gateway to compute room membership at connect time.
func (s *Service) MatchesForUser(ctx context.Context, userID uint64) ([]db.Match, error) {
	return s.matchRepo.ListForUser(ctx, userID)
}

// Get returns the match by id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, matchID uint64) (*db.Match, error) {
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, svcerrors.ErrNotFound
	}
	return m, nil
}

// IsParticipant checks membership against the match row's participant ids.
func (s *Service) IsParticipant(ctx context.Context, matchID, userID uint64) (bool, error) {
	return s.matchRepo.IsParticipant(ctx, matchID, userID)
}

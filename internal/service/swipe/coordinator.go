package swipe

import (
	"context"

	"gorm.io/gorm"

	"github.com/emberlink/ember-backend/internal/app"
	"github.com/emberlink/ember-backend/internal/db"
	"github.com/emberlink/ember-backend/internal/repository"
	"github.com/emberlink/ember-backend/internal/service/match"
	"github.com/emberlink/ember-backend/internal/svcerrors"
)

// Outcome is the result of one recorded swipe.
type Outcome struct {
	// Record is the directed record for the swiper, after this swipe.
	Record *db.Swipe
	// NewMatch is true when this swipe completed a mutual accept.
	NewMatch bool
	// Match is set when NewMatch is true and match creation succeeded.
	Match *db.Match
}

// Coordinator applies the swipe reciprocity state machine. All reads and
// writes for one unordered pair run under that pair's lock plus a store
// transaction, so two concurrent swipes on the same pair cannot both
// observe "no opposite record yet".
type Coordinator struct {
	appCtx    *app.AppContext
	swipeRepo *repository.SwipeRepository
	matches   *match.Service
	locks     pairLocks
}

// NewCoordinator creates the coordinator with dependencies from AppContext.
func NewCoordinator(appCtx *app.AppContext, matches *match.Service) *Coordinator {
	return &Coordinator{
		appCtx:    appCtx,
		swipeRepo: repository.NewSwipeRepository(appCtx.DB),
		matches:   matches,
	}
}

// RecordSwipe records one directed swipe and resolves reciprocity.
//
// State machine (per ordered pair records between swiper S and target T):
//   - no record either direction: insert (S→T, result). Even an ACCEPTED
//     first swipe makes no match decision; reciprocity requires T's side.
//   - record exists S→T: overwrite result/timestamp, last write wins.
//   - record exists T→S only:
//   - new result REJECTED: store S→T REJECTED and force T→S to REJECTED.
//     A reject from either side permanently forecloses the pair.
//   - new result ACCEPTED and T→S is ACCEPTED: mutual accept; the match
//     service is signalled and the created match is part of the outcome.
//   - new result ACCEPTED and T→S is REJECTED: store S→T ACCEPTED, no
//     match (the reject stands).
//
// Validation errors (self swipe, zero ids, bad result) never reach the
// store. A match-creation failure after a true mutual accept is returned
// alongside NewMatch=true so callers can report it distinctly from
// "no match yet".
func (c *Coordinator) RecordSwipe(ctx context.Context, swiperID, swipeeID uint64, result string) (*Outcome, error) {
	if swiperID == 0 || swipeeID == 0 || swiperID == swipeeID {
		return nil, svcerrors.ErrInvalidSwipe
	}
	if result != db.SwipeAccepted && result != db.SwipeRejected {
		return nil, svcerrors.ErrInvalidResult
	}

	unlock := c.locks.lock(swiperID, swipeeID)
	defer unlock()

	out := &Outcome{}
	err := c.swipeRepo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		same, err := c.swipeRepo.GetDirected(ctx, tx, swiperID, swipeeID)
		if err != nil {
			return err
		}

		record := &db.Swipe{SwiperID: swiperID, SwipeeID: swipeeID, Result: result}
		if same != nil {
			// re-swipe in the same direction: overwrite only
			if err := c.swipeRepo.Upsert(ctx, tx, record); err != nil {
				return err
			}
			out.Record = record
			return nil
		}

		opposite, err := c.swipeRepo.GetDirected(ctx, tx, swipeeID, swiperID)
		if err != nil {
			return err
		}

		if err := c.swipeRepo.Upsert(ctx, tx, record); err != nil {
			return err
		}
		out.Record = record

		if opposite == nil {
			// first swipe between the pair: no match decision yet
			return nil
		}

		switch {
		case result == db.SwipeRejected:
			// reject forecloses the pair in both directions
			if opposite.Result != db.SwipeRejected {
				if err := c.swipeRepo.ForceResult(ctx, tx, swipeeID, swiperID, db.SwipeRejected); err != nil {
					return err
				}
			}
		case opposite.Result == db.SwipeAccepted:
			out.NewMatch = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.NewMatch {
		m, _, err := c.matches.CreateMatch(ctx, swiperID, swipeeID)
		if err != nil {
			// mutual accept stands; surface the failed creation distinctly
			c.appCtx.Logger.Error("match creation failed after mutual accept",
				"swiper", swiperID, "swipee", swipeeID, "err", err)
			return out, err
		}
		out.Match = m
	}

	return out, nil
}

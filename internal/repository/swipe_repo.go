package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberlink/ember-backend/internal/db"
)

// SwipeRepository provides data access for directed swipe records.
// All mutation methods accept the *gorm.DB they should run on, so the
// coordinator can point them at a transaction.
type SwipeRepository struct {
	db *gorm.DB
}

// NewSwipeRepository creates a new repository bound to the given DB connection.
func NewSwipeRepository(database *gorm.DB) *SwipeRepository {
	return &SwipeRepository{db: database}
}

// DB returns the underlying handle, used by callers that open transactions.
func (r *SwipeRepository) DB() *gorm.DB {
	return r.db
}

// GetDirected returns the swipe record for the ordered pair
// (swiperID → swipeeID), or nil if no such record exists.
func (r *SwipeRepository) GetDirected(ctx context.Context, tx *gorm.DB, swiperID, swipeeID uint64) (*db.Swipe, error) {
	if tx == nil {
		tx = r.db
	}
	var s db.Swipe
	err := tx.WithContext(ctx).
		Where("swiper_id = ? AND swipee_id = ?", swiperID, swipeeID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert inserts the swipe or, if the ordered pair already exists,
// overwrites its result and timestamp. Composite PK ensures the overwrite
// guarantee: one row per ordered pair, always.
func (r *SwipeRepository) Upsert(ctx context.Context, tx *gorm.DB, swipe *db.Swipe) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "swiper_id"}, {Name: "swipee_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"result", "updated_at"}),
		}).
		Create(swipe).Error
}

// ForceResult overwrites the stored result for an existing ordered pair.
// Used when a reciprocal reject forecloses the opposite-direction record.
func (r *SwipeRepository) ForceResult(ctx context.Context, tx *gorm.DB, swiperID, swipeeID uint64, result string) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&db.Swipe{}).
		Where("swiper_id = ? AND swipee_id = ?", swiperID, swipeeID).
		Updates(map[string]interface{}{"result": result, "updated_at": time.Now().UTC()}).Error
}

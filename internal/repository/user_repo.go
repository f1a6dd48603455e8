package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/emberlink/ember-backend/internal/db"
)

// How recently a user must have been active to appear in anyone's pool.
const candidateActiveWindow = 14 * 24 * time.Hour

// UserRepository provides data access for users and their dating
// preferences, including the candidate pool query.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Exists reports whether a user with the given id exists.
func (r *UserRepository) Exists(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Count(&count).Error
	return count > 0, err
}

// GetWithPreference loads a user together with their dating preference.
// Returns (user, nil) with a nil Preference when no preference row exists.
func (r *UserRepository) GetWithPreference(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	err := r.db.WithContext(ctx).
		Preload("Preference").
		First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// TouchLastActive bumps a user's activity timestamp.
func (r *UserRepository) TouchLastActive(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", id).
		Update("last_active_at", time.Now().UTC()).Error
}

// QueryCandidates runs the candidate pool query for the given user and
// preference.
//
// Filters:
//   - never the requester themselves, only active users
//   - mutual gender interest ("any" wildcard on either side)
//   - mutual age range (each user inside the other's configured bounds)
//   - same city and state (coarse locality, no distance math)
//   - active within the last two weeks
//   - no directed swipe from the requester at the candidate
//   - no REJECTED swipe from the candidate at the requester
//   - not in excludeIDs (entries already sitting in the cached pool)
//
// Ordering is randomized; no ranking guarantee.
func (r *UserRepository) QueryCandidates(
	ctx context.Context,
	user *db.User,
	pref *db.DatingPreference,
	excludeIDs []uint64,
	limit int,
) ([]db.User, error) {
	activeSince := time.Now().UTC().Add(-candidateActiveWindow)

	query := r.db.WithContext(ctx).
		Table("users u").
		Select("u.*").
		Joins("JOIN dating_preferences p ON p.user_id = u.id").
		Where("u.id <> ?", user.ID).
		Where("u.active = ?", true).
		Where("(p.interested_in = ? OR p.interested_in = 'any')", user.Gender).
		Where("(? = 'any' OR u.gender = ?)", pref.InterestedIn, pref.InterestedIn).
		Where("u.age >= ? AND u.age <= ?", pref.AgeMin, pref.AgeMax).
		Where("p.age_min <= ? AND p.age_max >= ?", user.Age, user.Age).
		Where("u.city = ? AND u.state = ?", user.City, user.State).
		Where("u.last_active_at >= ?", activeSince).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipes s
				WHERE s.swiper_id = ?
				  AND s.swipee_id = u.id
			)`, user.ID).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM swipes s2
				WHERE s2.swiper_id = u.id
				  AND s2.swipee_id = ?
				  AND s2.result = ?
			)`, user.ID, db.SwipeRejected)

	if len(excludeIDs) > 0 {
		query = query.Where("u.id NOT IN ?", excludeIDs)
	}

	var candidates []db.User
	err := query.
		Order(r.randomFn()).
		Limit(limit).
		Find(&candidates).Error
	return candidates, err
}

// randomFn returns the dialect's random-order expression.
func (r *UserRepository) randomFn() string {
	if r.db.Dialector.Name() == "mysql" {
		return "RAND()"
	}
	return "RANDOM()"
}

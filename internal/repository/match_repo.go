package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberlink/ember-backend/internal/db"
)

// MatchRepository provides data access for confirmed matches. The pair is
// stored normalized (low id first) so the unique index covers the unordered
// pair.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// GetByPair returns the match for the unordered pair (a, b), or nil if none
// exists.
func (r *MatchRepository) GetByPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	low, high := db.NormalizePair(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user_low = ? AND user_high = ?", low, high).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetByID returns the match with the given id, or nil if it does not exist.
func (r *MatchRepository) GetByID(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	err := r.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Insert creates the match row for the unordered pair if it does not exist
// and returns (match, created). Two concurrent inserts for the same pair
// resolve to the same row: the unique index rejects the loser, who then
// reads the winner's row.
func (r *MatchRepository) Insert(ctx context.Context, a, b uint64) (*db.Match, bool, error) {
	low, high := db.NormalizePair(a, b)

	if existing, err := r.GetByPair(ctx, a, b); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	m := db.Match{UserLow: low, UserHigh: high}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_low"}, {Name: "user_high"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// lost the race: fetch the row the other writer created
		existing, err := r.GetByPair(ctx, a, b)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return &m, true, nil
}

// ListForUser returns all matches involving the given user, newest first.
func (r *MatchRepository) ListForUser(ctx context.Context, userID uint64) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("user_low = ? OR user_high = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&matches).Error
	return matches, err
}

// IsParticipant reports whether userID is one of the two users in matchID.
// The check is against the match row itself, not room membership, so a
// guessed match_id never grants access.
func (r *MatchRepository) IsParticipant(ctx context.Context, matchID, userID uint64) (bool, error) {
	m, err := r.GetByID(ctx, matchID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return m.Involves(userID), nil
}

package db

import (
	"time"
)

// Swipe results. PENDING is store-internal: callers only ever submit
// ACCEPTED or REJECTED.
const (
	SwipePending  = "PENDING"
	SwipeAccepted = "ACCEPTED"
	SwipeRejected = "REJECTED"
)

// User table. Profile fields beyond identity exist to serve the candidate
// pool filters (age, gender, locality, activity window).
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Active       bool   `gorm:"default:true"`
	Gender       string `gorm:"size:16;not null"`
	Age          int    `gorm:"not null"`
	City         string `gorm:"size:100"`
	State        string `gorm:"size:10"`
	Bio          string `gorm:"size:500"`
	LastActiveAt time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Preference *DatingPreference `gorm:"foreignKey:UserID"`
}

// DatingPreference holds a user's matchmaking configuration. One row per
// user; a user with no row cannot be served a candidate pool.
type DatingPreference struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	UserID       uint64 `gorm:"uniqueIndex;not null"`
	InterestedIn string `gorm:"size:16;not null"` // gender value or "any"
	AgeMin       int    `gorm:"not null"`
	AgeMax       int    `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Swipe represents one directed swipe from swiper to swipee.
//
// Composite PK (SwiperID, SwipeeID) guarantees at most one row per ordered
// pair: a re-swipe in the same direction overwrites, never inserts.
type Swipe struct {
	SwiperID  uint64    `gorm:"primaryKey;index:idx_swipee_result,priority:2"`
	SwipeeID  uint64    `gorm:"primaryKey;index:idx_swipee_result,priority:1"`
	Result    string    `gorm:"size:16;not null;default:PENDING;index:idx_swipee_result,priority:3"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Match is a confirmed mutual accept. UserLow/UserHigh store the pair in
// normalized order (low id first) so the unique index holds for the
// unordered pair regardless of which side swiped last.
type Match struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserLow   uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserHigh  uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Involves reports whether userID is one of the two participants.
func (m *Match) Involves(userID uint64) bool {
	return m.UserLow == userID || m.UserHigh == userID
}

// OtherParticipant returns the participant that is not userID. Callers must
// have checked Involves first.
func (m *Match) OtherParticipant(userID uint64) uint64 {
	if m.UserLow == userID {
		return m.UserHigh
	}
	return m.UserLow
}

// NormalizePair orders a user pair low/high for unordered-pair keys.
func NormalizePair(a, b uint64) (low, high uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message is one persisted chat message inside a match room.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID   uint64    `gorm:"not null;index:idx_match_created,priority:1"`
	SenderID  uint64    `gorm:"not null"`
	Content   string    `gorm:"size:2000;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_match_created,priority:2,sort:desc"`
}

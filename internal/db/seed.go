package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the database and populates it with demo users,
// preferences and swipes.
//
// Behavior:
//  1. Clears existing rows in all tables.
//  2. Creates 20 users (10 male, 10 female) in one city, with hashed
//     passwords and dating preferences.
//  3. Generates demo swipes with ~70% accepts; every 3rd pair gets a
//     guaranteed reciprocal accept so mutual-accept flows have data.
//
// Compatible with both MySQL and SQLite.
func SeedTestData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{"messages", "matches", "swipes", "dating_preferences", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	switch db.Dialector.Name() {
	case "mysql":
		db.Exec("ALTER TABLE users AUTO_INCREMENT = 1")
		db.Exec("ALTER TABLE matches AUTO_INCREMENT = 1")
	case "sqlite":
		db.Exec("DELETE FROM sqlite_sequence WHERE name IN ('users', 'matches', 'messages', 'dating_preferences')")
	}

	log.Println("Cleared existing data")

	// --- Seed Users (10 male, 10 female), all in one city so the locality
	// filter keeps them mutually visible ---
	for i := 1; i <= 20; i++ {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		gender, interestedIn := "male", "female"
		if i > 10 {
			gender, interestedIn = "female", "male"
		}

		user := User{
			Username:     fmt.Sprintf("user%d", i),
			Email:        fmt.Sprintf("user%d@example.com", i),
			PasswordHash: string(hash),
			Gender:       gender,
			Age:          21 + r.Intn(15),
			City:         "Springfield",
			State:        "IL",
			Bio:          fmt.Sprintf("Demo profile %d", i),
			Active:       true,
			LastActiveAt: time.Now().Add(-time.Duration(r.Intn(200)) * time.Hour),
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		pref := DatingPreference{
			UserID:       user.ID,
			InterestedIn: interestedIn,
			AgeMin:       18,
			AgeMax:       45,
		}
		if err := db.Create(&pref).Error; err != nil {
			return fmt.Errorf("failed to seed preference: %w", err)
		}
	}
	log.Println("Seeded 20 users with preferences.")

	// --- Seed Swipes ---
	var users []User
	if err := db.Order("id").Find(&users).Error; err != nil {
		return err
	}
	byID := make(map[uint64]User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	counter := 0
	for _, actor := range users {
		for j := 0; j < 6; j++ {
			target := users[r.Intn(len(users))]
			if actor.ID == target.ID || actor.Gender == target.Gender {
				continue
			}

			result := SwipeAccepted
			if r.Intn(100) >= 70 {
				result = SwipeRejected
			}

			// guarantee mutual accepts every 3rd pair
			if counter%3 == 0 {
				result = SwipeAccepted
				recip := Swipe{SwiperID: target.ID, SwipeeID: actor.ID, Result: SwipeAccepted}
				db.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "swiper_id"}, {Name: "swipee_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"result", "updated_at"}),
				}).Create(&recip)
			}

			swipe := Swipe{SwiperID: actor.ID, SwipeeID: target.ID, Result: result}
			if err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "swiper_id"}, {Name: "swipee_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"result", "updated_at"}),
			}).Create(&swipe).Error; err != nil {
				return fmt.Errorf("failed to seed swipe: %w", err)
			}
			counter++
		}
	}

	log.Printf("Seeded %d demo swipes.", counter)
	return nil
}

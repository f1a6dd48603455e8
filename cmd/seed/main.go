package main

import (
	"fmt"
	"log"

	"github.com/emberlink/ember-backend/internal/auth"
	"github.com/emberlink/ember-backend/internal/config"
	"github.com/emberlink/ember-backend/internal/db"
)

func main() {
	// Load configuration
	cfg := config.New()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedTestData(database); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	// Print tokens for manual testing against the gateway.
	var users []db.User
	if err := database.Order("id").Limit(5).Find(&users).Error; err != nil {
		log.Fatalf("failed to list users: %v", err)
	}
	for _, u := range users {
		token, err := auth.IssueToken(cfg.Auth.JWTSecret, u.ID, cfg.Auth.TokenTTL)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}
		fmt.Printf("user %d (%s): %s\n", u.ID, u.Username, token)
	}

	log.Println("Seeding completed.")
}

package main

import (
	"context"
	"fmt"
	"os"

	"taskplanner/internal/auth"
	"taskplanner/internal/config"
	"taskplanner/internal/database"
	"taskplanner/internal/models"
	"taskplanner/internal/repositories/postgres"
	"taskplanner/pkg/logger"

	"github.com/google/uuid"
)

// seedUsers get stable ids derived from the username so reseeding updates
// rows instead of duplicating them.
var seedUsers = []struct {
	username string
	role     models.Role
	active   bool
}{
	{"admin", models.RoleAdmin, true},
	{"alice", models.RoleUser, true},
	{"bob", models.RoleUser, true},
	{"charlie", models.RoleUser, false},
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level)
	log.Info("Starting database seeding...")

	db, err := database.NewPostgresConnection(cfg.Database.URI)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	users := postgres.NewUserRepository(db)
	verifier := auth.NewVerifier(cfg.JWT, users, log)
	ctx := context.Background()

	for _, s := range seedUsers {
		user := &models.User{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte("taskplanner:"+s.username)).String(),
			Username: s.username,
			Email:    s.username + "@taskplanner.local",
			Role:     s.role,
			IsActive: s.active,
		}
		if err := users.Upsert(ctx, user); err != nil {
			log.Error("Failed to seed user", "username", s.username, "error", err)
			os.Exit(1)
		}

		token, err := verifier.IssueToken(user.ID)
		if err != nil {
			log.Error("Failed to issue token", "username", s.username, "error", err)
			os.Exit(1)
		}
		log.Info("Seeded user", "username", user.Username, "id", user.ID, "role", user.Role, "active", user.IsActive)
		fmt.Printf("%s\t%s\n", user.Username, token)
	}

	log.Info("Database seeding completed successfully!")
}

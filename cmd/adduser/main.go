// Command adduser creates a user row and prints a ready-to-use access token.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/repositories"
)

func main() {
	username := flag.String("username", "", "username to create")
	avatar := flag.String("avatar", "", "avatar URL (optional)")
	flag.Parse()

	if *username == "" {
		log.Fatal("-username is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	service, err := auth.NewService(ctx, auth.Config{Secret: cfg.AuthSecret, TokenExpiry: cfg.TokenExpiry})
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	user, err := repositories.NewUserRepo(database).CreateUser(ctx, *username, *avatar)
	if err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	fmt.Printf("user id: %d\n", user.ID)
	fmt.Printf("username: %s\n", user.Username)
	fmt.Printf("token: %s\n", service.Mint(user.ID))
}

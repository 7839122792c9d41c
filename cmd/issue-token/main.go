package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/stemsi/exam-engine/internal/config"
	"github.com/stemsi/exam-engine/internal/service"
)

// issue-token prints a bearer token for a user id, for local testing
// against an identity provider-less deployment.
func main() {
	var rawID string
	flag.StringVar(&rawID, "user", "", "User UUID (a random one is generated when empty)")
	flag.Parse()

	userID := uuid.New()
	if rawID != "" {
		parsed, err := uuid.Parse(rawID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid user id: %v\n", err)
			os.Exit(1)
		}
		userID = parsed
	}

	cfg := config.Load()
	token, err := service.NewAuthService(cfg.JWTSecret, cfg.JWTExpiry).IssueToken(userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User:  %s\n", userID)
	fmt.Printf("Token: %s\n", token)
}

package main

import (
	"flag"
	"fmt"
	"time"

	"pocketsync/internal/logger"
	"pocketsync/internal/service"

	"github.com/joho/godotenv"
)

// issue_token prints a signed token for a local owner, for use with curl
// or the notice stream during development.
func main() {
	_ = godotenv.Load()

	owner := flag.String("owner", "dev-owner", "owner id to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	service.InitJWT()
	token, err := service.GenerateJWTWithTTL(*owner, *ttl)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}

	// verify it round-trips before printing
	parsed, err := service.ParseJWT(token)
	if err != nil || parsed != *owner {
		logger.Fatal("generated token does not verify", "error", err)
	}
	fmt.Println(token)
}

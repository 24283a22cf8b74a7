package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"offramp.backend/internal/config"
	"offramp.backend/pkg/jwt"
)

var (
	printfFn  = fmt.Printf
	fatalfFn  = log.Fatalf
	loadEnvFn = func() error { return godotenv.Load() }
	loadCfgFn = config.Load
)

type tokenRequest struct {
	userID uuid.UUID
	ttl    time.Duration
}

func parseArgs(args []string) (tokenRequest, error) {
	fs := flag.NewFlagSet("admin-token", flag.ContinueOnError)
	userIDFlag := fs.String("user-id", "", "operator UUID embedded in the token (random when empty)")
	ttlFlag := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return tokenRequest{}, err
	}
	if *ttlFlag <= 0 || *ttlFlag > 24*time.Hour {
		return tokenRequest{}, fmt.Errorf("--ttl must be between 0 and 24h, got %s", *ttlFlag)
	}

	req := tokenRequest{userID: uuid.New(), ttl: *ttlFlag}
	if *userIDFlag != "" {
		id, err := uuid.Parse(*userIDFlag)
		if err != nil {
			return tokenRequest{}, fmt.Errorf("invalid --user-id: %w", err)
		}
		req.userID = id
	}
	return req, nil
}

func issueToken(secret string, req tokenRequest) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET is empty")
	}
	svc := jwt.NewJWTService(secret, req.ttl, req.ttl)
	return svc.GenerateAccessToken(req.userID, jwt.RoleAdmin, req.ttl)
}

func main() {
	req, err := parseArgs(os.Args[1:])
	if err != nil {
		fatalfFn("Invalid arguments: %v", err)
		return
	}
	if err := loadEnvFn(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := loadCfgFn()

	token, err := issueToken(cfg.JWT.Secret, req)
	if err != nil {
		fatalfFn("Failed to issue admin token: %v", err)
		return
	}

	printfFn("Issued ADMIN token for %s (expires in %s)\n", req.userID, req.ttl)
	printfFn("ADMIN_TOKEN=%s\n", token)
}

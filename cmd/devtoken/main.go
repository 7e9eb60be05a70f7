// Command devtoken mints a bearer token for local development.
//
//	devtoken -user alice -name Alice
//
// The signing secret comes from JWT_SECRET (or a .env file) unless -secret is given.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/settleup/internal/auth"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()

	userID := flag.String("user", "", "user ID placed in the sub claim (required)")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.NewJWTManager(*secret, *ttl).Generate(&models.User{ID: *userID, Name: *name, Email: *email})
	if err != nil {
		slog.Error("Failed to mint token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

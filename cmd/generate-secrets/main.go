package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rideshare/seat-booking-backend/internal/utils"
	"github.com/rideshare/seat-booking-backend/pkg/jwt"
)

func main() {
	var (
		tokenFor string
		roles    string
		email    string
		expiry   time.Duration
	)
	flag.StringVar(&tokenFor, "token-for", "", "sign a development access token for this user id (\"new\" for a random one)")
	flag.StringVar(&roles, "roles", jwt.RoleTraveler, "comma separated roles for -token-for")
	flag.StringVar(&email, "email", "", "email claim for -token-for")
	flag.DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime for -token-for")
	flag.Parse()

	if tokenFor != "" {
		signToken(tokenFor, roles, email, expiry)
		return
	}

	secrets, err := utils.GenerateSecrets("JWT_SECRET", "RAZORPAY_WEBHOOK_SECRET")
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file or secret store:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", secrets["JWT_SECRET"])
	fmt.Printf("RAZORPAY_WEBHOOK_SECRET=%s\n", secrets["RAZORPAY_WEBHOOK_SECRET"])
	fmt.Println()
	fmt.Println("Use the same webhook secret in the payment gateway dashboard.")
	fmt.Println("Keep these secrets out of version control.")
}

// signToken prints an access token signed with JWT_SECRET, for local testing
func signToken(userID, roles, email string, expiry time.Duration) {
	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	id := uuid.New()
	if userID != "new" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			log.Fatalf("Invalid user id: %v", err)
		}
		id = parsed
	}

	token, err := jwt.NewService(secret, expiry).GenerateAccessToken(jwt.Identity{
		UserID: id,
		Email:  email,
		Roles:  strings.Split(roles, ","),
	})
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("USER_ID=%s\n", id)
	fmt.Printf("TOKEN=%s\n", token)
}

// CLI tool to create a user with a bcrypt-hashed password, the profile
// attributes the engine derives its baseline TDEE prior from, and a first
// weigh-in. The estimator state itself is seeded lazily by the engine on the
// first recalculation.
// Usage: go run ./cmd/create-user (from the repo root)
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// activityLevels are the values the engine's multiplier table accepts.
var activityLevels = map[string]bool{
	"sedentary":   true,
	"light":       true,
	"moderate":    true,
	"active":      true,
	"very_active": true,
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, os.Getenv("DB_URL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	reader := bufio.NewReader(os.Stdin)

	username := prompt(reader, "Username: ")
	email := prompt(reader, "Email: ")
	password := prompt(reader, "Password: ")

	sex := prompt(reader, "Sex (male/female): ")
	age := promptInt(reader, "Age (years): ")
	heightCM := promptFloat(reader, "Height (cm): ")
	weightKG := promptFloat(reader, "Weight (kg): ")
	activity := prompt(reader, "Activity level (sedentary/light/moderate/active/very_active): ")

	if !activityLevels[activity] {
		fmt.Fprintf(os.Stderr, "Unknown activity level %q\n", activity)
		os.Exit(1)
	}
	if weightKG <= 0 {
		fmt.Fprintln(os.Stderr, "Weight must be > 0")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing password: %v\n", err)
		os.Exit(1)
	}

	userID := uuid.New()
	authToken := uuid.New().String()

	_, err = conn.Exec(ctx,
		`INSERT INTO users (id, username, email, password, auth_token,
			sex, age_years, height_cm, activity_level)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		userID, username, email, string(hash), authToken,
		sex, age, heightCM, activity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating user: %v\n", err)
		os.Exit(1)
	}

	// First weigh-in, so the engine has a weight to anchor the baseline prior
	// on when it seeds the estimator state.
	_, err = conn.Exec(ctx,
		`INSERT INTO progress_log (user_id, date, weight_kg)
		 VALUES ($1, $2, $3)`,
		userID, time.Now().UTC().Format("2006-01-02"), weightKG)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error recording first weigh-in: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("User %s created (id %s)\n", username, userID)
	fmt.Printf("Auth token: %s\n", authToken)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	value, _ := reader.ReadString('\n')
	return strings.TrimSpace(value)
}

func promptInt(reader *bufio.Reader, label string) int {
	v, err := strconv.Atoi(prompt(reader, label))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Expected an integer: %v\n", err)
		os.Exit(1)
	}
	return v
}

func promptFloat(reader *bufio.Reader, label string) float64 {
	v, err := strconv.ParseFloat(prompt(reader, label), 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Expected a number: %v\n", err)
		os.Exit(1)
	}
	return v
}

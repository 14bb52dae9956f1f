// cmd/devtoken/main.go prints a signed operator token for local testing.
// Tokens are normally issued by the identity service.
// Usage: go run ./cmd/devtoken -role cashier -branch <uuid>
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/config"
	"github.com/manodhiambo/carwash-pos-sub000/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func main() {
	role := flag.String("role", middleware.RoleCashier, "attendant | cashier | supervisor | manager")
	branch := flag.String("branch", "", "branch UUID")
	user := flag.String("user", uuid.NewString(), "operator UUID")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil || cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}
	if _, err := uuid.Parse(*branch); err != nil {
		fmt.Fprintln(os.Stderr, "-branch must be a UUID")
		os.Exit(1)
	}

	claims := middleware.JWTClaims{
		UserID:   *user,
		BranchID: *branch,
		Role:     *role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(*ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(tok)
}

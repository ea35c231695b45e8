// Command token-init mints a session token for an owner using the
// configured JWT secret, for local use and scripting against the API.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"budgetbuddy/internal/cli"
	"budgetbuddy/internal/log"
	"budgetbuddy/internal/session"
)

func main() {
	owner := flag.String("owner", "", "owner id to embed in the token (required)")
	flag.Parse()

	if strings.TrimSpace(*owner) == "" {
		fmt.Fprintln(os.Stderr, "usage: token-init -owner <id>")
		os.Exit(2)
	}

	cfg, logger := cli.Bootstrap(log.ComponentAuth)
	token, err := session.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL).Generate(*owner)
	if err != nil {
		logger.Error("Failed to generate token", log.FieldError, err.Error())
		os.Exit(1)
	}

	// stdout carries only the token so it can be captured by scripts.
	fmt.Println(token)
}

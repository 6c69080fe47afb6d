// Command tally-token prints a bearer token for a user id, signed with
// JWT_SECRET. It is meant for local development and scripted tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"tally/internal/cli"
	"tally/internal/config"
	"tally/internal/identity"
)

func main() {
	user := flag.String("user", "", "user id to put in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := config.Load()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: tally-token -user <id> [-ttl 24h]")
		os.Exit(2)
	}
	if len(cfg.JWTSecret) < 16 {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set to at least 16 characters")
		os.Exit(1)
	}

	token, err := identity.NewVerifier(cfg.JWTSecret).Issue(*user, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

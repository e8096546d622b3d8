// Command token mints a bearer token for the API using the configured secret.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/splitledger/internal/auth"
	"github.com/MrJamesThe3rd/splitledger/internal/config"
)

func main() {
	_ = godotenv.Load()

	user := flag.String("user", "", "user id to put in the token")
	role := flag.String("role", string(auth.RoleMember), "member or admin")
	flag.Parse()

	if err := run(*user, auth.Role(*role)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(user string, role auth.Role) error {
	if user == "" {
		return errors.New("-user is required")
	}

	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Generate(user, role)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Println(token)

	return nil
}

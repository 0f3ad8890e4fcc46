// Command tokengen generates development credentials for the gateway:
// bearer tokens for the identity path and bcrypt-hashed service
// credentials for the admission bypass. Dev keys only; nothing it prints
// is valid against a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"edgegate/pkg/secrets"
)

// Matches config.go when JWT_SIGNING_KEY is not set.
const devSigningKey = "dev-secret-key-change-in-production"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "token":
		tokenCmd(os.Args[2:])
	case "credential":
		credentialCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  tokengen token [-user-id ID] [-email EMAIL] [-ttl DURATION] [-key KEY]
      print a signed bearer token for the identity path
  tokengen credential [-secret VALUE]
      print a service credential and its bcrypt hash`)
}

func tokenCmd(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	userID := fs.String("user-id", "", "subject claim (generated if empty)")
	email := fs.String("email", "dev@example.com", "email claim")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	key := fs.String("key", devSigningKey, "HMAC signing key")
	_ = fs.Parse(args)

	if *userID == "" {
		*userID = uuid.NewString()
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   *userID,
		"email": *email,
		"iat":   now.Unix(),
		"exp":   now.Add(*ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(*key))
	if err != nil {
		fatal(err)
	}

	printJSON(map[string]any{
		"token":     signed,
		"userId":    *userID,
		"expiresIn": ttl.String(),
		"usage":     fmt.Sprintf("curl -H 'Authorization: Bearer %s' ...", signed),
	})
}

func credentialCmd(args []string) {
	fs := flag.NewFlagSet("credential", flag.ExitOnError)
	secret := fs.String("secret", "", "credential value (generated if empty)")
	_ = fs.Parse(args)

	if *secret == "" {
		generated, err := secrets.Generate()
		if err != nil {
			fatal(err)
		}
		*secret = generated
	}

	hash, err := secrets.Hash(*secret)
	if err != nil {
		fatal(err)
	}

	printJSON(map[string]any{
		"credential": *secret,
		"hash":       hash,
		"usage":      "export SERVICE_CREDENTIAL_HASH='" + hash + "'",
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

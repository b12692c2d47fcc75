// Command admintoken prints an admin token and the bcrypt hash to configure
// as ADMIN_API_TOKEN_HASH. An existing ADMIN_API_TOKEN is hashed instead of
// generating a new one.
package main

import (
	"fmt"
	"os"

	"regwatch/internal/platform/logger"
	"regwatch/pkg/platform/secrets"
)

func main() {
	log := logger.New("info")

	token := os.Getenv("ADMIN_API_TOKEN")
	if token == "" {
		generated, err := secrets.Generate()
		if err != nil {
			log.Error("generate admin token", "error", err)
			os.Exit(1)
		}
		token = generated
	}

	hash, err := secrets.Hash(token)
	if err != nil {
		log.Error("hash admin token", "error", err)
		os.Exit(1)
	}

	fmt.Printf("ADMIN_API_TOKEN=%s\nADMIN_API_TOKEN_HASH=%s\n", token, hash)
}

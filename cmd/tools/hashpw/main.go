// Hashpw prints the argon2id hash for a password, for use as
// ADMIN_PASSWORD_HASH.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/noah-isme/promo-api/internal/app"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}
	hash, err := app.HashPassword(os.Args[1])
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}

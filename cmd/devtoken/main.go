// Command devtoken prints a bearer token for calling a local server.
//
//	go run ./cmd/devtoken -user 42 -role ADMIN
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/seatlock-engine/internal/config"
	"github.com/iliyamo/seatlock-engine/internal/middleware"
)

func main() {
	user := flag.Uint64("user", 1, "subject (user id)")
	role := flag.String("role", "CUSTOMER", "CUSTOMER or ADMIN")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	tok, exp, err := middleware.SignToken(cfg.JWT.Secret, *user, strings.ToUpper(*role), *ttl)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(tok)
	log.Printf("expires %s", exp.Format(time.RFC3339))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/timebankhq/timebank/internal/db"
)

// Grants (or removes, with a negative amount) hours on a member's balance.
// Adjustments are recorded in the ledger against the member's own account
// so the audit trail stays complete.
func main() {
	username := flag.String("username", "", "Username of the member to adjust")
	amount := flag.Float64("amount", 0, "Hours to grant (negative to remove)")
	flag.Parse()

	if *username == "" || *amount == 0 {
		log.Fatalf("usage: go run cmd/adminutil/grant_hours/main.go -username alice -amount 2.5")
	}

	db.Init()

	ctx := context.Background()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		log.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	if err := tx.QueryRow(ctx,
		`SELECT id::text FROM users WHERE username = $1`, *username).Scan(&userID); err != nil {
		log.Fatalf("no user found with username: %s", *username)
	}

	ct, err := tx.Exec(ctx,
		`UPDATE profiles SET balance = balance + $1 WHERE user_id = $2`, *amount, userID)
	if err != nil {
		log.Fatalf("failed to adjust balance: %v", err)
	}
	if ct.RowsAffected() == 0 {
		log.Fatalf("no profile found for user: %s", *username)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, listing_id, listing_kind, from_user_id, to_user_id, amount, created_at)
		 VALUES ($1, $2, 'offer', $3, $3, $4, $5)`,
		uuid.New().String(), uuid.Nil.String(), userID, *amount, time.Now())
	if err != nil {
		log.Fatalf("failed to record ledger entry: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("failed to commit: %v", err)
	}

	fmt.Printf("Adjusted %s by %.2f hours.\n", *username, *amount)
}

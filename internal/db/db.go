package db

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

var Conn *pgxpool.Pool

// Init connects to Postgres and ensures the schema.
func Init() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s",
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASSWORD"),
			os.Getenv("DB_HOST"),
			os.Getenv("DB_PORT"),
			os.Getenv("DB_NAME"),
		)
	}

	var err error
	Conn, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}

	if err = Conn.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v\n", err)
	}

	log.Println("Connected to Postgres successfully")

	ensureSchema()
}

// ensureSchema creates all tables if missing. Statements are idempotent so a
// restart against an existing database is a no-op.
func ensureSchema() {
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			bio TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS listings (
			id UUID NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('offer', 'request')),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			duration DOUBLE PRECISION NOT NULL,
			capacity INTEGER NOT NULL DEFAULT 1 CHECK (capacity >= 1),
			is_visible BOOLEAN NOT NULL DEFAULT TRUE,
			is_online BOOLEAN NOT NULL DEFAULT FALSE,
			address TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION NULL,
			lng DOUBLE PRECISION NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_kind_created ON listings(kind, created_at)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id UUID PRIMARY KEY,
			listing_id UUID NOT NULL,
			listing_kind TEXT NOT NULL,
			sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			receiver_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			message TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN (
				'pending', 'accepted', 'declined', 'date_proposed',
				'negotiating', 'scheduled', 'completed', 'cancelled'
			)),
			appointment_date TIMESTAMPTZ NULL,
			date_proposed_by TEXT NOT NULL DEFAULT '',
			date_rejected_by TEXT NOT NULL DEFAULT '',
			completed_by_provider BOOLEAN NOT NULL DEFAULT FALSE,
			confirmed_by_receiver BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_by_sender BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_by_receiver BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			FOREIGN KEY (listing_id, listing_kind) REFERENCES listings(id, kind) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_listing ON interactions(listing_id, listing_kind)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_sender ON interactions(sender_id)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_receiver ON interactions(receiver_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			interaction_id UUID NOT NULL REFERENCES interactions(id) ON DELETE CASCADE,
			sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			settlement_id TEXT NOT NULL DEFAULT '',
			deleted_by_sender BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_by_recipient BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_interaction ON messages(interaction_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY,
			listing_id UUID NOT NULL,
			listing_kind TEXT NOT NULL,
			from_user_id UUID NOT NULL REFERENCES users(id),
			to_user_id UUID NOT NULL REFERENCES users(id),
			amount DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_from ON transactions(from_user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_to ON transactions(to_user_id)`,
		`CREATE TABLE IF NOT EXISTS group_settlements (
			id UUID PRIMARY KEY,
			offer_id UUID NOT NULL UNIQUE,
			participants TEXT[] NOT NULL DEFAULT '{}',
			confirmed TEXT[] NOT NULL DEFAULT '{}',
			settled BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS reviews (
			id UUID PRIMARY KEY,
			reviewer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			target_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			listing_id UUID NOT NULL,
			listing_kind TEXT NOT NULL,
			rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
			comment TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (reviewer_id, listing_id, listing_kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_target ON reviews(target_id)`,
		`CREATE TABLE IF NOT EXISTS blocks (
			blocker_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			blocked_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (blocker_id, blocked_id)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			interaction_id UUID NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_created ON notifications(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_unread ON notifications(user_id) WHERE NOT is_read`,
	}
	for _, stmt := range stmts {
		if _, err := Conn.Exec(ctx, stmt); err != nil {
			log.Printf("schema ensure failed: %v", err)
		}
	}
}

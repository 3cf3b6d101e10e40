package timebank

import (
	"context"
	"time"
)

// Store is the persistence boundary of the engine. Implementations:
// pgstore (Postgres) for the service, memstore for tests.
//
// Inside Atomic the passed Store operates within one transaction, and
// GetInteraction / GroupSettlementForOffer must lock the returned row until
// the transaction ends. That lock is what serializes concurrent transitions
// on one interaction and concurrent group confirmations on one card.
type Store interface {
	// Atomic runs fn against a transactional view of the store. Every write
	// fn performs is applied on nil return and discarded on error.
	Atomic(ctx context.Context, fn func(Store) error) error

	GetUser(ctx context.Context, id string) (*User, error)
	GetListing(ctx context.Context, ref ListingRef) (*Listing, error)

	// GetBalance returns the user's hour balance, creating the profile with
	// the initial grant on first access.
	GetBalance(ctx context.Context, userID string) (float64, error)
	// AdjustBalance applies a signed delta. No floor: balances may go
	// negative, matching the ledger's historical behavior.
	AdjustBalance(ctx context.Context, userID string, delta float64) error

	GetInteraction(ctx context.Context, id string) (*Interaction, error)
	ListingInteractions(ctx context.Context, ref ListingRef) ([]*Interaction, error)
	UserInteractions(ctx context.Context, userID string) ([]*Interaction, error)
	// SenderHasOpenInteraction reports whether sender already has a
	// non-declined interaction on the listing.
	SenderHasOpenInteraction(ctx context.Context, senderID string, ref ListingRef) (bool, error)
	CreateInteraction(ctx context.Context, i *Interaction) error
	UpdateInteraction(ctx context.Context, i *Interaction) error

	GetMessage(ctx context.Context, id string) (*ChatMessage, error)
	CreateMessage(ctx context.Context, m *ChatMessage) error
	UpdateMessage(ctx context.Context, m *ChatMessage) error
	// Messages returns all messages of the given interactions in creation
	// order, soft-deleted ones included; visibility is the engine's job.
	Messages(ctx context.Context, interactionIDs []string) ([]*ChatMessage, error)

	CreateTransaction(ctx context.Context, t *TimeTransaction) error

	GroupSettlementForOffer(ctx context.Context, offerID string) (*GroupSettlement, error)
	CreateGroupSettlement(ctx context.Context, g *GroupSettlement) error
	UpdateGroupSettlement(ctx context.Context, g *GroupSettlement) error

	CreateNotification(ctx context.Context, n *Notification) error

	// Blocked reports whether a blocking relationship exists between the two
	// users in either direction.
	Blocked(ctx context.Context, userA, userB string) (bool, error)
}

// NotificationSink receives notifications after their transaction committed,
// for best-effort delivery channels (email queue, websocket broadcast).
// In-app persistence already happened inside the transaction.
type NotificationSink interface {
	Dispatch(ctx context.Context, notifications []*Notification)
}

// Clock returns the current time; replaceable in tests.
type Clock func() time.Time

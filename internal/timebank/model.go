// Package timebank holds the interaction lifecycle and settlement engine.
// It has no HTTP or SQL in it; everything goes through the Store interface.
package timebank

import "time"

// Status is the lifecycle state of an interaction.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAccepted     Status = "accepted"
	StatusDeclined     Status = "declined"
	StatusDateProposed Status = "date_proposed"
	StatusNegotiating  Status = "negotiating"
	StatusScheduled    Status = "scheduled"
	StatusCompleted    Status = "completed"

	// StatusCancelled is a valid terminal state reachable by no transition
	// today; storage accepts it so a future cancel action needs no migration.
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusDeclined || s == StatusCompleted || s == StatusCancelled
}

// ListingKind distinguishes the two sides of the marketplace.
type ListingKind string

const (
	KindOffer   ListingKind = "offer"
	KindRequest ListingKind = "request"
)

// ListingRef identifies exactly one offer or one request. An interaction
// carries a ListingRef instead of two nullable foreign keys so the
// both-set/both-null states cannot be represented.
type ListingRef struct {
	Kind ListingKind `json:"kind"`
	ID   string      `json:"id"`
}

// User is the slice of account data the engine needs.
type User struct {
	ID        string
	Username  string
	Email     string
	Suspended bool
}

// Listing is an offer or a request denominated in hours.
type Listing struct {
	ID          string
	Kind        ListingKind
	OwnerID     string
	Title       string
	Description string
	Category    string
	Duration    float64 // hours exchanged on settlement
	Capacity    int     // offers only; >1 enables group mode
	Visible     bool
	Online      bool
	Address     string
	Lat         *float64
	Lng         *float64
	CreatedAt   time.Time
}

// Ref returns the listing's reference.
func (l *Listing) Ref() ListingRef {
	return ListingRef{Kind: l.Kind, ID: l.ID}
}

// Group reports whether the listing is a group offer.
func (l *Listing) Group() bool {
	return l.Kind == KindOffer && l.Capacity > 1
}

// Interaction is the engagement record between two users over one listing.
// Sender is the user who first contacted the listing; receiver is its owner.
type Interaction struct {
	ID                  string
	Listing             ListingRef
	SenderID            string
	ReceiverID          string
	Message             string
	Status              Status
	AppointmentDate     *time.Time
	DateProposedBy      string // user id, empty when no proposal is open
	DateRejectedBy      string
	CompletedByProvider bool
	ConfirmedByReceiver bool
	DeletedBySender     bool
	DeletedByReceiver   bool
	CreatedAt           time.Time
}

// IsParty reports whether userID is the sender or the receiver.
func (i *Interaction) IsParty(userID string) bool {
	return userID == i.SenderID || userID == i.ReceiverID
}

// Other returns the counterpart of userID in this interaction.
func (i *Interaction) Other(userID string) string {
	if userID == i.SenderID {
		return i.ReceiverID
	}
	return i.SenderID
}

// ProviderID is the party who earns hours: the receiver when the listing is
// an offer (they provide the service), the sender when it is a request.
func (i *Interaction) ProviderID() string {
	if i.Listing.Kind == KindOffer {
		return i.ReceiverID
	}
	return i.SenderID
}

// ConsumerID is the party who spends hours.
func (i *Interaction) ConsumerID() string {
	if i.Listing.Kind == KindOffer {
		return i.SenderID
	}
	return i.ReceiverID
}

// DeletedFor reports the conversation soft-delete flag for one side.
func (i *Interaction) DeletedFor(userID string) bool {
	if userID == i.SenderID {
		return i.DeletedBySender
	}
	if userID == i.ReceiverID {
		return i.DeletedByReceiver
	}
	return false
}

// Engaged reports whether the interaction occupies the listing: accepted or
// any of the scheduling sub-states. Pending and terminal states do not count.
func (i *Interaction) Engaged() bool {
	switch i.Status {
	case StatusAccepted, StatusDateProposed, StatusNegotiating, StatusScheduled:
		return true
	}
	return false
}

// ChatMessage is one entry in an interaction's append-only log. A message
// with a SettlementID is a completion card; its rendered payload comes from
// the referenced GroupSettlement, not from Content.
type ChatMessage struct {
	ID                 string
	InteractionID      string
	SenderID           string
	Content            string
	SettlementID       string
	DeletedBySender    bool
	DeletedByRecipient bool
	CreatedAt          time.Time
}

// TimeTransaction is an immutable ledger entry, one per settled participant.
type TimeTransaction struct {
	ID         string
	Listing    ListingRef
	FromUserID string // consumer debited
	ToUserID   string // provider credited
	Amount     float64
	CreatedAt  time.Time
}

// GroupSettlement tracks partial confirmation of a group offer completion.
// Participants and Confirmed hold consumer user ids.
type GroupSettlement struct {
	ID           string
	OfferID      string
	Participants []string
	Confirmed    []string
	Settled      bool
	CreatedAt    time.Time
}

// HasParticipant reports whether userID is on the settlement.
func (g *GroupSettlement) HasParticipant(userID string) bool {
	for _, u := range g.Participants {
		if u == userID {
			return true
		}
	}
	return false
}

// ConfirmedBy reports whether userID already confirmed.
func (g *GroupSettlement) ConfirmedBy(userID string) bool {
	for _, u := range g.Confirmed {
		if u == userID {
			return true
		}
	}
	return false
}

// NotificationType enumerates the events the fan-out produces.
type NotificationType string

const (
	NotifyMessage             NotificationType = "message"
	NotifyDateProposed        NotificationType = "date_proposed"
	NotifyDateRejected        NotificationType = "date_rejected"
	NotifyDateAccepted        NotificationType = "date_accepted"
	NotifyCompleted           NotificationType = "completed"
	NotifyInteractionCreated  NotificationType = "interaction_created"
	NotifyInteractionAccepted NotificationType = "interaction_accepted"
	NotifyInteractionDeclined NotificationType = "interaction_declined"
)

// Notification is an in-app event addressed to one user.
type Notification struct {
	ID            string
	UserID        string
	Type          NotificationType
	Message       string
	InteractionID string
	Read          bool
	CreatedAt     time.Time
}

// InitialBalance is the hour grant every new profile starts with.
const InitialBalance = 3.0

package timebank

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Engine implements the interaction lifecycle. Every action runs inside one
// store transaction: the state change, its ledger effects and its in-app
// notifications commit or roll back together.
type Engine struct {
	store Store
	now   Clock
	newID func() string
	sink  NotificationSink
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the time source.
func WithClock(c Clock) Option { return func(e *Engine) { e.now = c } }

// WithIDFunc replaces the id generator.
func WithIDFunc(f func() string) Option { return func(e *Engine) { e.newID = f } }

// WithSink attaches a post-commit notification sink.
func WithSink(s NotificationSink) Option { return func(e *Engine) { e.sink = s } }

// NewEngine builds an Engine over the given store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) dispatch(ctx context.Context, pending []*Notification) {
	if e.sink != nil && len(pending) > 0 {
		e.sink.Dispatch(ctx, pending)
	}
}

// push persists a notification inside the current transaction and records it
// for post-commit delivery. A transition without its notification is a bug,
// so persistence failures abort the whole action.
func (e *Engine) push(ctx context.Context, s Store, pending *[]*Notification, userID string, typ NotificationType, msg, interactionID string) error {
	n := &Notification{
		ID:            e.newID(),
		UserID:        userID,
		Type:          typ,
		Message:       msg,
		InteractionID: interactionID,
		CreatedAt:     e.now(),
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	*pending = append(*pending, n)
	return nil
}

func (e *Engine) username(ctx context.Context, s Store, userID string) string {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return userID
	}
	return u.Username
}

// Create opens a new interaction from actor on the referenced listing.
func (e *Engine) Create(ctx context.Context, actorID string, ref ListingRef, message string) (*Interaction, error) {
	var out *Interaction
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		l, err := s.GetListing(ctx, ref)
		if err != nil {
			return err
		}
		if l.OwnerID == actorID {
			return fmt.Errorf("cannot engage your own listing: %w", ErrValidation)
		}
		if blocked, err := s.Blocked(ctx, actorID, l.OwnerID); err != nil {
			return err
		} else if blocked {
			// A blocked viewer never sees the listing, so it does not exist
			// for them.
			return fmt.Errorf("listing %s: %w", ref.ID, ErrNotFound)
		}
		existing, err := s.ListingInteractions(ctx, ref)
		if err != nil {
			return err
		}
		if !Available(l, existing) {
			return fmt.Errorf("listing no longer available: %w", ErrConflict)
		}
		if err := e.ensureGroupOpen(ctx, s, ref); err != nil {
			return err
		}
		open, err := s.SenderHasOpenInteraction(ctx, actorID, ref)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("you already contacted this listing: %w", ErrConflict)
		}
		if ref.Kind == KindOffer {
			bal, err := s.GetBalance(ctx, actorID)
			if err != nil {
				return err
			}
			if bal < l.Duration {
				return fmt.Errorf("insufficient balance: %w", ErrValidation)
			}
		}
		out = &Interaction{
			ID:         e.newID(),
			Listing:    ref,
			SenderID:   actorID,
			ReceiverID: l.OwnerID,
			Message:    message,
			Status:     StatusPending,
			CreatedAt:  e.now(),
		}
		if err := s.CreateInteraction(ctx, out); err != nil {
			return err
		}
		msg := fmt.Sprintf("%s is interested in %q", e.username(ctx, s, actorID), l.Title)
		return e.push(ctx, s, &pending, l.OwnerID, NotifyInteractionCreated, msg, out.ID)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

// Accept moves a pending interaction to accepted. Receiver only.
func (e *Engine) Accept(ctx context.Context, actorID, interactionID string) (*Interaction, error) {
	return e.answer(ctx, actorID, interactionID, true)
}

// Decline moves a pending interaction to declined. Receiver only.
func (e *Engine) Decline(ctx context.Context, actorID, interactionID string) (*Interaction, error) {
	return e.answer(ctx, actorID, interactionID, false)
}

func (e *Engine) answer(ctx context.Context, actorID, interactionID string, accept bool) (*Interaction, error) {
	var out *Interaction
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := e.load(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		if actorID != i.ReceiverID {
			return fmt.Errorf("only the receiver can answer: %w", ErrUnauthorized)
		}
		if i.Status != StatusPending {
			return fmt.Errorf("interaction is %s, not pending: %w", i.Status, ErrInvalidState)
		}
		if accept {
			if err := e.ensureGroupOpen(ctx, s, i.Listing); err != nil {
				return err
			}
			i.Status = StatusAccepted
		} else {
			i.Status = StatusDeclined
		}
		if err := s.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		out = i
		if !accept {
			return e.push(ctx, s, &pending, i.SenderID, NotifyInteractionDeclined, "Your request was declined", i.ID)
		}
		if err := e.push(ctx, s, &pending, i.SenderID, NotifyInteractionAccepted, "Your request was accepted", i.ID); err != nil {
			return err
		}
		return e.notifyGroupJoin(ctx, s, &pending, i)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

// notifyGroupJoin tells other accepted members of a group offer that a new
// participant joined.
func (e *Engine) notifyGroupJoin(ctx context.Context, s Store, pending *[]*Notification, joined *Interaction) error {
	l, err := s.GetListing(ctx, joined.Listing)
	if err != nil {
		return err
	}
	if !l.Group() {
		return nil
	}
	siblings, err := s.ListingInteractions(ctx, joined.Listing)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("%s joined %q", e.username(ctx, s, joined.SenderID), l.Title)
	for _, sib := range siblings {
		if sib.ID == joined.ID || !sib.Engaged() {
			continue
		}
		if err := e.push(ctx, s, pending, sib.SenderID, NotifyInteractionAccepted, msg, sib.ID); err != nil {
			return err
		}
	}
	return nil
}

// Schedule proposes an appointment date. Either party, from accepted or
// negotiating.
func (e *Engine) Schedule(ctx context.Context, actorID, interactionID string, date time.Time) (*Interaction, error) {
	var out *Interaction
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := e.load(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		if i.Status != StatusAccepted && i.Status != StatusNegotiating {
			return fmt.Errorf("cannot propose a date while %s: %w", i.Status, ErrInvalidState)
		}
		i.AppointmentDate = &date
		i.DateProposedBy = actorID
		i.DateRejectedBy = ""
		i.Status = StatusDateProposed
		if err := s.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		out = i
		msg := fmt.Sprintf("%s proposed %s", e.username(ctx, s, actorID), date.Format("Jan 2 15:04"))
		return e.push(ctx, s, &pending, i.Other(actorID), NotifyDateProposed, msg, i.ID)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

// RejectDate rejects the open date proposal and reopens negotiation. Only
// the party who did not propose may reject.
func (e *Engine) RejectDate(ctx context.Context, actorID, interactionID string) (*Interaction, error) {
	var out *Interaction
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := e.loadProposal(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		proposer := i.DateProposedBy
		i.AppointmentDate = nil
		i.DateProposedBy = ""
		i.DateRejectedBy = actorID
		i.Status = StatusNegotiating
		if err := s.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		out = i
		msg := fmt.Sprintf("%s rejected the proposed date", e.username(ctx, s, actorID))
		return e.push(ctx, s, &pending, proposer, NotifyDateRejected, msg, i.ID)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

// AcceptDate accepts the open date proposal. Only the party who did not
// propose may accept.
func (e *Engine) AcceptDate(ctx context.Context, actorID, interactionID string) (*Interaction, error) {
	var out *Interaction
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := e.loadProposal(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		proposer := i.DateProposedBy
		i.Status = StatusScheduled
		if err := s.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		out = i
		msg := fmt.Sprintf("%s accepted the proposed date", e.username(ctx, s, actorID))
		return e.push(ctx, s, &pending, proposer, NotifyDateAccepted, msg, i.ID)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

// loadProposal loads an interaction that must hold an open date proposal not
// made by actor.
func (e *Engine) loadProposal(ctx context.Context, s Store, actorID, interactionID string) (*Interaction, error) {
	i, err := e.load(ctx, s, actorID, interactionID)
	if err != nil {
		return nil, err
	}
	if i.Status != StatusDateProposed {
		return nil, fmt.Errorf("no open date proposal: %w", ErrInvalidState)
	}
	if i.DateProposedBy == actorID {
		return nil, fmt.Errorf("wait for the other party to answer your proposal: %w", ErrInvalidState)
	}
	return i, nil
}

// DeleteConversation sets the actor's own conversation soft-delete flag.
// The other side's view is unaffected.
func (e *Engine) DeleteConversation(ctx context.Context, actorID, interactionID string) error {
	return e.store.Atomic(ctx, func(s Store) error {
		i, err := e.load(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		switch actorID {
		case i.SenderID:
			i.DeletedBySender = true
		case i.ReceiverID:
			i.DeletedByReceiver = true
		}
		return s.UpdateInteraction(ctx, i)
	})
}

// Get returns an interaction to one of its parties or group co-members.
func (e *Engine) Get(ctx context.Context, actorID, interactionID string) (*Interaction, error) {
	i, err := e.store.GetInteraction(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	if !i.IsParty(actorID) {
		if ok, err := e.groupMember(ctx, e.store, actorID, i); err != nil || !ok {
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("not a party to this interaction: %w", ErrUnauthorized)
		}
	}
	return i, nil
}

// Inbox lists the actor's interactions, newest first, excluding the ones the
// actor soft-deleted.
func (e *Engine) Inbox(ctx context.Context, actorID string) ([]*Interaction, error) {
	all, err := e.store.UserInteractions(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := make([]*Interaction, 0, len(all))
	for _, i := range all {
		if !i.DeletedFor(actorID) {
			out = append(out, i)
		}
	}
	return out, nil
}

// load fetches a locked interaction and checks the actor is a party.
func (e *Engine) load(ctx context.Context, s Store, actorID, interactionID string) (*Interaction, error) {
	i, err := s.GetInteraction(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	if !i.IsParty(actorID) {
		return nil, fmt.Errorf("not a party to this interaction: %w", ErrUnauthorized)
	}
	return i, nil
}

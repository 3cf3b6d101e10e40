package timebank

import (
	"context"
	"errors"
	"fmt"
)

// ConfirmState reports where a confirmation left the engagement.
type ConfirmState string

const (
	// ConfirmCompleted means settlement fired and the interaction is done.
	ConfirmCompleted ConfirmState = "completed"
	// ConfirmWaitingOthers means this member's confirmation is recorded but
	// the group is still waiting on the rest.
	ConfirmWaitingOthers ConfirmState = "waiting_others"
)

// ConfirmResult is the outcome of a Confirm call.
type ConfirmResult struct {
	Interaction *Interaction
	State       ConfirmState
	// Settlement is the group card after this confirmation, nil for 1:1.
	Settlement *GroupSettlement
}

// Complete marks the engagement as done on the provider side. For a group
// offer this creates (or finds) the shared settlement card, flags every
// member interaction and posts a completion card into each member's chat.
// For 1:1 it flags the single interaction and posts a notice message.
func (e *Engine) Complete(ctx context.Context, actorID, interactionID string) (*Interaction, error) {
	var out *Interaction
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := e.load(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		if actorID != i.ProviderID() {
			return fmt.Errorf("only the provider can mark completion: %w", ErrUnauthorized)
		}
		// Completing without a scheduled date is allowed; the parties may
		// have met without going through the scheduling loop.
		if i.Status != StatusScheduled && i.Status != StatusAccepted {
			return fmt.Errorf("cannot complete while %s: %w", i.Status, ErrInvalidState)
		}
		l, err := s.GetListing(ctx, i.Listing)
		if err != nil {
			return err
		}
		members, err := e.groupMembers(ctx, s, l)
		if err != nil {
			return err
		}
		if l.Group() && len(members) > 1 {
			out, err = e.completeGroup(ctx, s, &pending, l, i, members)
			return err
		}
		i.CompletedByProvider = true
		if err := s.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		notice := &ChatMessage{
			ID:            e.newID(),
			InteractionID: i.ID,
			SenderID:      actorID,
			Content:       fmt.Sprintf("%s marked the service as completed. Please confirm to transfer %.1f hours.", e.username(ctx, s, actorID), l.Duration),
			CreatedAt:     e.now(),
		}
		if err := s.CreateMessage(ctx, notice); err != nil {
			return err
		}
		out = i
		return e.push(ctx, s, &pending, i.ConsumerID(), NotifyCompleted,
			fmt.Sprintf("%q was marked completed, please confirm", l.Title), i.ID)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

func (e *Engine) completeGroup(ctx context.Context, s Store, pending *[]*Notification, l *Listing, acted *Interaction, members []*Interaction) (*Interaction, error) {
	card, err := s.GroupSettlementForOffer(ctx, l.ID)
	if errors.Is(err, ErrNotFound) {
		card = &GroupSettlement{
			ID:        e.newID(),
			OfferID:   l.ID,
			Confirmed: []string{},
			CreatedAt: e.now(),
		}
		for _, m := range members {
			card.Participants = append(card.Participants, m.SenderID)
		}
		if err := s.CreateGroupSettlement(ctx, card); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	var out *Interaction
	for _, m := range members {
		m.CompletedByProvider = true
		if err := s.UpdateInteraction(ctx, m); err != nil {
			return nil, err
		}
		if m.ID == acted.ID {
			out = m
		}
		// Each member's conversation gets its own copy of the card; the
		// card's live state is read from the settlement record, so later
		// confirmations need no message edits.
		msg := &ChatMessage{
			ID:            e.newID(),
			InteractionID: m.ID,
			SenderID:      l.OwnerID,
			Content:       fmt.Sprintf("%q session completed. Confirm to transfer %.1f hours.", l.Title, l.Duration),
			SettlementID:  card.ID,
			CreatedAt:     e.now(),
		}
		if err := s.CreateMessage(ctx, msg); err != nil {
			return nil, err
		}
		if err := e.push(ctx, s, pending, m.SenderID, NotifyCompleted,
			fmt.Sprintf("%q was marked completed, please confirm", l.Title), m.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Confirm records the consumer's confirmation and settles when everyone has
// confirmed. Re-confirming is idempotent: it reports the current state with
// no ledger effect.
func (e *Engine) Confirm(ctx context.Context, actorID, interactionID string) (*ConfirmResult, error) {
	var out *ConfirmResult
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := e.load(ctx, s, actorID, interactionID)
		if err != nil {
			return err
		}
		if actorID != i.ConsumerID() {
			return fmt.Errorf("only the consumer can confirm: %w", ErrUnauthorized)
		}
		if !i.CompletedByProvider {
			return fmt.Errorf("provider has not marked completion yet: %w", ErrInvalidState)
		}
		l, err := s.GetListing(ctx, i.Listing)
		if err != nil {
			return err
		}
		if l.Group() {
			card, err := s.GroupSettlementForOffer(ctx, l.ID)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if card != nil {
				out, err = e.confirmGroup(ctx, s, &pending, l, i, card, actorID)
				return err
			}
			// Group offer that completed with a single member falls through
			// to the 1:1 path.
		}
		if i.Status == StatusCompleted {
			out = &ConfirmResult{Interaction: i, State: ConfirmCompleted}
			return nil
		}
		if err := e.settlePair(ctx, s, i.ConsumerID(), i.ProviderID(), i.Listing, l.Duration); err != nil {
			return err
		}
		i.ConfirmedByReceiver = true
		i.Status = StatusCompleted
		if err := s.UpdateInteraction(ctx, i); err != nil {
			return err
		}
		out = &ConfirmResult{Interaction: i, State: ConfirmCompleted}
		return e.push(ctx, s, &pending, i.ProviderID(), NotifyCompleted,
			fmt.Sprintf("%.1f hours transferred for %q", l.Duration, l.Title), i.ID)
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

func (e *Engine) confirmGroup(ctx context.Context, s Store, pending *[]*Notification, l *Listing, i *Interaction, card *GroupSettlement, actorID string) (*ConfirmResult, error) {
	if card.Settled || card.ConfirmedBy(actorID) {
		state := ConfirmWaitingOthers
		if card.Settled {
			state = ConfirmCompleted
		}
		return &ConfirmResult{Interaction: i, State: state, Settlement: card}, nil
	}
	card.Confirmed = append(card.Confirmed, actorID)
	i.ConfirmedByReceiver = true
	if err := s.UpdateInteraction(ctx, i); err != nil {
		return nil, err
	}

	if len(card.Confirmed) < len(card.Participants) {
		if err := s.UpdateGroupSettlement(ctx, card); err != nil {
			return nil, err
		}
		if err := e.push(ctx, s, pending, l.OwnerID, NotifyCompleted,
			fmt.Sprintf("%s confirmed %q (%d/%d)", e.username(ctx, s, actorID), l.Title, len(card.Confirmed), len(card.Participants)), i.ID); err != nil {
			return nil, err
		}
		return &ConfirmResult{Interaction: i, State: ConfirmWaitingOthers, Settlement: card}, nil
	}

	// Everyone confirmed: settle. Each participant pays the offer duration;
	// the provider earns duration once per session, not per head. Policy
	// inherited from the original ledger; revisit if product wants per-head
	// payout.
	for _, participant := range card.Participants {
		if err := s.AdjustBalance(ctx, participant, -l.Duration); err != nil {
			return nil, err
		}
		tx := &TimeTransaction{
			ID:         e.newID(),
			Listing:    i.Listing,
			FromUserID: participant,
			ToUserID:   l.OwnerID,
			Amount:     l.Duration,
			CreatedAt:  e.now(),
		}
		if err := s.CreateTransaction(ctx, tx); err != nil {
			return nil, err
		}
	}
	if err := s.AdjustBalance(ctx, l.OwnerID, l.Duration); err != nil {
		return nil, err
	}
	card.Settled = true
	if err := s.UpdateGroupSettlement(ctx, card); err != nil {
		return nil, err
	}

	members, err := e.groupMembers(ctx, s, l)
	if err != nil {
		return nil, err
	}
	var result *Interaction
	for _, m := range members {
		// Settlement only covers the card's participants. An interaction
		// accepted after the provider completed never paid and must not be
		// swept into completed.
		if !card.HasParticipant(m.SenderID) {
			continue
		}
		m.Status = StatusCompleted
		m.ConfirmedByReceiver = true
		if err := s.UpdateInteraction(ctx, m); err != nil {
			return nil, err
		}
		if m.ID == i.ID {
			result = m
		}
		if err := e.push(ctx, s, pending, m.SenderID, NotifyCompleted,
			fmt.Sprintf("%q settled, %.1f hours transferred", l.Title, l.Duration), m.ID); err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = i
	}
	if err := e.push(ctx, s, pending, l.OwnerID, NotifyCompleted,
		fmt.Sprintf("%q settled, you earned %.1f hours", l.Title, l.Duration), result.ID); err != nil {
		return nil, err
	}
	return &ConfirmResult{Interaction: result, State: ConfirmCompleted, Settlement: card}, nil
}

// settlePair applies the 1:1 transfer: debit consumer, credit provider, one
// ledger row. Runs inside the caller's transaction so the pair is
// both-or-neither.
func (e *Engine) settlePair(ctx context.Context, s Store, consumerID, providerID string, ref ListingRef, duration float64) error {
	if err := s.AdjustBalance(ctx, consumerID, -duration); err != nil {
		return err
	}
	if err := s.AdjustBalance(ctx, providerID, duration); err != nil {
		return err
	}
	tx := &TimeTransaction{
		ID:         e.newID(),
		Listing:    ref,
		FromUserID: consumerID,
		ToUserID:   providerID,
		Amount:     duration,
		CreatedAt:  e.now(),
	}
	return s.CreateTransaction(ctx, tx)
}

// ensureGroupOpen rejects joining a group offer once its completion card
// exists: settlement membership is fixed the moment the provider completes,
// so a later entrant could neither pay nor be settled.
func (e *Engine) ensureGroupOpen(ctx context.Context, s Store, ref ListingRef) error {
	if ref.Kind != KindOffer {
		return nil
	}
	_, err := s.GroupSettlementForOffer(ctx, ref.ID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("session already completed, no new participants: %w", ErrConflict)
}

// groupMembers returns the interactions currently occupying a listing, in
// creation order. For a group offer these are the joined participants.
func (e *Engine) groupMembers(ctx context.Context, s Store, l *Listing) ([]*Interaction, error) {
	all, err := s.ListingInteractions(ctx, l.Ref())
	if err != nil {
		return nil, err
	}
	members := make([]*Interaction, 0, len(all))
	for _, i := range all {
		if i.Engaged() {
			members = append(members, i)
		}
	}
	return members, nil
}

// groupMember reports whether actor participates in the same active group
// offer as interaction i.
func (e *Engine) groupMember(ctx context.Context, s Store, actorID string, i *Interaction) (bool, error) {
	l, err := s.GetListing(ctx, i.Listing)
	if err != nil {
		return false, err
	}
	if !l.Group() {
		return false, nil
	}
	if actorID == l.OwnerID {
		return true, nil
	}
	members, err := e.groupMembers(ctx, s, l)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.SenderID == actorID {
			return true, nil
		}
	}
	return false, nil
}

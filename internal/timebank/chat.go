package timebank

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SendMessage appends a chat message to the actor's conversation. A group
// member may address any interaction of the group; the message lands in
// their own thread. If the receiver replies to a pending interaction it is
// accepted implicitly.
func (e *Engine) SendMessage(ctx context.Context, actorID, interactionID, content string) (*ChatMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("empty message: %w", ErrValidation)
	}
	var out *ChatMessage
	var pending []*Notification
	err := e.store.Atomic(ctx, func(s Store) error {
		i, err := s.GetInteraction(ctx, interactionID)
		if err != nil {
			return err
		}
		if !i.IsParty(actorID) {
			// Group members can talk in the shared conversation through
			// their own interaction.
			ok, err := e.groupMember(ctx, s, actorID, i)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("not a party to this interaction: %w", ErrUnauthorized)
			}
			if i, err = e.ownGroupInteraction(ctx, s, actorID, i.Listing); err != nil {
				return err
			}
		}
		if i.DeletedFor(actorID) {
			return fmt.Errorf("conversation was deleted: %w", ErrInvalidState)
		}
		out = &ChatMessage{
			ID:            e.newID(),
			InteractionID: i.ID,
			SenderID:      actorID,
			Content:       content,
			CreatedAt:     e.now(),
		}
		if err := s.CreateMessage(ctx, out); err != nil {
			return err
		}
		// Replying to a pending request is taken as acceptance.
		if i.Status == StatusPending && actorID == i.ReceiverID {
			if err := e.ensureGroupOpen(ctx, s, i.Listing); err != nil {
				return err
			}
			i.Status = StatusAccepted
			if err := s.UpdateInteraction(ctx, i); err != nil {
				return err
			}
			if err := e.push(ctx, s, &pending, i.SenderID, NotifyInteractionAccepted, "Your request was accepted", i.ID); err != nil {
				return err
			}
			if err := e.notifyGroupJoin(ctx, s, &pending, i); err != nil {
				return err
			}
		}
		preview := content
		if r := []rune(preview); len(r) > 80 {
			preview = string(r[:80])
		}
		for _, rcpt := range e.messageRecipients(ctx, s, i, actorID) {
			if err := e.push(ctx, s, &pending, rcpt, NotifyMessage, preview, i.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(ctx, pending)
	return out, nil
}

// messageRecipients lists who should be told about a new message: the other
// party, or for an active group every other member plus the provider.
func (e *Engine) messageRecipients(ctx context.Context, s Store, i *Interaction, actorID string) []string {
	l, err := s.GetListing(ctx, i.Listing)
	if err == nil && l.Group() {
		members, merr := e.groupMembers(ctx, s, l)
		if merr == nil && len(members) > 1 {
			var rcpts []string
			if l.OwnerID != actorID {
				rcpts = append(rcpts, l.OwnerID)
			}
			for _, m := range members {
				if m.SenderID != actorID {
					rcpts = append(rcpts, m.SenderID)
				}
			}
			return rcpts
		}
	}
	return []string{i.Other(actorID)}
}

// ownGroupInteraction finds the actor's engaged interaction on a listing.
func (e *Engine) ownGroupInteraction(ctx context.Context, s Store, actorID string, ref ListingRef) (*Interaction, error) {
	all, err := s.ListingInteractions(ctx, ref)
	if err != nil {
		return nil, err
	}
	for _, i := range all {
		if i.SenderID == actorID && i.Engaged() {
			return i, nil
		}
	}
	return nil, fmt.Errorf("no active interaction on this listing: %w", ErrUnauthorized)
}

// Messages returns the conversation visible to the actor, oldest first. For
// an active group offer the conversation is the union of all member threads.
func (e *Engine) Messages(ctx context.Context, actorID, interactionID string) ([]*ChatMessage, error) {
	s := e.store
	i, err := s.GetInteraction(ctx, interactionID)
	if err != nil {
		return nil, err
	}
	threads := []*Interaction{i}
	if !i.IsParty(actorID) {
		ok, err := e.groupMember(ctx, s, actorID, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("not a party to this interaction: %w", ErrUnauthorized)
		}
	}
	l, err := s.GetListing(ctx, i.Listing)
	if err != nil {
		return nil, err
	}
	if l.Group() {
		members, err := e.groupMembers(ctx, s, l)
		if err != nil {
			return nil, err
		}
		if len(members) > 1 {
			threads = members
		}
	}

	byID := make(map[string]*Interaction, len(threads))
	ids := make([]string, 0, len(threads))
	for _, t := range threads {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}
	msgs, err := s.Messages(ctx, ids)
	if err != nil {
		return nil, err
	}
	visible := make([]*ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if messageVisible(m, byID[m.InteractionID], actorID) {
			visible = append(visible, m)
		}
	}
	sort.SliceStable(visible, func(a, b int) bool {
		return visible[a].CreatedAt.Before(visible[b].CreatedAt)
	})
	return visible, nil
}

// messageVisible applies per-side message soft-delete. The flags bind the
// message's own two sides; a group co-reader who is neither side always
// sees the message.
func messageVisible(m *ChatMessage, thread *Interaction, viewerID string) bool {
	if viewerID == m.SenderID {
		return !m.DeletedBySender
	}
	if thread != nil && thread.IsParty(viewerID) {
		return !m.DeletedByRecipient
	}
	return true
}

// DeleteMessage hides a message for the actor's side only.
func (e *Engine) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	return e.store.Atomic(ctx, func(s Store) error {
		m, err := s.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		i, err := s.GetInteraction(ctx, m.InteractionID)
		if err != nil {
			return err
		}
		switch {
		case actorID == m.SenderID:
			m.DeletedBySender = true
		case i.IsParty(actorID):
			m.DeletedByRecipient = true
		default:
			return fmt.Errorf("not a party to this message: %w", ErrUnauthorized)
		}
		return s.UpdateMessage(ctx, m)
	})
}

// Package memstore is an in-memory timebank.Store used by unit tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/timebankhq/timebank/internal/timebank"
)

// FailPoint names a store write that can be forced to fail, for exercising
// transaction rollback.
type FailPoint string

const (
	FailNone              FailPoint = ""
	FailCreateTransaction FailPoint = "create_transaction"
	FailAdjustBalance     FailPoint = "adjust_balance"
)

type state struct {
	users        map[string]timebank.User
	listings     map[string]timebank.Listing // keyed kind+id
	balances     map[string]float64
	interactions map[string]timebank.Interaction
	messages     map[string]timebank.ChatMessage
	transactions map[string]timebank.TimeTransaction
	settlements  map[string]timebank.GroupSettlement // keyed by offer id
	notes        map[string]timebank.Notification
	blocks       map[string]bool // "a|b" directed
	seq          int
}

func newState() *state {
	return &state{
		users:        map[string]timebank.User{},
		listings:     map[string]timebank.Listing{},
		balances:     map[string]float64{},
		interactions: map[string]timebank.Interaction{},
		messages:     map[string]timebank.ChatMessage{},
		transactions: map[string]timebank.TimeTransaction{},
		settlements:  map[string]timebank.GroupSettlement{},
		notes:        map[string]timebank.Notification{},
		blocks:       map[string]bool{},
	}
}

func (st *state) clone() *state {
	c := newState()
	c.seq = st.seq
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.listings {
		c.listings[k] = v
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.interactions {
		if v.AppointmentDate != nil {
			d := *v.AppointmentDate
			v.AppointmentDate = &d
		}
		c.interactions[k] = v
	}
	for k, v := range st.messages {
		c.messages[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.settlements {
		v.Participants = append([]string(nil), v.Participants...)
		v.Confirmed = append([]string(nil), v.Confirmed...)
		c.settlements[k] = v
	}
	for k, v := range st.notes {
		c.notes[k] = v
	}
	for k, v := range st.blocks {
		c.blocks[k] = v
	}
	return c
}

// Store is the in-memory implementation. A single mutex serializes Atomic
// blocks, standing in for the row locks of the SQL store.
type Store struct {
	mu   sync.Mutex
	st   *state
	inTx bool

	// Fail forces the named write to error, for rollback tests.
	Fail FailPoint
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

// Atomic takes the store lock, snapshots state and restores it if fn fails.
func (m *Store) Atomic(ctx context.Context, fn func(timebank.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.st.clone()
	tx := &Store{st: m.st, inTx: true, Fail: m.Fail}
	if err := fn(tx); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// ─── seeding helpers ───

// AddUser registers a user with the default initial balance.
func (m *Store) AddUser(u timebank.User) {
	m.st.users[u.ID] = u
}

// AddListing registers a listing.
func (m *Store) AddListing(l timebank.Listing) {
	m.st.listings[listingKey(l.Ref())] = l
}

// SetBalance overrides a user's balance.
func (m *Store) SetBalance(userID string, balance float64) {
	m.st.balances[userID] = balance
}

// SetBlocked records a directed block pair.
func (m *Store) SetBlocked(blockerID, blockedID string) {
	m.st.blocks[blockerID+"|"+blockedID] = true
}

// Transactions returns all ledger rows, for assertions.
func (m *Store) Transactions() []timebank.TimeTransaction {
	out := make([]timebank.TimeTransaction, 0, len(m.st.transactions))
	for _, t := range m.st.transactions {
		out = append(out, t)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Notifications returns all stored notifications for a user.
func (m *Store) Notifications(userID string) []timebank.Notification {
	var out []timebank.Notification
	for _, n := range m.st.notes {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// ─── timebank.Store ───

func (m *Store) GetUser(ctx context.Context, id string) (*timebank.User, error) {
	u, ok := m.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, timebank.ErrNotFound)
	}
	return &u, nil
}

func (m *Store) GetListing(ctx context.Context, ref timebank.ListingRef) (*timebank.Listing, error) {
	l, ok := m.st.listings[listingKey(ref)]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", ref.ID, timebank.ErrNotFound)
	}
	return &l, nil
}

func (m *Store) GetBalance(ctx context.Context, userID string) (float64, error) {
	if _, ok := m.st.balances[userID]; !ok {
		m.st.balances[userID] = timebank.InitialBalance
	}
	return m.st.balances[userID], nil
}

func (m *Store) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	if m.Fail == FailAdjustBalance {
		return errors.New("memstore: forced adjust_balance failure")
	}
	if _, ok := m.st.balances[userID]; !ok {
		m.st.balances[userID] = timebank.InitialBalance
	}
	m.st.balances[userID] += delta
	return nil
}

func (m *Store) GetInteraction(ctx context.Context, id string) (*timebank.Interaction, error) {
	i, ok := m.st.interactions[id]
	if !ok {
		return nil, fmt.Errorf("interaction %s: %w", id, timebank.ErrNotFound)
	}
	return &i, nil
}

func (m *Store) ListingInteractions(ctx context.Context, ref timebank.ListingRef) ([]*timebank.Interaction, error) {
	var out []*timebank.Interaction
	for _, i := range m.st.interactions {
		if i.Listing == ref {
			c := i
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (m *Store) UserInteractions(ctx context.Context, userID string) ([]*timebank.Interaction, error) {
	var out []*timebank.Interaction
	for _, i := range m.st.interactions {
		if i.SenderID == userID || i.ReceiverID == userID {
			c := i
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (m *Store) SenderHasOpenInteraction(ctx context.Context, senderID string, ref timebank.ListingRef) (bool, error) {
	for _, i := range m.st.interactions {
		if i.Listing == ref && i.SenderID == senderID && i.Status != timebank.StatusDeclined {
			return true, nil
		}
	}
	return false, nil
}

func (m *Store) CreateInteraction(ctx context.Context, i *timebank.Interaction) error {
	m.st.interactions[i.ID] = *i
	return nil
}

func (m *Store) UpdateInteraction(ctx context.Context, i *timebank.Interaction) error {
	if _, ok := m.st.interactions[i.ID]; !ok {
		return fmt.Errorf("interaction %s: %w", i.ID, timebank.ErrNotFound)
	}
	m.st.interactions[i.ID] = *i
	return nil
}

func (m *Store) GetMessage(ctx context.Context, id string) (*timebank.ChatMessage, error) {
	msg, ok := m.st.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, timebank.ErrNotFound)
	}
	return &msg, nil
}

func (m *Store) CreateMessage(ctx context.Context, msg *timebank.ChatMessage) error {
	m.st.messages[msg.ID] = *msg
	return nil
}

func (m *Store) UpdateMessage(ctx context.Context, msg *timebank.ChatMessage) error {
	if _, ok := m.st.messages[msg.ID]; !ok {
		return fmt.Errorf("message %s: %w", msg.ID, timebank.ErrNotFound)
	}
	m.st.messages[msg.ID] = *msg
	return nil
}

func (m *Store) Messages(ctx context.Context, interactionIDs []string) ([]*timebank.ChatMessage, error) {
	want := make(map[string]bool, len(interactionIDs))
	for _, id := range interactionIDs {
		want[id] = true
	}
	var out []*timebank.ChatMessage
	for _, msg := range m.st.messages {
		if want[msg.InteractionID] {
			c := msg
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (m *Store) CreateTransaction(ctx context.Context, t *timebank.TimeTransaction) error {
	if m.Fail == FailCreateTransaction {
		return errors.New("memstore: forced create_transaction failure")
	}
	m.st.transactions[t.ID] = *t
	return nil
}

func (m *Store) GroupSettlementForOffer(ctx context.Context, offerID string) (*timebank.GroupSettlement, error) {
	g, ok := m.st.settlements[offerID]
	if !ok {
		return nil, fmt.Errorf("settlement for offer %s: %w", offerID, timebank.ErrNotFound)
	}
	g.Participants = append([]string(nil), g.Participants...)
	g.Confirmed = append([]string(nil), g.Confirmed...)
	return &g, nil
}

func (m *Store) CreateGroupSettlement(ctx context.Context, g *timebank.GroupSettlement) error {
	m.st.settlements[g.OfferID] = *g
	return nil
}

func (m *Store) UpdateGroupSettlement(ctx context.Context, g *timebank.GroupSettlement) error {
	if _, ok := m.st.settlements[g.OfferID]; !ok {
		return fmt.Errorf("settlement for offer %s: %w", g.OfferID, timebank.ErrNotFound)
	}
	m.st.settlements[g.OfferID] = *g
	return nil
}

func (m *Store) CreateNotification(ctx context.Context, n *timebank.Notification) error {
	m.st.seq++
	m.st.notes[fmt.Sprintf("%s-%06d", n.ID, m.st.seq)] = *n
	return nil
}

func (m *Store) Blocked(ctx context.Context, a, b string) (bool, error) {
	return m.st.blocks[a+"|"+b] || m.st.blocks[b+"|"+a], nil
}

func listingKey(ref timebank.ListingRef) string {
	return string(ref.Kind) + "|" + ref.ID
}

package timebank_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timebankhq/timebank/internal/timebank"
	"github.com/timebankhq/timebank/internal/timebank/memstore"
)

func balance(t *testing.T, ms *memstore.Store, userID string) float64 {
	t.Helper()
	b, err := ms.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

// 1:1 happy path: create, accept, schedule, complete, confirm. Two hours
// move from consumer to provider with exactly one ledger row.
func TestOneToOneSettlement(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()
	when := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	i, err := eng.Create(ctx, "bob", ref, "can you fix my bike?")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)
	_, err = eng.Schedule(ctx, "bob", i.ID, when)
	require.NoError(t, err)
	_, err = eng.AcceptDate(ctx, "alice", i.ID)
	require.NoError(t, err)

	_, err = eng.Complete(ctx, "alice", i.ID)
	require.NoError(t, err)

	res, err := eng.Confirm(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)
	assert.Equal(t, timebank.StatusCompleted, res.Interaction.Status)

	assert.InDelta(t, 1.0, balance(t, ms, "bob"), 1e-9)
	assert.InDelta(t, 2.0, balance(t, ms, "alice"), 1e-9)

	txs := ms.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, "bob", txs[0].FromUserID)
	assert.Equal(t, "alice", txs[0].ToUserID)
	assert.InDelta(t, 2.0, txs[0].Amount, 1e-9)
}

// Completing without the scheduling loop is allowed from accepted.
func TestCompleteFromAccepted(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	_, err = eng.Complete(ctx, "alice", i.ID)
	require.NoError(t, err)

	res, err := eng.Confirm(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)
}

func TestCompleteProviderOnly(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	_, err = eng.Complete(ctx, "bob", i.ID)
	require.ErrorIs(t, err, timebank.ErrUnauthorized)
}

func TestConfirmRequiresCompletion(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	_, err = eng.Confirm(ctx, "bob", i.ID)
	require.ErrorIs(t, err, timebank.ErrInvalidState)

	_, err = eng.Complete(ctx, "alice", i.ID)
	require.NoError(t, err)

	// Only the consumer confirms.
	_, err = eng.Confirm(ctx, "alice", i.ID)
	require.ErrorIs(t, err, timebank.ErrUnauthorized)
}

// On a request the roles flip: the sender provides the service and earns
// the hours; the request's owner pays.
func TestRequestRolesFlip(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 0)
	ref := seedRequest(ms, "req-1", "alice", 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "I can help")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	// bob is the provider here.
	_, err = eng.Complete(ctx, "bob", i.ID)
	require.NoError(t, err)
	res, err := eng.Confirm(ctx, "alice", i.ID)
	require.NoError(t, err)

	assert.Equal(t, timebank.ConfirmCompleted, res.State)
	assert.InDelta(t, 2.0, balance(t, ms, "alice"), 1e-9)
	assert.InDelta(t, 1.0, balance(t, ms, "bob"), 1e-9)
}

// Group of three: each participant pays the duration, the provider earns it
// once per session, and every member interaction completes together.
func TestGroupSettlement(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	seedUser(ms, "dave", "dave", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1.5, 3)
	ctx := context.Background()

	var memberIDs []string
	for _, member := range []string{"bob", "carol", "dave"} {
		i, err := eng.Create(ctx, member, ref, "count me in")
		require.NoError(t, err)
		_, err = eng.Accept(ctx, "alice", i.ID)
		require.NoError(t, err)
		memberIDs = append(memberIDs, i.ID)
	}

	_, err := eng.Complete(ctx, "alice", memberIDs[0])
	require.NoError(t, err)

	// Every member thread got its completion card, all referencing the same
	// settlement.
	var settlementID string
	for _, id := range memberIDs {
		i, err := eng.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.True(t, i.CompletedByProvider)

		msgs, err := eng.Messages(ctx, i.SenderID, id)
		require.NoError(t, err)
		var card *timebank.ChatMessage
		for _, m := range msgs {
			if m.SettlementID != "" && m.InteractionID == id {
				card = m
			}
		}
		require.NotNil(t, card, "member thread should carry a completion card")
		if settlementID == "" {
			settlementID = card.SettlementID
		} else {
			assert.Equal(t, settlementID, card.SettlementID)
		}
	}

	res, err := eng.Confirm(ctx, "bob", memberIDs[0])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmWaitingOthers, res.State)

	res, err = eng.Confirm(ctx, "carol", memberIDs[1])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmWaitingOthers, res.State)

	// Nothing settles until the last confirmation.
	assert.Empty(t, ms.Transactions())
	assert.InDelta(t, 0, balance(t, ms, "alice"), 1e-9)

	res, err = eng.Confirm(ctx, "dave", memberIDs[2])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)
	require.NotNil(t, res.Settlement)
	assert.True(t, res.Settlement.Settled)

	assert.InDelta(t, 1.5, balance(t, ms, "alice"), 1e-9, "provider earns the duration once")
	for _, member := range []string{"bob", "carol", "dave"} {
		assert.InDelta(t, 1.5, balance(t, ms, member), 1e-9)
	}
	assert.Len(t, ms.Transactions(), 3)

	for _, id := range memberIDs {
		i, err := eng.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Equal(t, timebank.StatusCompleted, i.Status)
	}
}

// Re-confirming is a no-op: no double debit, same reported state.
func TestGroupConfirmIdempotent(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1, 2)
	ctx := context.Background()

	var memberIDs []string
	for _, member := range []string{"bob", "carol"} {
		i, err := eng.Create(ctx, member, ref, "in")
		require.NoError(t, err)
		_, err = eng.Accept(ctx, "alice", i.ID)
		require.NoError(t, err)
		memberIDs = append(memberIDs, i.ID)
	}
	_, err := eng.Complete(ctx, "alice", memberIDs[0])
	require.NoError(t, err)

	res, err := eng.Confirm(ctx, "bob", memberIDs[0])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmWaitingOthers, res.State)

	res, err = eng.Confirm(ctx, "bob", memberIDs[0])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmWaitingOthers, res.State)
	assert.InDelta(t, 3, balance(t, ms, "bob"), 1e-9, "no debit before the group settles")

	res, err = eng.Confirm(ctx, "carol", memberIDs[1])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)

	// After settlement a repeat confirm reports completed with no effect.
	res, err = eng.Confirm(ctx, "bob", memberIDs[0])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)
	assert.Len(t, ms.Transactions(), 2)
	assert.InDelta(t, 2, balance(t, ms, "bob"), 1e-9)
}

// 1:1 re-confirm after settlement reports completed without a second debit.
func TestConfirmIdempotentOneToOne(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)
	_, err = eng.Complete(ctx, "alice", i.ID)
	require.NoError(t, err)
	_, err = eng.Confirm(ctx, "bob", i.ID)
	require.NoError(t, err)

	res, err := eng.Confirm(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)
	assert.Len(t, ms.Transactions(), 1)
	assert.InDelta(t, 1, balance(t, ms, "bob"), 1e-9)
	assert.InDelta(t, 2, balance(t, ms, "alice"), 1e-9)
}

// Once the provider completes a group session its membership is frozen:
// nobody new can create an interaction, be accepted, or be accepted by
// reply, even with seats free.
func TestGroupFrozenAfterProviderCompletes(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	seedUser(ms, "dave", "dave", 3)
	seedUser(ms, "erin", "erin", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1, 4)
	ctx := context.Background()

	var memberIDs []string
	for _, member := range []string{"bob", "carol"} {
		i, err := eng.Create(ctx, member, ref, "in")
		require.NoError(t, err)
		_, err = eng.Accept(ctx, "alice", i.ID)
		require.NoError(t, err)
		memberIDs = append(memberIDs, i.ID)
	}
	// erin asked before completion but was never answered.
	late, err := eng.Create(ctx, "erin", ref, "me too")
	require.NoError(t, err)

	_, err = eng.Complete(ctx, "alice", memberIDs[0])
	require.NoError(t, err)

	_, err = eng.Create(ctx, "dave", ref, "room left?")
	require.ErrorIs(t, err, timebank.ErrConflict)

	// The open ask can no longer be accepted, explicitly or by reply.
	_, err = eng.Accept(ctx, "alice", late.ID)
	require.ErrorIs(t, err, timebank.ErrConflict)
	_, err = eng.SendMessage(ctx, "alice", late.ID, "welcome aboard")
	require.ErrorIs(t, err, timebank.ErrConflict)

	got, err := eng.Get(ctx, "erin", late.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusPending, got.Status)
}

// Settlement only touches the card's participants. An accepted interaction
// that somehow postdates the card neither pays nor completes.
func TestGroupSettlesOnlyCardParticipants(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	seedUser(ms, "dave", "dave", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1, 3)
	ctx := context.Background()

	var memberIDs []string
	for _, member := range []string{"bob", "carol"} {
		i, err := eng.Create(ctx, member, ref, "in")
		require.NoError(t, err)
		_, err = eng.Accept(ctx, "alice", i.ID)
		require.NoError(t, err)
		memberIDs = append(memberIDs, i.ID)
	}
	_, err := eng.Complete(ctx, "alice", memberIDs[0])
	require.NoError(t, err)

	// A row that bypassed the join guard, written straight to the store.
	stray := &timebank.Interaction{
		ID:         "stray-1",
		Listing:    ref,
		SenderID:   "dave",
		ReceiverID: "alice",
		Status:     timebank.StatusAccepted,
	}
	require.NoError(t, ms.CreateInteraction(ctx, stray))

	_, err = eng.Confirm(ctx, "bob", memberIDs[0])
	require.NoError(t, err)
	res, err := eng.Confirm(ctx, "carol", memberIDs[1])
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)

	assert.Len(t, ms.Transactions(), 2)
	assert.InDelta(t, 1, balance(t, ms, "alice"), 1e-9, "provider earns the duration once")
	assert.InDelta(t, 3, balance(t, ms, "dave"), 1e-9, "non-participant pays nothing")

	got, err := ms.GetInteraction(ctx, "stray-1")
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusAccepted, got.Status)
	assert.False(t, got.ConfirmedByReceiver)
}

// A failed ledger write rolls the whole confirmation back: balances,
// statuses and the settlement card are untouched.
func TestSettlementRollsBackAtomically(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)
	_, err = eng.Complete(ctx, "alice", i.ID)
	require.NoError(t, err)

	ms.Fail = memstore.FailCreateTransaction
	_, err = eng.Confirm(ctx, "bob", i.ID)
	require.Error(t, err)

	ms.Fail = memstore.FailNone
	assert.InDelta(t, 3, balance(t, ms, "bob"), 1e-9, "debit rolled back")
	assert.InDelta(t, 0, balance(t, ms, "alice"), 1e-9, "credit rolled back")
	assert.Empty(t, ms.Transactions())

	got, err := eng.Get(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.NotEqual(t, timebank.StatusCompleted, got.Status)

	// The retry succeeds once the store recovers.
	res, err := eng.Confirm(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.ConfirmCompleted, res.State)
	assert.InDelta(t, 1, balance(t, ms, "bob"), 1e-9)
}

// One completion closes a group offer to new entrants even with seats free.
func TestGroupClosesAfterCompletion(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1, 3)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "in")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)
	_, err = eng.Complete(ctx, "alice", i.ID)
	require.NoError(t, err)
	_, err = eng.Confirm(ctx, "bob", i.ID)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "carol", ref, "too late?")
	require.ErrorIs(t, err, timebank.ErrConflict)
}

package timebank_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timebankhq/timebank/internal/timebank"
	"github.com/timebankhq/timebank/internal/timebank/memstore"
)

func newTestEngine(t *testing.T) (*timebank.Engine, *memstore.Store) {
	t.Helper()
	ms := memstore.New()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ticks, ids int
	eng := timebank.NewEngine(ms,
		timebank.WithClock(func() time.Time {
			ticks++
			return base.Add(time.Duration(ticks) * time.Second)
		}),
		timebank.WithIDFunc(func() string {
			ids++
			return fmt.Sprintf("id-%d", ids)
		}),
	)
	return eng, ms
}

func seedUser(ms *memstore.Store, id, name string, balance float64) {
	ms.AddUser(timebank.User{ID: id, Username: name, Email: name + "@example.com"})
	ms.SetBalance(id, balance)
}

func seedOffer(ms *memstore.Store, id, ownerID string, duration float64, capacity int) timebank.ListingRef {
	l := timebank.Listing{
		ID:       id,
		Kind:     timebank.KindOffer,
		OwnerID:  ownerID,
		Title:    "Bike repair",
		Duration: duration,
		Capacity: capacity,
		Visible:  true,
	}
	ms.AddListing(l)
	return l.Ref()
}

func seedRequest(ms *memstore.Store, id, ownerID string, duration float64) timebank.ListingRef {
	l := timebank.Listing{
		ID:       id,
		Kind:     timebank.KindRequest,
		OwnerID:  ownerID,
		Title:    "Help me move",
		Duration: duration,
		Capacity: 1,
		Visible:  true,
	}
	ms.AddListing(l)
	return l.Ref()
}

func TestCreateOwnListingRejected(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)

	_, err := eng.Create(context.Background(), "alice", ref, "hi")
	require.ErrorIs(t, err, timebank.ErrValidation)
}

func TestCreateBlockedLooksLikeMissing(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 3)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ms.SetBlocked("alice", "bob")

	_, err := eng.Create(context.Background(), "bob", ref, "hi")
	require.ErrorIs(t, err, timebank.ErrNotFound)
}

func TestCreateInsufficientBalance(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 1)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)

	_, err := eng.Create(context.Background(), "bob", ref, "hi")
	require.ErrorIs(t, err, timebank.ErrValidation)
}

func TestCreateDuplicateConflict(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedRequest(ms, "req-1", "alice", 1)

	_, err := eng.Create(context.Background(), "bob", ref, "I can help")
	require.NoError(t, err)

	_, err = eng.Create(context.Background(), "bob", ref, "me again")
	require.ErrorIs(t, err, timebank.ErrConflict)
}

func TestCreateAgainAfterDecline(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedRequest(ms, "req-1", "alice", 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "I can help")
	require.NoError(t, err)
	_, err = eng.Decline(ctx, "alice", i.ID)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "bob", ref, "second try")
	require.NoError(t, err)
}

func TestAvailabilityExhaustion(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	seedUser(ms, "carol", "carol", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	_, err = eng.Create(ctx, "carol", ref, "me too")
	require.ErrorIs(t, err, timebank.ErrConflict)
}

func TestOnlyReceiverAnswers(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	_, err = eng.Accept(ctx, "bob", i.ID)
	require.ErrorIs(t, err, timebank.ErrUnauthorized)

	got, err := eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusAccepted, got.Status)

	_, err = eng.Accept(ctx, "alice", i.ID)
	require.ErrorIs(t, err, timebank.ErrInvalidState)
}

func TestSchedulingLoop(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()
	when := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	_, err = eng.Schedule(ctx, "bob", i.ID, when)
	require.ErrorIs(t, err, timebank.ErrInvalidState, "cannot schedule while pending")

	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	got, err := eng.Schedule(ctx, "bob", i.ID, when)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusDateProposed, got.Status)
	assert.Equal(t, "bob", got.DateProposedBy)

	// The proposer cannot answer their own proposal.
	_, err = eng.AcceptDate(ctx, "bob", i.ID)
	require.ErrorIs(t, err, timebank.ErrInvalidState)
	_, err = eng.RejectDate(ctx, "bob", i.ID)
	require.ErrorIs(t, err, timebank.ErrInvalidState)

	got, err = eng.RejectDate(ctx, "alice", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusNegotiating, got.Status)
	assert.Nil(t, got.AppointmentDate)
	assert.Equal(t, "alice", got.DateRejectedBy)

	later := when.Add(48 * time.Hour)
	got, err = eng.Schedule(ctx, "alice", i.ID, later)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusDateProposed, got.Status)

	got, err = eng.AcceptDate(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusScheduled, got.Status)
	require.NotNil(t, got.AppointmentDate)
	assert.True(t, got.AppointmentDate.Equal(later))
}

func TestDeleteConversationOneSided(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	require.NoError(t, eng.DeleteConversation(ctx, "bob", i.ID))

	bobInbox, err := eng.Inbox(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, bobInbox)

	aliceInbox, err := eng.Inbox(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceInbox, 1)
	assert.Equal(t, i.ID, aliceInbox[0].ID)

	// The deleting side cannot keep talking in a conversation it removed.
	_, err = eng.SendMessage(ctx, "bob", i.ID, "hello again")
	require.ErrorIs(t, err, timebank.ErrInvalidState)
}

func TestGetDeniedToStrangers(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	seedUser(ms, "mallory", "mallory", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	_, err = eng.Get(ctx, "mallory", i.ID)
	require.ErrorIs(t, err, timebank.ErrUnauthorized)
}

func TestLifecycleNotifications(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	aliceNotes := ms.Notifications("alice")
	require.Len(t, aliceNotes, 1)
	assert.Equal(t, timebank.NotifyInteractionCreated, aliceNotes[0].Type)
	assert.Equal(t, i.ID, aliceNotes[0].InteractionID)

	_, err = eng.Accept(ctx, "alice", i.ID)
	require.NoError(t, err)

	bobNotes := ms.Notifications("bob")
	require.Len(t, bobNotes, 1)
	assert.Equal(t, timebank.NotifyInteractionAccepted, bobNotes[0].Type)
}

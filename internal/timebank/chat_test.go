package timebank_test

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timebankhq/timebank/internal/timebank"
)

func TestSendMessageRejectsEmpty(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	_, err = eng.SendMessage(ctx, "bob", i.ID, "   ")
	require.ErrorIs(t, err, timebank.ErrValidation)
}

// Replying to a pending interaction on your own listing accepts it.
func TestReplyAcceptsImplicitly(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	_, err = eng.SendMessage(ctx, "alice", i.ID, "sure, when suits you?")
	require.NoError(t, err)

	got, err := eng.Get(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusAccepted, got.Status)

	// bob hears both the acceptance and the message itself.
	types := map[timebank.NotificationType]bool{}
	for _, n := range ms.Notifications("bob") {
		types[n.Type] = true
	}
	assert.True(t, types[timebank.NotifyInteractionAccepted])
	assert.True(t, types[timebank.NotifyMessage])
}

// A sender's own message does not accept anything.
func TestSenderFollowUpStaysPending(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	_, err = eng.SendMessage(ctx, "bob", i.ID, "just checking in")
	require.NoError(t, err)

	got, err := eng.Get(ctx, "bob", i.ID)
	require.NoError(t, err)
	assert.Equal(t, timebank.StatusPending, got.Status)
}

func TestMessagePreviewTruncated(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)

	long := strings.Repeat("x", 200)
	_, err = eng.SendMessage(ctx, "bob", i.ID, long)
	require.NoError(t, err)

	notes := ms.Notifications("alice")
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, timebank.NotifyMessage, last.Type)
	assert.Len(t, last.Message, 80)

	// Multi-byte content must not be cut mid-rune.
	_, err = eng.SendMessage(ctx, "bob", i.ID, strings.Repeat("é", 120))
	require.NoError(t, err)
	notes = ms.Notifications("alice")
	last = notes[len(notes)-1]
	assert.True(t, utf8.ValidString(last.Message))
	assert.Equal(t, strings.Repeat("é", 80), last.Message)
}

// Two members on a group offer share one conversation: each writes into
// their own thread, everyone reads the union.
func TestGroupChatUnion(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1, 3)
	ctx := context.Background()

	iBob, err := eng.Create(ctx, "bob", ref, "in")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", iBob.ID)
	require.NoError(t, err)

	iCarol, err := eng.Create(ctx, "carol", ref, "in too")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", iCarol.ID)
	require.NoError(t, err)

	mBob, err := eng.SendMessage(ctx, "bob", iBob.ID, "hello from bob")
	require.NoError(t, err)
	assert.Equal(t, iBob.ID, mBob.InteractionID)

	// carol may address bob's interaction; her message lands in her own
	// thread.
	mCarol, err := eng.SendMessage(ctx, "carol", iBob.ID, "hello from carol")
	require.NoError(t, err)
	assert.Equal(t, iCarol.ID, mCarol.InteractionID)

	for _, viewer := range []string{"alice", "bob", "carol"} {
		msgs, err := eng.Messages(ctx, viewer, iBob.ID)
		require.NoError(t, err)
		var contents []string
		for _, m := range msgs {
			contents = append(contents, m.Content)
		}
		assert.Contains(t, contents, "hello from bob")
		assert.Contains(t, contents, "hello from carol")
	}

	// bob's group message notifies the provider and the other member.
	carolTold := false
	for _, n := range ms.Notifications("carol") {
		if n.Type == timebank.NotifyMessage && n.Message == "hello from bob" {
			carolTold = true
		}
	}
	assert.True(t, carolTold)
}

func TestNewMemberToldOfGroupJoins(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 0)
	seedUser(ms, "bob", "bob", 3)
	seedUser(ms, "carol", "carol", 3)
	ref := seedOffer(ms, "offer-1", "alice", 1, 3)
	ctx := context.Background()

	iBob, err := eng.Create(ctx, "bob", ref, "in")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", iBob.ID)
	require.NoError(t, err)

	iCarol, err := eng.Create(ctx, "carol", ref, "in too")
	require.NoError(t, err)
	_, err = eng.Accept(ctx, "alice", iCarol.ID)
	require.NoError(t, err)

	joined := false
	for _, n := range ms.Notifications("bob") {
		if n.Type == timebank.NotifyInteractionAccepted && strings.Contains(n.Message, "joined") {
			joined = true
		}
	}
	assert.True(t, joined, "existing member should hear about the new participant")
}

func TestDeleteMessagePerSide(t *testing.T) {
	eng, ms := newTestEngine(t)
	seedUser(ms, "alice", "alice", 3)
	seedUser(ms, "bob", "bob", 5)
	seedUser(ms, "mallory", "mallory", 5)
	ref := seedOffer(ms, "offer-1", "alice", 2, 1)
	ctx := context.Background()

	i, err := eng.Create(ctx, "bob", ref, "hi")
	require.NoError(t, err)
	m, err := eng.SendMessage(ctx, "bob", i.ID, "regret this")
	require.NoError(t, err)

	require.ErrorIs(t, eng.DeleteMessage(ctx, "mallory", m.ID), timebank.ErrUnauthorized)

	require.NoError(t, eng.DeleteMessage(ctx, "bob", m.ID))

	bobView, err := eng.Messages(ctx, "bob", i.ID)
	require.NoError(t, err)
	for _, msg := range bobView {
		assert.NotEqual(t, m.ID, msg.ID)
	}

	aliceView, err := eng.Messages(ctx, "alice", i.ID)
	require.NoError(t, err)
	found := false
	for _, msg := range aliceView {
		if msg.ID == m.ID {
			found = true
		}
	}
	assert.True(t, found, "recipient still sees the message")
}

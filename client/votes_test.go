package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotchat/model"
)

func TestVoteTrackerSingleInvocation(t *testing.T) {
	tracker := NewVoteTracker(NewStore(nil))

	calls := 0
	send := func() error { calls++; return nil }

	require.NoError(t, tracker.Vote("m1", model.VoteUp, send))
	err := tracker.Vote("m1", model.VoteUp, send)
	require.ErrorIs(t, err, ErrAlreadyVoted)

	assert.Equal(t, 1, calls, "second vote must not reach the protocol")

	dir, ok := tracker.Voted("m1")
	require.True(t, ok)
	assert.Equal(t, model.VoteUp, dir)
}

func TestVoteTrackerOppositeDirectionAlsoBlocked(t *testing.T) {
	tracker := NewVoteTracker(NewStore(nil))

	require.NoError(t, tracker.Vote("m1", model.VoteUp, func() error { return nil }))
	err := tracker.Vote("m1", model.VoteDown, func() error { return nil })
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestVoteTrackerFailedSendAllowsRetry(t *testing.T) {
	tracker := NewVoteTracker(NewStore(nil))

	boom := errors.New("transient disconnect")
	err := tracker.Vote("m1", model.VoteDown, func() error { return boom })
	require.ErrorIs(t, err, boom)

	_, ok := tracker.Voted("m1")
	require.False(t, ok, "failed vote must not set the marker")

	require.NoError(t, tracker.Vote("m1", model.VoteDown, func() error { return nil }))
}

func TestVoteTrackerRejectsInvalidDirection(t *testing.T) {
	tracker := NewVoteTracker(NewStore(nil))

	calls := 0
	err := tracker.Vote("m1", "sideways", func() error { calls++; return nil })
	require.ErrorIs(t, err, ErrInvalidVote)
	assert.Zero(t, calls)
}

func TestVoteTrackerAppliesTallyToStore(t *testing.T) {
	store := NewStore(nil)
	store.AddMessage(model.Message{ID: "m1", Timestamp: time.Now()})
	tracker := NewVoteTracker(store)

	// applied even though the local user never voted on m1
	tracker.ApplyTallyUpdate(model.VoteUpdate{MessageID: "m1", Upvotes: 7, Downvotes: 2, VoteCount: 5})

	m, ok := store.Message("m1")
	require.True(t, ok)
	assert.Equal(t, 7, m.Votes.Upvotes)
	assert.Equal(t, 2, m.Votes.Downvotes)
	assert.Equal(t, 5, m.VoteCount)
}

package client

import (
	"sync"

	"spotchat/model"
)

// VoteTracker guards the local user against casting more than one vote per
// message, independent of server-side enforcement, and routes authoritative
// tally updates into the store.
type VoteTracker struct {
	store *Store

	mu   sync.Mutex
	cast map[string]string // message id -> direction
}

// NewVoteTracker builds a tracker bound to the session's store.
func NewVoteTracker(store *Store) *VoteTracker {
	return &VoteTracker{
		store: store,
		cast:  make(map[string]string),
	}
}

// Vote invokes send unless a vote for messageID was already recorded. The
// already-voted marker is only set after send succeeds, so a failed protocol
// call leaves the user free to retry.
func (t *VoteTracker) Vote(messageID, direction string, send func() error) error {
	if direction != model.VoteUp && direction != model.VoteDown {
		return ErrInvalidVote
	}

	t.mu.Lock()
	_, dup := t.cast[messageID]
	t.mu.Unlock()
	if dup {
		return ErrAlreadyVoted
	}

	if err := send(); err != nil {
		return err
	}

	t.mu.Lock()
	t.cast[messageID] = direction
	t.mu.Unlock()
	return nil
}

// Voted returns the direction the local user voted on a message, if any.
func (t *VoteTracker) Voted(messageID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	dir, ok := t.cast[messageID]
	return dir, ok
}

// ApplyTallyUpdate overwrites the message's tally in the store. Always
// applied regardless of local voted-state; the update may reflect other
// users' votes.
func (t *VoteTracker) ApplyTallyUpdate(u model.VoteUpdate) {
	t.store.ApplyVoteUpdate(u)
}

package client

import (
	"sort"
	"sync"

	"spotchat/model"
)

// Store is the message reconciliation state for one room membership. It merges
// history snapshots and incremental events into a single deduplicated ordered
// collection and derives the thread grouping consumed by presentation.
//
// A store belongs to exactly one session; all mutation flows through that
// session's event-dispatch path. Reads return copies.
type Store struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]*model.Message
	aiTags map[string]struct{}
}

// NewStore builds an empty store. aiEligibleTags names the tags whose
// presence on a thread starter means an AI reply is expected; when empty the
// default tag is used.
func NewStore(aiEligibleTags []string) *Store {
	if len(aiEligibleTags) == 0 {
		aiEligibleTags = []string{model.DefaultAITag}
	}
	tags := make(map[string]struct{}, len(aiEligibleTags))
	for _, t := range aiEligibleTags {
		tags[t] = struct{}{}
	}
	return &Store{
		byID:   make(map[string]*model.Message),
		aiTags: tags,
	}
}

// ReplaceHistory swaps the whole collection for the snapshot, preserving the
// snapshot's order verbatim for tie-breaking. Used for the room history push,
// including the authoritative resend after a reconnect: replacement, not
// merge, so locally-known messages absent from the snapshot disappear.
func (s *Store) ReplaceHistory(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = s.order[:0]
	s.byID = make(map[string]*model.Message, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if _, ok := s.byID[m.ID]; ok {
			continue
		}
		s.order = append(s.order, m.ID)
		s.byID[m.ID] = &m
	}
}

// MergeThreadHistory unions a thread snapshot into the collection: ids already
// present are kept as-is, the rest are appended in snapshot order.
func (s *Store) MergeThreadHistory(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range msgs {
		m := msgs[i]
		if _, ok := s.byID[m.ID]; ok {
			continue
		}
		s.order = append(s.order, m.ID)
		s.byID[m.ID] = &m
	}
}

// AddMessage appends a single message if its id is absent and reports whether
// it was added. Duplicate delivery (history resend racing a live push) is
// suppressed by id equality. When the message is a reply its parent's reply
// count is bumped locally so "N replies" indicators stay consistent before any
// explicit count push.
func (s *Store) AddMessage(msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.order = append(s.order, msg.ID)
	s.byID[msg.ID] = &msg

	if msg.IsReply() {
		if parent, ok := s.byID[msg.ParentMessageID]; ok {
			parent.ReplyCount++
		}
	}
	return true
}

// ApplyVoteUpdate overwrites the tally fields of the matching message,
// top-level or reply, and reports whether a message matched. The server's
// counts are authoritative; nothing else on the message changes.
func (s *Store) ApplyVoteUpdate(u model.VoteUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[u.MessageID]
	if !ok {
		return false
	}
	m.Votes = model.Votes{Upvotes: u.Upvotes, Downvotes: u.Downvotes}
	m.VoteCount = u.VoteCount
	return true
}

// Clear empties the collection. Called on session teardown so a room switch
// can never leak messages across rooms.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.byID = make(map[string]*model.Message)
}

// Len returns the number of messages held, replies included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Message returns a copy of the message with the given id.
func (s *Store) Message(id string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return model.Message{}, false
	}
	return *m, true
}

// View is the derived, presentation-ready grouping of the collection.
type View struct {
	// TopLevel holds messages without a parent, ordered by creation time
	// ascending.
	TopLevel []model.Message
	// Replies maps a parent message id to its ordered replies: AI-generated
	// replies first, then ascending creation time.
	Replies map[string][]model.Message
	// AIPending holds the ids of thread starters carrying an AI-eligible tag
	// that have no AI-generated reply yet.
	AIPending map[string]bool
}

// View recomputes the derived grouping. Grouping is a pure function of
// parentMessageId, so a reply that arrived before its parent still lands in
// the right thread.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Replies:   make(map[string][]model.Message),
		AIPending: make(map[string]bool),
	}
	aiAnswered := make(map[string]bool)

	for _, id := range s.order {
		m := s.byID[id]
		if m.IsReply() {
			v.Replies[m.ParentMessageID] = append(v.Replies[m.ParentMessageID], *m)
			if m.AIGenerated {
				aiAnswered[m.ParentMessageID] = true
			}
			continue
		}
		v.TopLevel = append(v.TopLevel, *m)
	}

	sort.SliceStable(v.TopLevel, func(i, j int) bool {
		return v.TopLevel[i].Timestamp.Before(v.TopLevel[j].Timestamp)
	})

	for parent, replies := range v.Replies {
		sort.SliceStable(replies, func(i, j int) bool {
			// surface the authoritative answer before human chatter
			if replies[i].AIGenerated != replies[j].AIGenerated {
				return replies[i].AIGenerated
			}
			return replies[i].Timestamp.Before(replies[j].Timestamp)
		})
		v.Replies[parent] = replies
	}

	for _, m := range v.TopLevel {
		if m.IsThreadStarter && s.hasAITagLocked(m) && !aiAnswered[m.ID] {
			v.AIPending[m.ID] = true
		}
	}
	return v
}

func (s *Store) hasAITagLocked(m model.Message) bool {
	for _, t := range m.Tags {
		if _, ok := s.aiTags[t]; ok {
			return true
		}
	}
	return false
}

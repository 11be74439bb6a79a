package room

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spotchat/model"
	"spotchat/protocol"
)

// PostMessage validates and accepts a message from a member, broadcasts it to
// the room, and schedules an AI reply when the message starts an AI-eligible
// thread. The returned error is a user-facing rejection; the caller pushes it
// back as an error event.
func (r *Room) PostMessage(m *Member, req protocol.SendMessage) error {
	if strings.TrimSpace(req.Message) == "" {
		return errors.New("message must not be empty")
	}
	if len(req.Message) > r.maxMsgLen {
		return fmt.Errorf("message must be at most %d characters", r.maxMsgLen)
	}

	msg := &model.Message{
		ID:        uuid.NewString(),
		RoomID:    r.id,
		Username:  m.name,
		Message:   req.Message,
		Timestamp: time.Now().UTC(),
		Tags:      req.Tags,
	}

	r.mu.Lock()
	if req.ParentMessageID != "" {
		parent, ok := r.byID[req.ParentMessageID]
		if !ok {
			r.mu.Unlock()
			return errors.New("parent message not found")
		}
		msg.ParentMessageID = parent.ID
		msg.ThreadID = threadIDOf(parent)
		parent.ReplyCount++
	} else if r.hasThreadTag(req.Tags) {
		msg.IsThreadStarter = true
		msg.ThreadID = msg.ID
	}
	r.order = append(r.order, msg)
	r.byID[msg.ID] = msg
	wantAI := msg.IsThreadStarter && r.hasAITag(req.Tags) && r.responder != nil
	snapshot := *msg
	r.mu.Unlock()

	r.metrics.MessagesTotal.WithLabelValues(r.id).Inc()
	r.log.Debug("message accepted",
		zap.String("id", snapshot.ID),
		zap.String("username", m.name),
		zap.Bool("thread_starter", snapshot.IsThreadStarter))

	if env, err := protocol.NewEnvelope(protocol.TypeNewMessage, snapshot); err == nil {
		r.broadcast(env)
	}
	if wantAI {
		r.scheduleAIReply(snapshot)
	}
	return nil
}

// Vote records one member's vote and broadcasts the recomputed tally to the
// whole room, the caller included. At most one vote per member per message.
func (r *Room) Vote(m *Member, req protocol.VoteMessage) error {
	if req.VoteType != model.VoteUp && req.VoteType != model.VoteDown {
		return fmt.Errorf("unknown vote type %q", req.VoteType)
	}

	r.mu.Lock()
	msg, ok := r.byID[req.MessageID]
	if !ok {
		r.mu.Unlock()
		return errors.New("message not found")
	}
	if _, dup := m.votes[req.MessageID]; dup {
		r.mu.Unlock()
		return errors.New("already voted on this message")
	}
	m.votes[req.MessageID] = req.VoteType
	if req.VoteType == model.VoteUp {
		msg.Votes.Upvotes++
	} else {
		msg.Votes.Downvotes++
	}
	msg.VoteCount = msg.Votes.Upvotes - msg.Votes.Downvotes
	update := model.VoteUpdate{
		MessageID: msg.ID,
		Upvotes:   msg.Votes.Upvotes,
		Downvotes: msg.Votes.Downvotes,
		VoteCount: msg.VoteCount,
	}
	r.mu.Unlock()

	r.metrics.VotesTotal.WithLabelValues(r.id).Inc()
	if env, err := protocol.NewEnvelope(protocol.TypeVoteUpdated, update); err == nil {
		r.broadcast(env)
	}
	return nil
}

// ThreadMessages pushes the reply set of one thread to the requesting member.
// The thread is addressed by its thread id or by the starter's message id.
func (r *Room) ThreadMessages(m *Member, req protocol.GetThreadMessages) error {
	if req.ThreadID == "" {
		return errors.New("thread id must not be empty")
	}

	r.mu.RLock()
	replies := make(protocol.MessageHistory, 0)
	for _, msg := range r.order {
		if !msg.IsReply() {
			continue
		}
		if msg.ThreadID == req.ThreadID || msg.ParentMessageID == req.ThreadID {
			replies = append(replies, *msg)
		}
	}
	r.mu.RUnlock()

	if req.Limit > 0 && len(replies) > req.Limit {
		replies = replies[:req.Limit]
	}

	if env, err := protocol.NewEnvelope(protocol.TypeThreadHistory, replies); err == nil {
		m.push(env)
	}
	return nil
}

func threadIDOf(parent *model.Message) string {
	if parent.ThreadID != "" {
		return parent.ThreadID
	}
	return parent.ID
}

func (r *Room) hasThreadTag(tags []string) bool {
	for _, t := range tags {
		if _, ok := r.threadTags[t]; ok {
			return true
		}
	}
	return false
}

func (r *Room) hasAITag(tags []string) bool {
	for _, t := range tags {
		if _, ok := r.aiTags[t]; ok {
			return true
		}
	}
	return false
}

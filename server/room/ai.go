package room

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spotchat/model"
	"spotchat/protocol"
)

// aiUsername is the display identity of generated replies.
const aiUsername = "assistant"

// CannedResponder is the built-in stand-in for the external AI service: it
// acknowledges the question with a fixed template.
type CannedResponder struct{}

func (CannedResponder) Reply(starter model.Message) string {
	return fmt.Sprintf("Thanks for asking %q - someone nearby should be able to help, and here is what is known about this location so far.", starter.Message)
}

// scheduleAIReply arms a one-shot timer that posts the responder's reply as a
// thread reply. At most one pending reply per starter; timers are stopped
// when the room closes.
func (r *Room) scheduleAIReply(starter model.Message) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if _, pending := r.aiTimers[starter.ID]; pending {
		r.mu.Unlock()
		return
	}
	r.aiTimers[starter.ID] = time.AfterFunc(r.aiDelay, func() {
		r.postAIReply(starter)
	})
	r.mu.Unlock()
}

func (r *Room) postAIReply(starter model.Message) {
	text := r.responder.Reply(starter)

	r.mu.Lock()
	delete(r.aiTimers, starter.ID)
	if r.closed {
		r.mu.Unlock()
		return
	}
	parent, ok := r.byID[starter.ID]
	if !ok {
		r.mu.Unlock()
		return
	}
	msg := &model.Message{
		ID:              uuid.NewString(),
		RoomID:          r.id,
		Username:        aiUsername,
		Message:         text,
		Timestamp:       time.Now().UTC(),
		ParentMessageID: parent.ID,
		ThreadID:        threadIDOf(parent),
		AIGenerated:     true,
	}
	parent.ReplyCount++
	r.order = append(r.order, msg)
	r.byID[msg.ID] = msg
	snapshot := *msg
	r.mu.Unlock()

	r.metrics.AIRepliesTotal.WithLabelValues(r.id).Inc()
	r.log.Debug("ai reply posted", zap.String("thread", snapshot.ThreadID))

	if env, err := protocol.NewEnvelope(protocol.TypeNewMessage, snapshot); err == nil {
		r.broadcast(env)
	}
}

// Package protocol defines the websocket message vocabulary exchanged between
// the chat client and the room server. This is the source of truth for the
// wire contract: every frame in either direction is an Envelope whose Type
// selects the payload shape.
package protocol

import (
	"encoding/json"
	"fmt"

	"spotchat/model"
)

// Client to server message types.
const (
	TypeJoinRoom          = "join_room"
	TypeLeaveRoom         = "leave_room"
	TypeSendMessage       = "send_message"
	TypeVoteMessage       = "vote_message"
	TypeGetThreadMessages = "get_thread_messages"
)

// Server to client message types.
const (
	TypeAssignedUsername = "assigned_username"
	TypeMessageHistory   = "message_history"
	TypeThreadHistory    = "thread_history"
	TypeNewMessage       = "new_message"
	TypeVoteUpdated      = "vote_updated"
	TypeError            = "error"
)

// Envelope wraps every websocket frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(typ string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Envelope{Type: typ, Data: raw}, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// JoinRoom registers the connection as a member of a room. The server answers
// with assigned_username followed by a full message_history snapshot. The
// verification token is only required when the deployment enforces a
// human-verification challenge.
type JoinRoom struct {
	RoomID            string `json:"roomId"`
	VerificationToken string `json:"verificationToken,omitempty"`
}

// LeaveRoom is a best-effort membership release sent on teardown.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// SendMessage posts a message to the room. A non-empty ParentMessageID makes
// it a thread reply.
type SendMessage struct {
	RoomID          string   `json:"roomId"`
	Message         string   `json:"message"`
	Tags            []string `json:"tags"`
	ParentMessageID string   `json:"parentMessageId,omitempty"`
}

// VoteMessage casts an up or down vote on a message.
type VoteMessage struct {
	MessageID string `json:"messageId"`
	VoteType  string `json:"voteType"`
}

// GetThreadMessages requests the reply set of one thread. The server answers
// asynchronously with a thread_history push, not a direct reply.
type GetThreadMessages struct {
	ThreadID string `json:"threadId"`
	Limit    int    `json:"limit,omitempty"`
}

// MessageHistory is the payload of message_history and thread_history pushes.
type MessageHistory []model.Message

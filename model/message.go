package model

import "time"

// Vote directions
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// DefaultAITag is the tag name used when a room has no tag catalog configured.
const DefaultAITag = "location_specific_question"

// Votes is the authoritative tally for one message, owned by the server and
// mirrored by clients.
type Votes struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// Message is the wire representation of a chat message. A non-empty
// ParentMessageID marks the message as a thread reply; such messages are never
// rendered top-level.
type Message struct {
	ID              string    `json:"id"`
	RoomID          string    `json:"roomId"`
	Username        string    `json:"username"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
	Tags            []string  `json:"tags,omitempty"`
	ParentMessageID string    `json:"parentMessageId,omitempty"`
	ThreadID        string    `json:"threadId,omitempty"`
	IsThreadStarter bool      `json:"isThreadStarter"`
	ReplyCount      int       `json:"replyCount"`
	AIGenerated     bool      `json:"aiGenerated"`
	Votes           Votes     `json:"votes"`
	VoteCount       int       `json:"voteCount"`
}

// IsReply reports whether the message belongs to a thread.
func (m *Message) IsReply() bool {
	return m.ParentMessageID != ""
}

// HasTag reports whether the message carries the given tag.
func (m *Message) HasTag(name string) bool {
	for _, t := range m.Tags {
		if t == name {
			return true
		}
	}
	return false
}

// VoteUpdate is the authoritative tally broadcast after a vote is accepted.
type VoteUpdate struct {
	MessageID string `json:"messageId"`
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
	VoteCount int    `json:"voteCount"`
}

// RoomTag is one entry of a room's tag catalog. Tags are attached to outgoing
// messages by the sender; the capability flags drive threading and AI replies.
type RoomTag struct {
	Name             string `json:"name" yaml:"name"`
	DisplayName      string `json:"displayName" yaml:"display_name"`
	Color            string `json:"color" yaml:"color"`
	EnableAIResponse bool   `json:"enableAiResponse" yaml:"enable_ai_response"`
	EnableThreading  bool   `json:"enableThreading" yaml:"enable_threading"`
}

// Room is the metadata record served outside the realtime protocol.
type Room struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	LocationName  string    `json:"locationName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	AvailableTags []RoomTag `json:"availableTags,omitempty"`
}

// AITagNames returns the names of tags that trigger an AI reply.
func (r *Room) AITagNames() []string {
	var names []string
	for _, t := range r.AvailableTags {
		if t.EnableAIResponse {
			names = append(names, t.Name)
		}
	}
	return names
}

// ThreadTagNames returns the names of tags that open a thread.
func (r *Room) ThreadTagNames() []string {
	var names []string
	for _, t := range r.AvailableTags {
		if t.EnableThreading {
			names = append(names, t.Name)
		}
	}
	return names
}

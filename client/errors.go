package client

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a live transport.
	ErrNotConnected = errors.New("not connected")
	// ErrNotJoined is returned when send/vote/thread operations are invoked
	// before the join handshake completed or after the session closed.
	ErrNotJoined = errors.New("room not joined")
	// ErrEmptyMessage is returned before any network attempt for blank content.
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrAlreadyVoted is returned when the local user already voted on a message.
	ErrAlreadyVoted = errors.New("already voted on this message")
	// ErrInvalidVote is returned for a vote direction other than up or down.
	ErrInvalidVote = errors.New(`vote direction must be "up" or "down"`)
	// ErrClosed is returned when the session or connection was torn down.
	ErrClosed = errors.New("session closed")
)

// ProtocolError carries a server-pushed error event. It is surfaced through
// the session error callback and never tears down the connection.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "server error: " + e.Reason
}

// Package client implements the realtime chat client: a supervised websocket
// connection per room, the join/send/vote/thread protocol on top of it, and
// the reconciliation state that turns pushed events into presentation-ready
// view data.
package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"spotchat/model"
	"spotchat/protocol"
)

// SessionState tracks room membership within one connection lifecycle.
// Joined is the only state from which send/vote/thread operations are
// permitted.
type SessionState int32

const (
	NotJoined SessionState = iota
	Joining
	Joined
	Rejoining
)

func (s SessionState) String() string {
	switch s {
	case NotJoined:
		return "not-joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Rejoining:
		return "rejoining"
	default:
		return "unknown"
	}
}

// Config carries the collaborators and knobs for a room session. Only URL is
// required.
type Config struct {
	// URL is the server base, e.g. "ws://localhost:8080". The session dials
	// URL + "/chat/{roomId}".
	URL string

	// Tokens supplies the bearer credential; nil attempts anonymous access.
	Tokens TokenProvider
	// Verification supplies the optional human-verification token for joins.
	Verification VerificationProvider
	// Directory, when set, is queried once on entry for the room's tag
	// catalog, which drives the AI-pending derivation.
	Directory RoomDirectory

	Logger *zap.Logger

	// BaseRetryDelay and MaxRetries tune the reconnect backoff. Zero values
	// pick the defaults (100ms doubling, 5 attempts).
	BaseRetryDelay time.Duration
	MaxRetries     int

	// OnConnState observes transport state for the presentation layer
	// (enabling/disabling the send control).
	OnConnState func(ConnState)
	// OnError receives protocol errors pushed by the server and terminal
	// transport errors. Never called after Close.
	OnError func(error)
}

// Session is one room membership: it owns the connection, the reconciliation
// store and the vote tracker, performs the join handshake (again after every
// reconnect), and dispatches push events. Switching rooms means closing the
// session and creating a new one; a closed session's handlers are no-ops.
type Session struct {
	roomID string
	cfg    Config
	log    *zap.Logger

	conn  *conn
	store *Store
	votes *VoteTracker

	mu       sync.Mutex
	state    SessionState
	assigned string
	room     model.Room
	started  bool
	closed   bool
}

// JoinRoom connects to the room endpoint and initiates the join handshake.
// The returned session is live immediately; the identity and history pushes
// arrive asynchronously and flip the state to Joined. Cancelling ctx aborts
// a connect in progress without surfacing a stale error.
func JoinRoom(ctx context.Context, cfg Config, roomID string) (*Session, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("join room %s: endpoint URL required", roomID)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("room", roomID))

	var room model.Room
	var aiTags []string
	if cfg.Directory != nil {
		var err error
		room, err = cfg.Directory.GetRoom(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("room metadata: %w", err)
		}
		aiTags = room.AITagNames()
	}

	s := &Session{
		roomID: roomID,
		cfg:    cfg,
		log:    log,
		store:  NewStore(aiTags),
		room:   room,
	}
	s.votes = NewVoteTracker(s.store)

	baseDelay := cfg.BaseRetryDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseRetryDelay
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	s.conn = &conn{
		url:        endpointURL(cfg.URL, roomID),
		tokens:     cfg.Tokens,
		log:        log,
		baseDelay:  baseDelay,
		maxRetries: maxRetries,
		onEnvelope: s.dispatch,
		onState:    s.connStateChanged,
		onError:    s.reportError,
	}

	if err := s.conn.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.sendJoin(ctx, Joining); err != nil {
		s.conn.close()
		return nil, err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return s, nil
}

func endpointURL(base, roomID string) string {
	return strings.TrimRight(base, "/") + "/chat/" + url.PathEscape(roomID)
}

func (s *Session) sendJoin(ctx context.Context, target SessionState) error {
	var verification string
	if s.cfg.Verification != nil {
		var err error
		verification, err = s.cfg.Verification.GetVerificationToken(ctx, "join_room")
		if err != nil {
			return fmt.Errorf("verification token: %w", err)
		}
	}

	s.mu.Lock()
	s.state = target
	s.mu.Unlock()

	return s.conn.send(protocol.TypeJoinRoom, protocol.JoinRoom{
		RoomID:            s.roomID,
		VerificationToken: verification,
	})
}

// connStateChanged re-runs the join handshake after every reconnect: room
// membership does not survive a transport reconnect.
func (s *Session) connStateChanged(state ConnState) {
	if cb := s.cfg.OnConnState; cb != nil {
		cb(state)
	}
	if state != Connected {
		return
	}

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		// initial connect; JoinRoom sends the first handshake itself
		return
	}

	s.log.Info("reconnected, rejoining room")
	if err := s.sendJoin(context.Background(), Rejoining); err != nil {
		s.reportError(fmt.Errorf("rejoin: %w", err))
	}
}

// dispatch applies one push event. Events are delivered in server send order
// by the single read pump; the connection's generation guard stops delivery
// the moment the session closes, and the closed check below covers an event
// already past that guard when Close runs.
func (s *Session) dispatch(env protocol.Envelope) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	switch env.Type {
	case protocol.TypeAssignedUsername:
		var name string
		if err := env.Decode(&name); err != nil {
			s.reportError(err)
			return
		}
		s.mu.Lock()
		s.assigned = name
		s.mu.Unlock()

	case protocol.TypeMessageHistory:
		var history protocol.MessageHistory
		if err := env.Decode(&history); err != nil {
			s.reportError(err)
			return
		}
		s.store.ReplaceHistory(history)
		s.mu.Lock()
		s.state = Joined
		s.mu.Unlock()
		s.log.Debug("history received", zap.Int("messages", len(history)))

	case protocol.TypeThreadHistory:
		var replies protocol.MessageHistory
		if err := env.Decode(&replies); err != nil {
			s.reportError(err)
			return
		}
		s.store.MergeThreadHistory(replies)

	case protocol.TypeNewMessage:
		var msg model.Message
		if err := env.Decode(&msg); err != nil {
			s.reportError(err)
			return
		}
		s.store.AddMessage(msg)

	case protocol.TypeVoteUpdated:
		var update model.VoteUpdate
		if err := env.Decode(&update); err != nil {
			s.reportError(err)
			return
		}
		s.votes.ApplyTallyUpdate(update)

	case protocol.TypeError:
		var reason string
		if err := env.Decode(&reason); err != nil {
			s.reportError(err)
			return
		}
		s.reportError(&ProtocolError{Reason: reason})

	default:
		s.log.Debug("ignoring unknown event", zap.String("type", env.Type))
	}
}

// SendMessage posts content to the room. Content must be non-blank; tags are
// the sender's choice from the room catalog; a non-empty parentMessageID makes
// the message a thread reply. Resolving does not mean the message is visible:
// it appears only via the round-tripped new_message push.
func (s *Session) SendMessage(content string, tags []string, parentMessageID string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if s.State() != Joined {
		return ErrNotJoined
	}
	if tags == nil {
		tags = []string{}
	}
	return s.conn.send(protocol.TypeSendMessage, protocol.SendMessage{
		RoomID:          s.roomID,
		Message:         content,
		Tags:            tags,
		ParentMessageID: parentMessageID,
	})
}

// Vote casts an up/down vote. A message the local user already voted on is
// rejected with ErrAlreadyVoted before any network attempt.
func (s *Session) Vote(messageID, direction string) error {
	if s.State() != Joined {
		return ErrNotJoined
	}
	return s.votes.Vote(messageID, direction, func() error {
		return s.conn.send(protocol.TypeVoteMessage, protocol.VoteMessage{
			MessageID: messageID,
			VoteType:  direction,
		})
	})
}

// RequestThread asks for a thread's reply set. The response arrives as a
// thread_history push, not a return value.
func (s *Session) RequestThread(threadID string, limit int) error {
	if s.State() != Joined {
		return ErrNotJoined
	}
	return s.conn.send(protocol.TypeGetThreadMessages, protocol.GetThreadMessages{
		ThreadID: threadID,
		Limit:    limit,
	})
}

// Store exposes the session's reconciliation store.
func (s *Session) Store() *Store { return s.store }

// Votes exposes the session's vote tracker.
func (s *Session) Votes() *VoteTracker { return s.votes }

// AssignedName returns the display identity the server assigned, once the
// identity push arrived.
func (s *Session) AssignedName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assigned
}

// Room returns the metadata fetched from the directory, if one was configured.
func (s *Session) Room() model.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// State returns the membership state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NotJoined
	}
	return s.state
}

// ConnState returns the transport state.
func (s *Session) ConnState() ConnState { return s.conn.State() }

// Connected reports whether the transport is live.
func (s *Session) Connected() bool { return s.conn.State() == Connected }

func (s *Session) reportError(err error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.log.Warn("session error", zap.Error(err))
	if cb := s.cfg.OnError; cb != nil {
		cb(err)
	}
}

// Close leaves the room best-effort, tears down the connection, invalidates
// all handlers, and clears the store so nothing can leak into the next room.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = NotJoined
	s.mu.Unlock()

	// best-effort; the connection may already be gone
	_ = s.conn.send(protocol.TypeLeaveRoom, protocol.LeaveRoom{RoomID: s.roomID})
	s.conn.close()
	s.store.Clear()
}

// Package room implements the realtime rooms behind the websocket endpoint:
// membership, message history, thread replies, vote tallies, and the AI
// auto-reply scheduling.
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spotchat/model"
	"spotchat/protocol"
	"spotchat/server/metrics"
)

const (
	sendBuffer       = 64
	memberWriteLimit = 10 * time.Second
)

// wsWriter is the subset of *websocket.Conn a member needs for its write pump.
type wsWriter interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
}

// Member is one registered connection in a room. All pushes to the peer go
// through the member's send channel; the write pump is the only writer on the
// websocket once the member exists.
type Member struct {
	name string
	ws   wsWriter
	send chan protocol.Envelope
	done chan struct{}
	once sync.Once

	// per-member vote guard, owned by the room mutex
	votes map[string]string
}

// Name returns the display identity assigned at join.
func (m *Member) Name() string { return m.name }

func (m *Member) push(env protocol.Envelope) {
	select {
	case <-m.done:
	case m.send <- env:
	default:
		// slow consumer; drop rather than block the room
	}
}

func (m *Member) stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *Member) writePump(log *zap.Logger) {
	for {
		select {
		case <-m.done:
			return
		case env := <-m.send:
			m.ws.SetWriteDeadline(time.Now().Add(memberWriteLimit))
			if err := m.ws.WriteJSON(env); err != nil {
				log.Debug("member write failed", zap.Error(err))
				return
			}
		}
	}
}

// Responder produces the assistant reply for a thread starter. The real text
// generation lives outside this server; CannedResponder stands in for
// deployments without one.
type Responder interface {
	Reply(starter model.Message) string
}

// Options configures a Manager.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Catalog resolves a room id to its metadata and tag catalog.
	Catalog func(roomID string) model.Room
	// Responder generates AI replies; nil disables them.
	Responder Responder
	// AIReplyDelay is how long after a thread starter the reply is posted.
	AIReplyDelay time.Duration
	// MaxMessageLength bounds accepted message bodies.
	MaxMessageLength int
}

// Manager owns all live rooms and creates them lazily on first use.
type Manager struct {
	opts Options
	log  *zap.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 500
	}
	return &Manager{
		opts:  opts,
		log:   opts.Logger,
		rooms: make(map[string]*Room),
	}
}

// GetRoom returns the live room for an id, creating it on first use.
func (m *Manager) GetRoom(roomID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.rooms[roomID]; ok {
		return r
	}

	meta := model.Room{ID: roomID}
	if m.opts.Catalog != nil {
		meta = m.opts.Catalog(roomID)
	}

	r := newRoom(roomID, meta, m.opts)
	m.rooms[roomID] = r
	m.log.Info("room created", zap.String("room", roomID))
	return r
}

// CloseAll shuts every room down: pending AI timers stopped, members released.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// Room is one location-scoped chat channel.
type Room struct {
	id         string
	meta       model.Room
	log        *zap.Logger
	metrics    *metrics.Metrics
	responder  Responder
	aiDelay    time.Duration
	maxMsgLen  int
	aiTags     map[string]struct{}
	threadTags map[string]struct{}

	mu       sync.RWMutex
	members  map[*Member]struct{}
	order    []*model.Message
	byID     map[string]*model.Message
	aiTimers map[string]*time.Timer
	closed   bool
}

func newRoom(id string, meta model.Room, opts Options) *Room {
	r := &Room{
		id:         id,
		meta:       meta,
		log:        opts.Logger.With(zap.String("room", id)),
		metrics:    opts.Metrics,
		responder:  opts.Responder,
		aiDelay:    opts.AIReplyDelay,
		maxMsgLen:  opts.MaxMessageLength,
		aiTags:     make(map[string]struct{}),
		threadTags: make(map[string]struct{}),
		members:    make(map[*Member]struct{}),
		byID:       make(map[string]*model.Message),
		aiTimers:   make(map[string]*time.Timer),
	}
	for _, t := range meta.AvailableTags {
		if t.EnableAIResponse {
			r.aiTags[t.Name] = struct{}{}
		}
		if t.EnableThreading {
			r.threadTags[t.Name] = struct{}{}
		}
	}
	return r
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Meta returns the room's metadata record.
func (r *Room) Meta() model.Room { return r.meta }

// Join registers a connection, assigns it an anonymous identity, and pushes
// the identity plus a full history snapshot to the joining member only.
func (r *Room) Join(ws wsWriter) *Member {
	m := &Member{
		name:  "anon-" + uuid.NewString()[:8],
		ws:    ws,
		send:  make(chan protocol.Envelope, sendBuffer),
		done:  make(chan struct{}),
		votes: make(map[string]string),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		m.stop()
		return m
	}
	r.members[m] = struct{}{}
	r.mu.Unlock()

	go m.writePump(r.log)
	r.metrics.ActiveConnections.Inc()
	r.log.Info("member joined", zap.String("username", m.name))

	r.Resync(m)
	return m
}

// Resync re-pushes the assigned identity and the full history snapshot. Used
// for the initial join and for a repeated join handshake on the same
// connection.
func (r *Room) Resync(m *Member) {
	r.mu.RLock()
	history := make(protocol.MessageHistory, 0, len(r.order))
	for _, msg := range r.order {
		history = append(history, *msg)
	}
	r.mu.RUnlock()

	if env, err := protocol.NewEnvelope(protocol.TypeAssignedUsername, m.name); err == nil {
		m.push(env)
	}
	if env, err := protocol.NewEnvelope(protocol.TypeMessageHistory, history); err == nil {
		m.push(env)
	}
}

// Leave releases a membership. Safe to call for members that already left.
func (r *Room) Leave(m *Member) {
	r.mu.Lock()
	_, ok := r.members[m]
	delete(r.members, m)
	r.mu.Unlock()

	if ok {
		m.stop()
		r.metrics.ActiveConnections.Dec()
		r.log.Info("member left", zap.String("username", m.name))
	}
}

// Close shuts the room down: AI timers stopped, all members released.
func (r *Room) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	for id, t := range r.aiTimers {
		t.Stop()
		delete(r.aiTimers, id)
	}
	members := make([]*Member, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	r.members = make(map[*Member]struct{})
	r.mu.Unlock()

	for _, m := range members {
		m.stop()
		r.metrics.ActiveConnections.Dec()
	}
}

func (r *Room) broadcast(env protocol.Envelope) {
	r.mu.RLock()
	members := make([]*Member, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	r.mu.RUnlock()

	for _, m := range members {
		m.push(env)
	}
}

// PushError pushes a protocol error event to one member.
func (r *Room) PushError(m *Member, reason string) {
	r.metrics.ProtocolErrors.Inc()
	if env, err := protocol.NewEnvelope(protocol.TypeError, reason); err == nil {
		m.push(env)
	}
}

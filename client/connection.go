package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spotchat/protocol"
)

// ConnState describes the transport lifecycle of a room connection.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	defaultBaseRetryDelay = 100 * time.Millisecond
	defaultMaxRetries     = 5
	writeTimeout          = 5 * time.Second
)

// conn owns exactly one logical websocket connection to a room endpoint and
// supervises it: dial with a fresh bearer token, read pump, automatic
// reconnect with exponential backoff, and teardown.
//
// Every dispatch is guarded by a generation counter: close bumps the
// generation, so callbacks registered for an abandoned connection become
// no-ops atomically and can never mutate state owned by a newer session.
type conn struct {
	url        string
	tokens     TokenProvider
	log        *zap.Logger
	baseDelay  time.Duration
	maxRetries int

	onEnvelope func(protocol.Envelope)
	onState    func(ConnState)
	onError    func(error)

	mu     sync.Mutex
	ws     *websocket.Conn
	state  ConnState
	gen    uint64
	closed bool

	// serializes writes; gorilla allows at most one concurrent writer
	writeMu sync.Mutex
}

func (c *conn) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.setState(Connecting)
	ws, err := c.dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.ws = ws
	gen := c.gen
	c.mu.Unlock()

	c.setState(Connected)
	go c.readPump(ws, gen)
	return nil
}

// dial obtains a fresh token and opens the websocket. Called for the initial
// connect and for every reconnect attempt.
func (c *conn) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.tokens != nil {
		token, err := c.tokens.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", c.url, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return ws, nil
}

func (c *conn) readPump(ws *websocket.Conn, gen uint64) {
	for {
		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if c.stale(gen) {
				return
			}
			c.log.Warn("connection dropped", zap.Error(err))
			c.reconnect(gen)
			return
		}
		if c.stale(gen) {
			return
		}
		if c.onEnvelope != nil {
			c.onEnvelope(env)
		}
	}
}

// reconnect redials with exponential backoff. On success the same generation
// keeps running, so the session's rejoin handshake is triggered through the
// Connected state change. Gives up after maxRetries and surfaces a single
// terminal error.
func (c *conn) reconnect(gen uint64) {
	c.setState(Reconnecting)

	delay := c.baseDelay
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		time.Sleep(delay)
		delay *= 2

		if c.stale(gen) {
			return
		}

		ws, err := c.dial(context.Background())
		if err != nil {
			c.log.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("max", c.maxRetries),
				zap.Error(err))
			continue
		}

		c.mu.Lock()
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.ws = ws
		c.mu.Unlock()

		c.setState(Connected)
		go c.readPump(ws, gen)
		return
	}

	c.setState(Disconnected)
	c.reportError(fmt.Errorf("reconnect to %s: gave up after %d attempts", c.url, c.maxRetries))
}

func (c *conn) send(typ string, payload any) error {
	c.mu.Lock()
	ws, state := c.ws, c.state
	c.mu.Unlock()

	if state != Connected || ws == nil {
		return ErrNotConnected
	}

	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteJSON(env)
}

// close tears the connection down. Idempotent. Bumping the generation
// invalidates all in-flight pumps and pending reconnects.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	ws := c.ws
	c.ws = nil
	c.state = Disconnected
	c.mu.Unlock()

	if ws != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
		c.writeMu.Unlock()
		ws.Close()
	}
}

func (c *conn) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed || c.gen != gen
}

func (c *conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) setState(s ConnState) {
	c.mu.Lock()
	if c.closed || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (c *conn) reportError(err error) {
	c.mu.Lock()
	cb := c.onError
	closed := c.closed
	c.mu.Unlock()
	if closed || cb == nil {
		return
	}
	cb(err)
}

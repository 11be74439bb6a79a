package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotchat/model"
	"spotchat/protocol"
	"spotchat/server/room"
)

// flakyServer accepts websocket connections, answers the join handshake, and
// drops the first connection right after it. Later connections stay open and
// carry one message in their history snapshot so the test can observe that the
// rejoin handshake ran.
type flakyServer struct {
	srv *httptest.Server

	mu      sync.Mutex
	dials   int
	headers []string
}

func newFlakyServer(t *testing.T) *flakyServer {
	t.Helper()

	f := &flakyServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.dials++
		n := f.dials
		f.headers = append(f.headers, r.Header.Get("Authorization"))
		f.mu.Unlock()

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil || env.Type != protocol.TypeJoinRoom {
			return
		}

		if out, err := protocol.NewEnvelope(protocol.TypeAssignedUsername, "anon-test"); err == nil {
			ws.WriteJSON(out)
		}
		history := []model.Message{}
		if n > 1 {
			history = append(history, model.Message{
				ID: "m1", RoomID: "r1", Username: "anon-test",
				Message: "survived the reconnect", Timestamp: time.Now().UTC(),
			})
		}
		if out, err := protocol.NewEnvelope(protocol.TypeMessageHistory, history); err == nil {
			ws.WriteJSON(out)
		}

		if n == 1 {
			return // drop the first connection
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *flakyServer) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *flakyServer) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *flakyServer) authHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.headers))
	copy(out, f.headers)
	return out
}

func TestConnectionReconnectsAndRejoins(t *testing.T) {
	f := newFlakyServer(t)

	var mu sync.Mutex
	var states []ConnState
	s, err := JoinRoom(context.Background(), Config{
		URL:            f.url(),
		BaseRetryDelay: 10 * time.Millisecond,
		OnConnState: func(cs ConnState) {
			mu.Lock()
			states = append(states, cs)
			mu.Unlock()
		},
	}, "r1")
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return f.dialCount() >= 2 },
		waitFor, 10*time.Millisecond, "dropped connection must be redialed")

	// the rejoin handshake ran on the new connection: the second snapshot
	// carried a message the first one did not
	require.Eventually(t, func() bool {
		return s.State() == Joined && s.Store().Len() == 1
	}, waitFor, 10*time.Millisecond)

	m, ok := s.Store().Message("m1")
	require.True(t, ok)
	assert.Equal(t, "survived the reconnect", m.Message)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, Reconnecting)
	assert.Equal(t, Connected, states[len(states)-1])
}

func TestConnectionFreshTokenPerDial(t *testing.T) {
	f := newFlakyServer(t)

	var mu sync.Mutex
	issued := 0
	tokens := TokenProviderFunc(func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		issued++
		return "tok-" + strings.Repeat("x", issued), nil
	})

	s, err := JoinRoom(context.Background(), Config{
		URL:            f.url(),
		Tokens:         tokens,
		BaseRetryDelay: 10 * time.Millisecond,
	}, "r1")
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return f.dialCount() >= 2 },
		waitFor, 10*time.Millisecond)

	headers := f.authHeaders()
	require.GreaterOrEqual(t, len(headers), 2)
	assert.Equal(t, "Bearer tok-x", headers[0])
	assert.Equal(t, "Bearer tok-xx", headers[1], "reconnect must not reuse the old token")
}

func TestConnectionGivesUpAfterMaxRetries(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	// httptest stops tracking a connection once it is hijacked by the
	// websocket upgrade, so CloseClientConnections/Close alone cannot sever
	// live sessions; track them here to cut them in the teardown below.
	var connMu sync.Mutex
	var hijacked []*websocket.Conn
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		connMu.Lock()
		hijacked = append(hijacked, ws)
		connMu.Unlock()

		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil || env.Type != protocol.TypeJoinRoom {
			return
		}
		if out, err := protocol.NewEnvelope(protocol.TypeAssignedUsername, "anon-test"); err == nil {
			ws.WriteJSON(out)
		}
		if out, err := protocol.NewEnvelope(protocol.TypeMessageHistory, []model.Message{}); err == nil {
			ws.WriteJSON(out)
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))

	var mu sync.Mutex
	var terminal error
	s, err := JoinRoom(context.Background(), Config{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		BaseRetryDelay: 5 * time.Millisecond,
		MaxRetries:     3,
		OnError: func(e error) {
			mu.Lock()
			if terminal == nil {
				terminal = e
			}
			mu.Unlock()
		},
	}, "r1")
	require.NoError(t, err)
	defer s.Close()
	joined(t, s)

	// take the whole server away so every redial is refused
	srv.CloseClientConnections()
	srv.Close()
	connMu.Lock()
	for _, ws := range hijacked {
		ws.Close()
	}
	connMu.Unlock()

	require.Eventually(t, func() bool {
		return s.ConnState() == Disconnected
	}, waitFor, 10*time.Millisecond, "exhausted retries must settle in Disconnected")

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, terminal)
	assert.Contains(t, terminal.Error(), "gave up")
}

func TestConnectionJoinRespectsContext(t *testing.T) {
	url := testServer(t, room.Options{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := JoinRoom(ctx, Config{URL: url}, "r1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectionSendAfterCloseFails(t *testing.T) {
	url := testServer(t, room.Options{}, false)

	s, err := JoinRoom(context.Background(), Config{URL: url}, "r1")
	require.NoError(t, err)
	joined(t, s)

	s.Close()
	assert.ErrorIs(t, s.SendMessage("late", nil, ""), ErrNotJoined)
	assert.Equal(t, Disconnected, s.ConnState())
}

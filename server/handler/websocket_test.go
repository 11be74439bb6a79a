package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spotchat/model"
	"spotchat/protocol"
	"spotchat/server/config"
	"spotchat/server/room"
)

func newChatServer(t *testing.T, requireVerification bool) string {
	t.Helper()

	manager := room.NewManager(room.Options{Catalog: config.Default().Room})
	t.Cleanup(manager.CloseAll)

	r := mux.NewRouter()
	r.HandleFunc("/chat/{roomId}", HandleWebSocket(manager, zap.NewNop(), requireVerification))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/r1"
}

func dialAndJoin(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()

	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	env, err := protocol.NewEnvelope(protocol.TypeJoinRoom, protocol.JoinRoom{
		RoomID: "r1", VerificationToken: token,
	})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(env))

	var got protocol.Envelope
	require.NoError(t, ws.ReadJSON(&got))
	require.Equal(t, protocol.TypeAssignedUsername, got.Type)
	require.NoError(t, ws.ReadJSON(&got))
	require.Equal(t, protocol.TypeMessageHistory, got.Type)
	return ws
}

// A joined member that keeps re-sending rejected join_room frames must get its
// error events through the member pump, the only writer on the socket, even
// while broadcasts from other members are in flight.
func TestRejoinRejectionDuringBroadcasts(t *testing.T) {
	url := newChatServer(t, true)

	a := dialAndJoin(t, url, "tok")
	b := dialAndJoin(t, url, "tok")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			env, err := protocol.NewEnvelope(protocol.TypeSendMessage, protocol.SendMessage{
				RoomID: "r1", Message: fmt.Sprintf("msg %d", i), Tags: []string{},
			})
			if err != nil || b.WriteJSON(env) != nil {
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		env, err := protocol.NewEnvelope(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "r1"})
		require.NoError(t, err)
		require.NoError(t, a.WriteJSON(env))
	}
	<-done

	sawError, sawMessage := false, false
	for !sawError || !sawMessage {
		require.NoError(t, a.SetReadDeadline(time.Now().Add(3*time.Second)))
		var env protocol.Envelope
		require.NoError(t, a.ReadJSON(&env))
		switch env.Type {
		case protocol.TypeError:
			var reason string
			require.NoError(t, env.Decode(&reason))
			assert.Equal(t, "verification token required", reason)
			sawError = true
		case protocol.TypeNewMessage:
			sawMessage = true
		}
	}
}

func TestJoinWithBadPayloadAfterMembership(t *testing.T) {
	url := newChatServer(t, false)
	ws := dialAndJoin(t, url, "")

	// payload that cannot decode into a join request
	require.NoError(t, ws.WriteJSON(protocol.Envelope{
		Type: protocol.TypeJoinRoom, Data: json.RawMessage(`"not an object"`),
	}))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env protocol.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	require.Equal(t, protocol.TypeError, env.Type)

	// the connection survives the rejection
	out, err := protocol.NewEnvelope(protocol.TypeSendMessage, protocol.SendMessage{
		RoomID: "r1", Message: "still here", Tags: []string{},
	})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(out))
	require.NoError(t, ws.ReadJSON(&env))
	require.Equal(t, protocol.TypeNewMessage, env.Type)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "UP", resp.Status)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestHandleRoomInfo(t *testing.T) {
	manager := room.NewManager(room.Options{Catalog: config.Default().Room})
	t.Cleanup(manager.CloseAll)

	r := mux.NewRouter()
	r.HandleFunc("/rooms/{roomId}", HandleRoomInfo(manager)).Methods("GET")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/lobby", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Room
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "lobby", got.ID)
	require.NotEmpty(t, got.AvailableTags)
	assert.Equal(t, model.DefaultAITag, got.AvailableTags[0].Name)
}

package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"spotchat/protocol"
	"spotchat/server/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades /chat/{roomId} and runs the per-connection read
// loop. Membership is only established by an explicit join_room handshake,
// which clients repeat after every reconnect.
func HandleWebSocket(manager *room.Manager, log *zap.Logger, requireVerification bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomId"]
		if roomID == "" {
			http.Error(w, "Room ID is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		clog := log.With(
			zap.String("room", roomID),
			zap.String("remote", conn.RemoteAddr().String()))
		rm := manager.GetRoom(roomID)

		var m *room.Member
		defer func() {
			if m != nil {
				rm.Leave(m)
			}
		}()

		// Before the member exists this loop is the only writer on the
		// connection and may write directly; afterwards the member's pump is
		// the sole writer and every rejection must go through it.
		reject := func(reason string) {
			if m != nil {
				rm.PushError(m, reason)
				return
			}
			env, err := protocol.NewEnvelope(protocol.TypeError, reason)
			if err != nil {
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				clog.Debug("pre-join error write failed", zap.Error(err))
			}
		}

		for {
			var env protocol.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					clog.Debug("connection closed", zap.Error(err))
				}
				return
			}

			switch env.Type {
			case protocol.TypeJoinRoom:
				var req protocol.JoinRoom
				if err := env.Decode(&req); err != nil {
					reject("invalid join_room payload")
					continue
				}
				if requireVerification && req.VerificationToken == "" {
					reject("verification token required")
					continue
				}
				if m == nil {
					m = rm.Join(conn)
					clog.Info("join handshake complete", zap.String("username", m.Name()))
				} else {
					rm.Resync(m)
				}

			case protocol.TypeLeaveRoom:
				if m != nil {
					rm.Leave(m)
					m = nil
				}

			case protocol.TypeSendMessage:
				if m == nil {
					reject("join the room before sending")
					continue
				}
				var req protocol.SendMessage
				if err := env.Decode(&req); err != nil {
					rm.PushError(m, "invalid send_message payload")
					continue
				}
				if req.RoomID != "" && req.RoomID != roomID {
					rm.PushError(m, "message addressed to a different room")
					continue
				}
				if err := rm.PostMessage(m, req); err != nil {
					rm.PushError(m, err.Error())
				}

			case protocol.TypeVoteMessage:
				if m == nil {
					reject("join the room before voting")
					continue
				}
				var req protocol.VoteMessage
				if err := env.Decode(&req); err != nil {
					rm.PushError(m, "invalid vote_message payload")
					continue
				}
				if err := rm.Vote(m, req); err != nil {
					rm.PushError(m, err.Error())
				}

			case protocol.TypeGetThreadMessages:
				if m == nil {
					reject("join the room before requesting threads")
					continue
				}
				var req protocol.GetThreadMessages
				if err := env.Decode(&req); err != nil {
					rm.PushError(m, "invalid get_thread_messages payload")
					continue
				}
				if err := rm.ThreadMessages(m, req); err != nil {
					rm.PushError(m, err.Error())
				}

			default:
				reject("unknown message type " + env.Type)
			}
		}
	}
}

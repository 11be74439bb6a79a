package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"spotchat/server/room"
)

// HandleRoomInfo serves the room metadata record, including the tag catalog
// the client uses to drive tagging and AI-pending derivation. This sits
// outside the realtime protocol and is fetched once on room entry. Resolving
// through the manager means the answer always matches the catalog the live
// room was built with.
func HandleRoomInfo(manager *room.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomId"]
		if roomID == "" {
			http.Error(w, "Room ID is required", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manager.GetRoom(roomID).Meta())
	}
}

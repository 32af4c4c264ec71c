package api

import (
	"encoding/json"
	"net/http"

	"gridkeep/internal/game"
	"gridkeep/internal/logging"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.L().Warnf("⚠️ Failed to encode response: %v", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth returns basic liveness info.
func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRooms returns every room's listing info.
func (h *routerHandlers) handleListRooms(w http.ResponseWriter, r *http.Request) {
	infos := h.manager.List()

	participants := 0
	for _, info := range infos {
		participants += info.Participants
	}
	UpdateRoomGauges(len(infos), participants)

	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": infos,
		"count": len(infos),
	})
}

// createRoomRequest is the POST /api/rooms body.
type createRoomRequest struct {
	GameID   string `json:"gameId"`
	Private  bool   `json:"private"`
	Password string `json:"password"`
}

// handleCreateRoom opens a room ahead of any WebSocket join, optionally
// locked behind a secret. Creating an id that already exists returns the
// existing room's info unchanged.
func (h *routerHandlers) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GameID == "" {
		writeError(w, http.StatusBadRequest, "gameId is required")
		return
	}
	if req.Private && req.Password == "" {
		writeError(w, http.StatusBadRequest, "private rooms require a password")
		return
	}

	room, err := h.manager.GetOrCreate(game.RoomOptions{
		GameID:   req.GameID,
		Private:  req.Private,
		Password: req.Password,
	})
	if err != nil {
		logging.L().Warnf("⚠️ Room creation failed for %s: %v", req.GameID, err)
		writeError(w, http.StatusInternalServerError, "room creation failed")
		return
	}

	writeJSON(w, http.StatusOK, room.Info())
}

// handleGetRoom returns one room's listing info.
func (h *routerHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("game")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "game is required")
		return
	}
	room := h.manager.Get(gameID)
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, room.Info())
}

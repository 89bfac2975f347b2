package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mcdev12/econgame/go/internal/game"
	"github.com/rs/zerolog/log"
)

// StateProvider exposes the current game for read-only views
type StateProvider interface {
	GameSnapshot() game.GameSnapshot
}

// StateHandler handles HTTP requests for game state
type StateHandler struct {
	stateProvider StateProvider
}

// NewStateHandler creates a new state handler
func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{
		stateProvider: provider,
	}
}

// HandleGetGameState handles GET /api/game/state
func (h *StateHandler) HandleGetGameState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.stateProvider.GameSnapshot()); err != nil {
		log.Error().Err(err).Msg("failed to encode game state response")
	}
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/game/state", h.HandleGetGameState)
}

package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for every role
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	instructorKey     string
}

// NewWebSocketHandler creates a new WebSocket handler. An empty
// instructorKey lets anyone connect as instructor.
func NewWebSocketHandler(cm *ConnectionManager, instructorKey string) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		instructorKey:     instructorKey,
	}
}

// HandleRole returns a handler that upgrades connections for a fixed role.
func (h *WebSocketHandler) HandleRole(role Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.connect(w, r, role)
	}
}

// HandleConnection upgrades a connection whose role comes from ?role=.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	role, ok := ParseRole(r.URL.Query().Get("role"))
	if !ok {
		http.Error(w, "role must be player, instructor or screen", http.StatusBadRequest)
		return
	}
	h.connect(w, r, role)
}

func (h *WebSocketHandler) connect(w http.ResponseWriter, r *http.Request, role Role) {
	if role == RoleInstructor && !h.authorized(r) {
		log.Warn().Str("remote_addr", r.RemoteAddr).Msg("rejected instructor connection with bad key")
		http.Error(w, "invalid instructor key", http.StatusForbidden)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, role); err != nil {
		// The upgrader has already replied to the client.
		log.Error().
			Err(err).
			Str("role", string(role)).
			Msg("failed to upgrade WebSocket connection")
	}
}

func (h *WebSocketHandler) authorized(r *http.Request) bool {
	if h.instructorKey == "" {
		return true
	}
	key := r.URL.Query().Get("key")
	return subtle.ConstantTimeCompare([]byte(key), []byte(h.instructorKey)) == 1
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/player", h.HandleRole(RolePlayer))
	mux.HandleFunc("/ws/instructor", h.HandleRole(RoleInstructor))
	mux.HandleFunc("/ws/screen", h.HandleRole(RoleScreen))
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

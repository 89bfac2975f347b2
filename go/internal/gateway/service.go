package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the session gateway: WebSocket connections, message dispatch and
// event delivery.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	sessions          *Sessions
}

// Config holds configuration for the gateway service
type Config struct {
	Connection    ConnectionConfig `yaml:"connection"`
	InstructorKey string           `yaml:"instructor_key"`
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		Connection: DefaultConnectionConfig(),
	}
}

// NewService wires the gateway around an existing connection manager. The
// manager is created first because the engine broadcasts through it.
func NewService(config Config, cm *ConnectionManager, engine Engine) *Service {
	sessions := NewSessions(engine, cm)
	cm.SetHandler(sessions)

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, config.InstructorKey),
		stateHandler:      NewStateHandler(engine),
		sessions:          sessions,
	}
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("gateway service stopped")
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// Stats returns statistics about the gateway service
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

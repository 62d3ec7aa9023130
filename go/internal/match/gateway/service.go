package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the match gateway: WebSocket command surface, REST companion
// endpoints, and room broadcasting. It implements match.Broadcaster
// through its connection manager.
type Service struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
	wsHandler         *WebSocketHandler
	restHandler       *RestHandler
}

// Config holds configuration for the match gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the match gateway.
func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// CoreWithCreate is the full application surface the gateway wires up.
type CoreWithCreate interface {
	Core
	MatchCreator
	Membership
}

// NewService creates a new match gateway service. The returned service's
// Manager must be handed to the core as its broadcaster before commands
// flow.
func NewService(config Config, core CoreWithCreate, verifier CredentialVerifier) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig, core)
	dispatcher := NewDispatcher(core, verifier, connectionManager)
	return &Service{
		connectionManager: connectionManager,
		dispatcher:        dispatcher,
		wsHandler:         NewWebSocketHandler(connectionManager),
		restHandler:       NewRestHandler(core, core, verifier),
	}
}

// Manager exposes the connection manager for broadcaster wiring.
func (s *Service) Manager() *ConnectionManager {
	return s.connectionManager
}

// Start begins the gateway service and blocks until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting match gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("match gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.restHandler.RegisterRoutes(mux)
	log.Info().Msg("match gateway routes registered")
}

package main

import (
	"context"
	"database/sql"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/echoplay/echoplay/go/clients/authapi"
	"github.com/echoplay/echoplay/go/clients/liveaudio"
	"github.com/echoplay/echoplay/go/internal/coach"
	"github.com/echoplay/echoplay/go/internal/match"
	"github.com/echoplay/echoplay/go/internal/match/events"
	"github.com/echoplay/echoplay/go/internal/match/gateway"
	"github.com/echoplay/echoplay/go/internal/match/repository"
)

type Services struct {
	Match     *match.App
	Gateway   *gateway.Service
	Publisher events.Publisher
}

func setupServices(ctx context.Context, database *sql.DB, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Gateway layer

	matchRepo := repository.NewRepository(database)
	rooms := liveaudio.NewClient(config.LiveAudio)
	verifier := authapi.NewClient(config.Auth)
	evaluator := coach.NewHeuristicEvaluator()

	publisher := setupPublisher(ctx, config)

	// The app broadcasts through the gateway and the gateway dispatches
	// into the app, so the broadcaster is bound through a relay after
	// both exist.
	relay := &broadcastRelay{}
	matchApp := match.NewApp(
		matchRepo,
		rooms,
		evaluator,
		relay,
		publisher,
		clockwork.NewRealClock(),
		config.matchSettings(),
	)

	gatewayService := gateway.NewService(gateway.DefaultConfig(), matchApp, verifier)
	relay.bind(gatewayService.Manager())

	return &Services{
		Match:     matchApp,
		Gateway:   gatewayService,
		Publisher: publisher,
	}, nil
}

func setupPublisher(ctx context.Context, config *Config) events.Publisher {
	if config.NATS.URL == "" {
		log.Info().Msg("NATS not configured, event publishing disabled")
		return events.NoopPublisher{}
	}
	publisher, err := events.NewNATSPublisher(ctx, config.natsConfig())
	if err != nil {
		log.Warn().Err(err).Msg("could not connect to NATS, event publishing disabled")
		return events.NoopPublisher{}
	}
	return publisher
}

// broadcastRelay defers broadcaster binding until the gateway exists.
type broadcastRelay struct {
	mu     sync.RWMutex
	target match.Broadcaster
}

func (r *broadcastRelay) bind(target match.Broadcaster) {
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
}

func (r *broadcastRelay) Broadcast(matchID uuid.UUID, ev *events.Event) {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()
	if target != nil {
		target.Broadcast(matchID, ev)
	}
}

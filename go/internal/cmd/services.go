package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/econgame/go/internal/eventbus"
	"github.com/mcdev12/econgame/go/internal/game"
	"github.com/mcdev12/econgame/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Engine    *game.Engine
	Gateway   *gateway.Service
	Publisher *eventbus.Publisher
}

func setupServices(ctx context.Context, config Config) (*Services, error) {
	// Connection manager → (event mirror) → engine → gateway
	cm := gateway.NewConnectionManager(config.Gateway.Connection)

	services := &Services{}
	var mirror eventbus.Mirror
	if config.NATS.Enabled() {
		publisher, err := eventbus.NewPublisher(config.NATS)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		if err := publisher.Start(ctx); err != nil {
			publisher.Close()
			return nil, fmt.Errorf("failed to start event publisher: %w", err)
		}
		services.Publisher = publisher
		mirror = publisher
	} else {
		log.Info().Msg("NATS_URL not set, event mirror disabled")
	}

	engine, err := game.NewEngine(config.Game, eventbus.NewTee(cm, mirror))
	if err != nil {
		services.Close()
		return nil, fmt.Errorf("failed to create game engine: %w", err)
	}
	services.Engine = engine

	services.Gateway = gateway.NewService(config.Gateway, cm, engine)
	go services.Gateway.Start(ctx)

	return services, nil
}

func (s *Services) Close() {
	if s.Engine != nil {
		s.Engine.Shutdown()
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}
}

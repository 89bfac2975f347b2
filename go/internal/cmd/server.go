package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/econgame/go/internal/eventbus"
	"github.com/mcdev12/econgame/go/internal/gateway"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(config Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	setupHealthCheck(mux)
	setupInfo(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

type serviceInfo struct {
	Service     string                  `json:"service"`
	Phase       string                  `json:"phase"`
	Round       int                     `json:"round"`
	Connections gateway.ConnectionStats `json:"connections"`
	Mirror      *eventbus.Stats         `json:"mirror,omitempty"`
}

func setupInfo(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		info := serviceInfo{
			Service:     "econgame",
			Phase:       string(services.Engine.Phase()),
			Round:       services.Engine.Round(),
			Connections: services.Gateway.Stats(),
		}
		if services.Publisher != nil {
			stats := services.Publisher.Stats()
			info.Mirror = &stats
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to encode service info")
		}
	})
}

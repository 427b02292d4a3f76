// Package server provides the public entry point for initializing the
// AgentDeck control plane. It lives in pkg/ so deployments can compose
// the server with their own middleware around the handler.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/agentdeck/agentdeck/internal/api"
	"github.com/agentdeck/agentdeck/internal/api/handlers"
	"github.com/agentdeck/agentdeck/internal/auth"
	"github.com/agentdeck/agentdeck/internal/catalog"
	"github.com/agentdeck/agentdeck/internal/chat"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/livesync"
	"github.com/agentdeck/agentdeck/internal/retention"
	"github.com/agentdeck/agentdeck/internal/runtime"
	"github.com/agentdeck/agentdeck/internal/scheduler"
	"github.com/agentdeck/agentdeck/internal/store"
	"github.com/agentdeck/agentdeck/internal/telemetry"
)

// Server holds the initialized AgentDeck control plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store backing everything.
	Store store.Store

	// Broker fans conversation snapshots out to live subscribers.
	Broker *livesync.Broker

	// Sessions tracks open chat panel sessions.
	Sessions *chat.Manager

	// Runner is the scheduled-task loop; nil when disabled.
	Runner *scheduler.Runner

	// Janitor is the retention sweep; nil when disabled.
	Janitor *retention.Janitor

	// Config is the loaded configuration.
	Config *config.Config

	// ShutdownFunc flushes telemetry on graceful shutdown.
	ShutdownFunc func(context.Context) error
}

// New initializes all components and returns a ready Server. The
// store backend follows the configuration: Postgres when a database
// URL is set, the snapshot-backed memory store otherwise.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the control plane with an explicit
// configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		dataStore = pg
		log.Info().Msg("PostgreSQL store initialized")
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("in-memory store initialized")
	}

	broker := livesync.NewBroker()
	cat := catalog.New()
	sessions := chat.NewManager(dataStore, broker)

	dispatcher := runtime.NewDispatcher(dataStore, broker, cfg.Runtime.WebhookURL, cfg.Runtime.Secret)
	orch := chat.NewOrchestrator(dataStore, broker, dispatcher)

	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.RefreshSecret, cfg.Auth.Issuer)
	chain := auth.NewProviderChain()
	chain.Register(auth.NewJWTProvider(tokens))
	chain.Register(auth.NewRuntimeProvider(cfg.Auth.RuntimeSecret))

	ws := &livesync.WSHandler{
		Store:  dataStore,
		Broker: broker,
		Validate: func(token string) (string, error) {
			claims, err := tokens.ValidateAccess(token)
			if err != nil {
				return "", err
			}
			return claims.UserID, nil
		},
	}

	var runner *scheduler.Runner
	if cfg.Scheduler.Enabled {
		interval := time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
		runner = scheduler.NewRunner(dataStore, dispatcher, interval)
	}

	var janitor *retention.Janitor
	if cfg.Retention.Enabled {
		interval := time.Duration(cfg.Retention.IntervalMinutes) * time.Minute
		janitor = retention.NewJanitor(dataStore, interval, cfg.Retention.TaskRetentionDays)
		if cfg.Retention.ArchiveDir != "" {
			janitor.SetArchiver(retention.NewLocalFileArchiver(cfg.Retention.ArchiveDir, cfg.Retention.CompressArchive))
		}
	}

	h := handlers.New(dataStore, orch, sessions, cat, tokens, cfg.Version)
	router := api.NewRouter(cfg, h, chain, ws)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Broker:       broker,
		Sessions:     sessions,
		Runner:       runner,
		Janitor:      janitor,
		Config:       cfg,
		ShutdownFunc: shutdown,
	}, nil
}

// Close tears down sessions, the broker, and the store.
func (s *Server) Close() {
	s.Sessions.CloseAll()
	s.Broker.Close()
	if err := s.Store.Close(); err != nil {
		log.Warn().Err(err).Msg("store close failed")
	}
}

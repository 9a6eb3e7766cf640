package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"walink/internal/api"
	"walink/internal/config"
	"walink/internal/coordinator"
	"walink/internal/gateway"
	"walink/internal/journal"
	"walink/internal/store"
	"walink/internal/uihub"
)

// Application wires all components together.
// Initialization follows dependency order:
// Journal → Store → Hub → Gateway → Coordinator → API → HTTP.
type Application struct {
	config      *config.Config
	journal     *journal.Manager
	store       *store.Store
	hub         *uihub.Hub
	gatewayFeed *gateway.Feed
	coordinator *coordinator.Coordinator
	apiServer   *api.Server
	httpServer  *http.Server
	feedCancel  context.CancelFunc
	log         zerolog.Logger
}

// NewApplication creates an application instance with all components
// initialized but not yet running.
func NewApplication(cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	journalManager, err := journal.NewManager(journal.Config{
		Path: cfg.Journal.Path,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	sessionStore := store.New()

	verifier := api.NewTokenVerifier(cfg.Auth.JWTSecret, logger)
	hub := uihub.NewHub(verifier.VerifyRequest, logger)

	gatewayClient, err := gateway.NewClient(gateway.ClientConfig{
		BaseURL: cfg.Gateway.BaseURL,
		Token:   cfg.Gateway.Token,
		Timeout: cfg.Gateway.Timeout,
	}, logger)
	if err != nil {
		journalManager.Close()
		return nil, fmt.Errorf("failed to initialize gateway client: %w", err)
	}

	feed, err := gateway.NewFeed(gateway.FeedConfig{
		URL:   cfg.Gateway.EventsURL,
		Token: cfg.Gateway.Token,
	}, logger)
	if err != nil {
		journalManager.Close()
		return nil, fmt.Errorf("failed to initialize gateway feed: %w", err)
	}

	coord := coordinator.New(sessionStore, gatewayClient, journalManager, hub, feed, coordinator.Config{
		RefreshInterval: cfg.Refresh.Interval,
	}, logger)

	// The hub publishes coordinator state and seeds new tabs from it.
	hub.SetSource(coord)

	apiServer := api.NewServer(coord, journalManager, hub, verifier, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", hub.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		journal:     journalManager,
		store:       sessionStore,
		hub:         hub,
		gatewayFeed: feed,
		coordinator: coord,
		apiServer:   apiServer,
		httpServer:  httpServer,
		log:         logger.With().Str("component", "app").Logger(),
	}, nil
}

// Start begins execution: the gateway feed first so no push events are
// missed, then the coordinator, then the HTTP server.
func (app *Application) Start(ctx context.Context) error {
	app.log.Info().Str("addr", app.httpServer.Addr).Msg("starting walink")

	feedCtx, cancel := context.WithCancel(context.Background())
	app.feedCancel = cancel
	go func() {
		if err := app.gatewayFeed.Run(feedCtx); err != nil {
			app.log.Error().Err(err).Msg("gateway feed stopped")
		}
	}()

	if err := app.coordinator.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.coordinator.Stop()
		cancel()
		return err
	case <-time.After(100 * time.Millisecond):
		app.log.Info().Msg("walink started")
		return nil
	case <-ctx.Done():
		app.coordinator.Stop()
		cancel()
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order:
// HTTP → Coordinator → Feed → Journal.
func (app *Application) Stop(ctx context.Context) error {
	app.log.Info().Msg("shutting down walink")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.log.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	if err := app.coordinator.Stop(); err != nil {
		app.log.Warn().Err(err).Msg("coordinator shutdown error")
	}

	if app.feedCancel != nil {
		app.feedCancel()
	}

	if err := app.journal.Close(); err != nil {
		app.log.Warn().Err(err).Msg("journal shutdown error")
	}

	app.log.Info().Msg("walink shutdown complete")
	return nil
}

// Addr returns the HTTP server address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}

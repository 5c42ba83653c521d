// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tutorhub/internal/api"
	"tutorhub/internal/config"
	"tutorhub/internal/directory"
	"tutorhub/internal/helpqueue"
	"tutorhub/internal/hub"
	"tutorhub/internal/notifier"
	"tutorhub/internal/router"
	"tutorhub/internal/store"
	"tutorhub/internal/websocket"
)

// Application coordinates every component. Initialization follows dependency
// order: store, routing state, router, hub, handlers, HTTP server.
type Application struct {
	config        *config.Config
	profileStore  *store.SQLiteStore
	messageRouter *router.Router
	messageHub    *hub.Hub
	apiServer     *api.Server
	httpServer    *http.Server
}

// NewApplication builds a fully wired application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	profileStore, err := store.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	alerts := notifier.New(cfg.Notifier)
	messageRouter := router.NewRouter(directory.NewDirectory(), helpqueue.NewQueue(), profileStore, alerts)
	messageHub := hub.NewHub(messageRouter)
	apiServer := api.NewServer(messageRouter, profileStore)
	wsHandler := websocket.NewHandler(messageHub, messageRouter, profileStore, cfg.WebSocket)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:        cfg,
		profileStore:  profileStore,
		messageRouter: messageRouter,
		messageHub:    messageHub,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

// Start launches the hub and the HTTP server. The hub starts first so
// messages can be processed the moment a connection is accepted.
func (app *Application) Start(ctx context.Context) error {
	slog.Info("starting tutorhub", "addr", app.httpServer.Addr)

	if err := app.messageHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.messageHub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		slog.Info("tutorhub started")
		return nil
	case <-ctx.Done():
		_ = app.messageHub.Stop()
		return ctx.Err()
	}
}

// Stop shuts everything down in reverse dependency order.
func (app *Application) Stop(ctx context.Context) error {
	slog.Info("shutting down tutorhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	if err := app.messageHub.Stop(); err != nil {
		slog.Error("message hub shutdown error", "error", err)
	}
	if err := app.profileStore.Close(); err != nil {
		slog.Error("store shutdown error", "error", err)
	}

	slog.Info("tutorhub shutdown complete")
	return nil
}

// GetAddr returns the listen address.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}

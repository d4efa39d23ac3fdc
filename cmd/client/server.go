package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/config"
	"jan-server/services/chat-client/internal/domain/chat"
	"jan-server/services/chat-client/internal/domain/conversation"
	"jan-server/services/chat-client/internal/domain/retry"
	"jan-server/services/chat-client/internal/infrastructure/logger"
	"jan-server/services/chat-client/internal/infrastructure/observability"
	"jan-server/services/chat-client/internal/infrastructure/persistence"
	"jan-server/services/chat-client/internal/infrastructure/pushchannel"
	"jan-server/services/chat-client/internal/infrastructure/streamapi"
	"jan-server/services/chat-client/internal/interfaces/httpserver"
)

// Application holds the main application components.
type Application struct {
	httpServer *httpserver.HttpServer
	controller *chat.Controller
	pushClient *pushchannel.Client
	log        zerolog.Logger
}

// NewApplication creates a new application instance.
func NewApplication(
	httpServer *httpserver.HttpServer,
	controller *chat.Controller,
	pushClient *pushchannel.Client,
	log zerolog.Logger,
) *Application {
	return &Application{
		httpServer: httpServer,
		controller: controller,
		pushClient: pushClient,
		log:        log,
	}
}

// Start runs the application. The push subscription and the controller loop
// run alongside the HTTP server; the server blocking until context
// cancellation is what keeps the process alive.
func (a *Application) Start(ctx context.Context) error {
	go func() {
		if err := a.pushClient.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("push channel terminated")
		}
	}()
	go func() {
		if err := a.controller.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error().Err(err).Msg("controller loop terminated")
		}
	}()

	return a.httpServer.Run(ctx)
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Setup observability
	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	// Initialize transport clients
	streamClient := streamapi.NewClient(cfg.StreamAPIURL, cfg.ConnectTimeout, log)
	persistClient := persistence.NewClient(cfg.PersistenceAPIURL, log)
	pushClient := pushchannel.NewClient(cfg.PushChannelURL, cfg.UserID, reconnectPolicy(cfg), log)

	// Initialize conversation state and the controller
	manager := conversation.NewManager(log)
	controller := chat.NewController(
		manager,
		streamClient,
		pushClient,
		persistClient,
		sendPolicy(cfg),
		cfg.UserID,
		log,
	)

	// Initialize HTTP server
	httpServer := httpserver.New(cfg, log, controller)

	app := NewApplication(httpServer, controller, pushClient, log)

	log.Info().
		Str("service", cfg.ServiceName).
		Int("port", cfg.HTTPPort).
		Str("environment", cfg.Environment).
		Str("user_id", cfg.UserID).
		Msg("starting application")

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// sendPolicy derives the bounded send policy from configuration.
func sendPolicy(cfg *config.Config) retry.Policy {
	policy := retry.SendPolicy()
	policy.MaxRetries = cfg.SendMaxRetries
	if cfg.SendRetryDelay > 0 {
		policy.InitialDelay = cfg.SendRetryDelay
	}
	return policy
}

// reconnectPolicy derives the push-channel reconnect policy from
// configuration.
func reconnectPolicy(cfg *config.Config) retry.Policy {
	policy := retry.ReconnectPolicy()
	policy.MaxRetries = cfg.PushReconnectRetries
	if cfg.PushReconnectDelay > 0 {
		policy.InitialDelay = cfg.PushReconnectDelay
	}
	return policy
}

func loadEnvFiles() {
	paths := []string{".env", "../.env", "../../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}

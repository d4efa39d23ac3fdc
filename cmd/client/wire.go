//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/config"
	"jan-server/services/chat-client/internal/domain/chat"
	"jan-server/services/chat-client/internal/domain/conversation"
	"jan-server/services/chat-client/internal/infrastructure/persistence"
	"jan-server/services/chat-client/internal/infrastructure/pushchannel"
	"jan-server/services/chat-client/internal/infrastructure/streamapi"
	"jan-server/services/chat-client/internal/interfaces/httpserver"
	"jan-server/services/chat-client/internal/interfaces/httpserver/handlers"
)

// ProviderSet is the wire provider set for the application.
var ProviderSet = wire.NewSet(
	// Infrastructure providers
	ProvideStreamAPI,
	ProvidePushClient,
	ProvidePushSource,
	ProvidePersistenceAPI,

	// Domain providers
	conversation.NewManager,
	ProvideController,
	ProvideChatService,

	// Interface providers
	httpserver.New,

	// Application
	NewApplication,
)

// ProvideStreamAPI provides the streaming endpoint client.
func ProvideStreamAPI(cfg *config.Config, log zerolog.Logger) chat.StreamAPI {
	return streamapi.NewClient(cfg.StreamAPIURL, cfg.ConnectTimeout, log)
}

// ProvidePushClient provides the push-channel subscriber.
func ProvidePushClient(cfg *config.Config, log zerolog.Logger) *pushchannel.Client {
	return pushchannel.NewClient(cfg.PushChannelURL, cfg.UserID, reconnectPolicy(cfg), log)
}

// ProvidePushSource exposes the push client as an event source.
func ProvidePushSource(client *pushchannel.Client) chat.PushSource {
	return client
}

// ProvidePersistenceAPI provides the persistence client.
func ProvidePersistenceAPI(cfg *config.Config, log zerolog.Logger) chat.PersistenceAPI {
	return persistence.NewClient(cfg.PersistenceAPIURL, log)
}

// ProvideController provides the chat controller.
func ProvideController(
	manager *conversation.Manager,
	stream chat.StreamAPI,
	push chat.PushSource,
	persist chat.PersistenceAPI,
	cfg *config.Config,
	log zerolog.Logger,
) *chat.Controller {
	return chat.NewController(manager, stream, push, persist, sendPolicy(cfg), cfg.UserID, log)
}

// ProvideChatService exposes the controller as the HTTP service surface.
func ProvideChatService(controller *chat.Controller) handlers.Service {
	return controller
}

// CreateApplication creates the application with all dependencies wired.
func CreateApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	wire.Build(ProviderSet)
	return nil, nil
}

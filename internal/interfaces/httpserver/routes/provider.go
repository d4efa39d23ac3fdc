// Package routes wires the HTTP handlers onto the gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/interfaces/httpserver/handlers"
	v1 "jan-server/services/chat-client/internal/interfaces/httpserver/routes/v1"
)

// Provider holds all route providers.
type Provider struct {
	V1 *v1.Routes
}

// NewProvider creates a new route provider.
func NewProvider(handlerProvider *handlers.Provider, log zerolog.Logger) *Provider {
	return &Provider{
		V1: v1.NewRoutes(handlerProvider, log),
	}
}

// Register registers all routes on the engine.
func (p *Provider) Register(engine *gin.Engine) {
	p.V1.Register(engine)
}

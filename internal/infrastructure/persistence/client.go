// Package persistence is the client for the Persistence API collaborator.
// The reconciler uses it only as a fire-and-forget sink for push-originated
// messages and as the fallback source of canonical history after a failed
// stream resumption.
package persistence

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/infrastructure/metrics"
)

// Client is a Resty-backed Persistence API client.
type Client struct {
	httpClient *resty.Client
	log        zerolog.Logger
}

// NewClient creates a persistence client for the given base URL.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(30 * time.Second),
		log: log.With().Str("component", "persistence-client").Logger(),
	}
}

type listResponse struct {
	Messages []*message.Message `json:"messages"`
}

// ListMessages fetches the canonical ordered history for a conversation.
func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]*message.Message, error) {
	var out listResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParam("conversationId", conversationID).
		SetResult(&out).
		Get("/v1/messages")
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("persistence api error: %s", resp.Status())
	}
	return out.Messages, nil
}

// SaveMessage stores one message. A conflict on an already-persisted ID is
// treated as success so retries stay idempotent.
func (c *Client) SaveMessage(ctx context.Context, msg *message.Message) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/v1/messages")
	if err != nil {
		metrics.PersistenceSaves.WithLabelValues("error").Inc()
		return fmt.Errorf("save message: %w", err)
	}
	if resp.StatusCode() == http.StatusConflict {
		c.log.Debug().Str("message_id", msg.ID).Msg("message already persisted")
		metrics.PersistenceSaves.WithLabelValues("duplicate").Inc()
		return nil
	}
	if resp.IsError() {
		metrics.PersistenceSaves.WithLabelValues("error").Inc()
		return fmt.Errorf("persistence api error: %s", resp.Status())
	}
	metrics.PersistenceSaves.WithLabelValues("ok").Inc()
	return nil
}

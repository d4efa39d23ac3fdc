// Package pushchannel maintains the long-lived server-push subscription
// that delivers messages from other users and background jobs. Decoded
// events are handed to the reconciler over typed channels, one per event
// kind.
package pushchannel

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/domain/reconcile"
	"jan-server/services/chat-client/internal/domain/retry"
	"jan-server/services/chat-client/internal/infrastructure/metrics"
)

const channelBuffer = 64

// Client subscribes to the push channel for one user and keeps the
// connection alive across transient failures.
type Client struct {
	baseURL  string
	userID   string
	policy   retry.Policy
	log      zerolog.Logger
	messages chan reconcile.PushEvent
	progress chan reconcile.FileProgressEvent
}

// NewClient creates a push-channel subscriber for the given user.
func NewClient(baseURL, userID string, policy retry.Policy, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		userID:   userID,
		policy:   policy,
		log:      log.With().Str("component", "push-channel").Logger(),
		messages: make(chan reconcile.PushEvent, channelBuffer),
		progress: make(chan reconcile.FileProgressEvent, channelBuffer),
	}
}

// Messages returns the channel of decoded push messages.
func (c *Client) Messages() <-chan reconcile.PushEvent {
	return c.messages
}

// FileProgress returns the channel of decoded file-progress events.
func (c *Client) FileProgress() <-chan reconcile.FileProgressEvent {
	return c.progress
}

// Run connects and consumes the subscription until ctx is cancelled. Each
// dropped connection is re-established under the reconnect policy; only
// exhausting it ends the loop with an error. Both event channels are closed
// on return.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.messages)
	defer close(c.progress)

	for {
		exec := retry.NewExecutor(c.policy)
		var conn *connection
		err := exec.Execute(ctx, func(ctx context.Context, attempt int) error {
			if attempt > 0 {
				metrics.PushReconnects.Inc()
				c.log.Info().Int("attempt", attempt).Msg("reconnecting push channel")
			}
			opened, err := c.connect(ctx)
			if err != nil {
				return err
			}
			conn = opened
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("push channel gave up reconnecting: %w", err)
		}

		readErr := c.consume(ctx, conn)
		conn.close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(readErr).Msg("push channel dropped")
	}
}

type connection struct {
	resp   *http.Response
	reader *bufio.Reader
}

func (conn *connection) close() {
	if conn.resp != nil && conn.resp.Body != nil {
		conn.resp.Body.Close()
	}
}

func (c *Client) connect(ctx context.Context) (*connection, error) {
	endpoint := fmt.Sprintf("%s/v1/push/subscribe?user_id=%s", c.baseURL, url.QueryEscape(c.userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	httpClient := &http.Client{} // long-lived, no timeout
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("push channel error: %d %s", resp.StatusCode, string(body))
	}

	c.log.Info().Str("user_id", c.userID).Msg("push channel connected")
	return &connection{resp: resp, reader: bufio.NewReader(resp.Body)}, nil
}

// wireEvent is the raw JSON shape of one push payload.
type wireEvent struct {
	Type              string    `json:"type,omitempty"`
	SenderID          string    `json:"sender_id"`
	ReceiverID        string    `json:"receiver_id"`
	SenderName        string    `json:"sender_name"`
	ReceiverName      string    `json:"receiver_name"`
	Content           string    `json:"content"`
	FileAttachment    string    `json:"file_attachment,omitempty"`
	CommunicationType string    `json:"communication_type"`
	CreatedAt         time.Time `json:"created_at"`

	FileName string `json:"file_name,omitempty"`
	Percent  int    `json:"percent,omitempty"`
}

func (c *Client) consume(ctx context.Context, conn *connection) error {
	for {
		line, err := conn.reader.ReadString('\n')
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		var raw wireEvent
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			c.log.Warn().Msg("dropping malformed push payload")
			metrics.MalformedEvents.WithLabelValues("push").Inc()
			continue
		}

		switch raw.Type {
		case "file-progress":
			metrics.PushEvents.WithLabelValues("file-progress").Inc()
			c.dispatchProgress(reconcile.FileProgressEvent{FileName: raw.FileName, Percent: raw.Percent})
		case "", "message":
			metrics.PushEvents.WithLabelValues("message").Inc()
			c.dispatchMessage(reconcile.PushEvent{
				SenderID:          raw.SenderID,
				SenderName:        raw.SenderName,
				ReceiverID:        raw.ReceiverID,
				ReceiverName:      raw.ReceiverName,
				Content:           raw.Content,
				FileAttachment:    raw.FileAttachment,
				CommunicationType: message.CommunicationType(raw.CommunicationType),
				CreatedAt:         raw.CreatedAt,
			})
		default:
			c.log.Debug().Str("type", raw.Type).Msg("ignoring unknown push event type")
		}
	}
}

func (c *Client) dispatchMessage(ev reconcile.PushEvent) {
	select {
	case c.messages <- ev:
	default:
		c.log.Warn().Msg("push message dropped, consumer not keeping up")
	}
}

func (c *Client) dispatchProgress(ev reconcile.FileProgressEvent) {
	select {
	case c.progress <- ev:
	default:
		// Progress events are advisory, dropping is fine.
	}
}

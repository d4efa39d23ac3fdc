// Package streamapi is the client for the chat streaming endpoint. It
// issues the outbound request and decodes the SSE event stream into the
// typed events the reconciler consumes.
package streamapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/domain/chat"
	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/domain/reconcile"
	"jan-server/services/chat-client/internal/domain/retry"
	"jan-server/services/chat-client/internal/infrastructure/metrics"
)

// ErrResumeInvalid is returned when the resumption token is unknown or the
// stream already completed server-side. Callers fall back to fetching
// canonical history.
var ErrResumeInvalid = fmt.Errorf("stream resumption invalid")

// Client talks to the chat streaming endpoint. Request/response calls go
// through Resty; the stream itself is raw net/http with SSE parsing.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	probeTO    time.Duration
	log        zerolog.Logger
}

// NewClient creates a streaming endpoint client.
func NewClient(baseURL string, probeTimeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(probeTimeout),
		baseURL: baseURL,
		probeTO: probeTimeout,
		log:     log.With().Str("component", "stream-client").Logger(),
	}
}

// Probe checks whether the endpoint is reachable. Used as the
// online/offline signal before retrying a send.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.httpClient.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("status probe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("endpoint unhealthy: %s", resp.Status())
	}
	return nil
}

// Open issues the chat request and returns the event stream. The stream has
// no hard timeout: it runs until the server closes it or the context is
// cancelled. Client-side rejections carry the permanent marker so the send
// executor does not burn retries on them.
func (c *Client) Open(ctx context.Context, req chat.SendRequest) (chat.EventStream, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	stream, err := c.open(httpReq)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code >= 400 && se.code < 500 &&
			se.code != http.StatusRequestTimeout && se.code != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return stream, nil
}

// Resume reattaches to a server-held stream using its resumption token.
func (c *Client) Resume(ctx context.Context, token string) (chat.EventStream, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/chat/stream/"+token, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	stream, err := c.open(httpReq)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusNotFound || se.code == http.StatusGone) {
			return nil, ErrResumeInvalid
		}
		return nil, err
	}
	return stream, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("stream api error: %d %s", e.code, e.body)
}

func (c *Client) open(httpReq *http.Request) (*Stream, error) {
	httpClient := &http.Client{} // no timeout: the stream is long-lived
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	metrics.ActiveStreams.Inc()
	return &Stream{
		resp:        resp,
		reader:      bufio.NewReader(resp.Body),
		resumeToken: resp.Header.Get("X-Resume-Token"),
		log:         c.log,
	}, nil
}

// Stream reads typed events off an open SSE response.
type Stream struct {
	resp        *http.Response
	reader      *bufio.Reader
	resumeToken string
	log         zerolog.Logger
	closed      bool
}

// ResumeToken returns the server-issued token for reattaching to this
// stream after an interruption.
func (s *Stream) ResumeToken() string {
	return s.resumeToken
}

// wireEvent is the raw JSON shape of one SSE data payload.
type wireEvent struct {
	Type      string           `json:"type"`
	ID        string           `json:"id,omitempty"`
	MessageID string           `json:"message_id,omitempty"`
	Role      string           `json:"role,omitempty"`
	Delta     string           `json:"delta,omitempty"`
	Content   string           `json:"content,omitempty"`
	Parts     []message.Part   `json:"parts,omitempty"`
	Metadata  message.Metadata `json:"metadata,omitempty"`
	Usage     reconcile.Usage  `json:"usage,omitempty"`

	// metadata events carry stream-level fields.
	ResumeToken string `json:"resume_token,omitempty"`
}

// Recv returns the next decoded event, or io.EOF at stream end. Malformed
// payloads are counted, logged and skipped, never fatal.
func (s *Stream) Recv() (reconcile.StreamEvent, error) {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return reconcile.StreamEvent{}, io.EOF
			}
			return reconcile.StreamEvent{}, fmt.Errorf("read line: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return reconcile.StreamEvent{}, io.EOF
		}

		var raw wireEvent
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			s.log.Warn().Str("payload", truncate(data, 120)).Msg("dropping malformed stream payload")
			metrics.MalformedEvents.WithLabelValues("stream").Inc()
			continue
		}

		ev, ok := s.mapEvent(raw)
		if !ok {
			continue
		}
		metrics.StreamEvents.WithLabelValues(string(ev.Kind)).Inc()
		return ev, nil
	}
}

func (s *Stream) mapEvent(raw wireEvent) (reconcile.StreamEvent, bool) {
	switch raw.Type {
	case "text-delta":
		return reconcile.StreamEvent{
			Kind:      reconcile.KindTokenDelta,
			MessageID: firstNonEmpty(raw.ID, raw.MessageID),
			Role:      message.Role(raw.Role),
			Delta:     raw.Delta,
		}, true

	case "data-usage":
		return reconcile.StreamEvent{Kind: reconcile.KindUsage, Usage: raw.Usage}, true

	case "data-persisted":
		parts := raw.Parts
		if len(parts) == 0 && raw.Content != "" {
			parts = []message.Part{{Kind: message.PartText, Text: raw.Content}}
		}
		return reconcile.StreamEvent{
			Kind:      reconcile.KindPersisted,
			MessageID: firstNonEmpty(raw.MessageID, raw.ID),
			Role:      message.Role(raw.Role),
			Parts:     parts,
			Metadata:  serverMetadata(raw.Metadata),
		}, true

	case "data-appendMessage":
		return reconcile.StreamEvent{
			Kind:      reconcile.KindAppendMetadata,
			MessageID: firstNonEmpty(raw.ID, raw.MessageID),
			Role:      message.Role(raw.Role),
			Metadata:  serverMetadata(raw.Metadata),
		}, true

	case "metadata":
		// Stream-level bookkeeping, not a message event.
		if raw.ResumeToken != "" {
			s.resumeToken = raw.ResumeToken
		}
		return reconcile.StreamEvent{}, false

	default:
		s.log.Debug().Str("type", raw.Type).Msg("ignoring unknown stream event type")
		return reconcile.StreamEvent{}, false
	}
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	metrics.ActiveStreams.Dec()
	if s.resp != nil && s.resp.Body != nil {
		return s.resp.Body.Close()
	}
	return nil
}

// serverMetadata marks server-originated timestamps so the createdAt
// precedence rule can tell them apart from local placeholders.
func serverMetadata(md message.Metadata) message.Metadata {
	md.ServerTimestamped = !md.CreatedAt.IsZero()
	return md
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package chat ties the conversation manager, the reconciler and the
// transport clients together into one controller per user. It owns the
// send/resume/stop lifecycle and routes push-channel traffic into the right
// conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/domain/conversation"
	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/domain/reconcile"
	"jan-server/services/chat-client/internal/domain/retry"
)

var (
	// ErrBusy is returned when a send is attempted while a stream is active.
	ErrBusy = errors.New("conversation has an active stream")
	// ErrNothingToRetry is returned when Retry finds no failed send.
	ErrNothingToRetry = errors.New("no failed send to retry")
	// ErrNotRunning is returned when the controller loop has not started.
	ErrNotRunning = errors.New("controller is not running")
)

// SendReceipt identifies the messages created by a send.
type SendReceipt struct {
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
	SessionID          string `json:"session_id"`
}

// StatusInfo is the control-surface view of one conversation.
type StatusInfo struct {
	Status    conversation.Status `json:"status"`
	Usage     reconcile.Usage     `json:"usage"`
	LastError string              `json:"last_error,omitempty"`
}

// runtime is the per-conversation mutable state. Its mutex serializes every
// reconciler application; the three event sources funnel through it, which
// is what makes merges atomic with respect to each other.
type runtime struct {
	mu          sync.Mutex
	chatID      string
	rec         *reconcile.Reconciler
	cancel      context.CancelFunc
	sessionID   string
	responderID string
	resumeToken string
	lastSend    *SendRequest
	lastReceipt *SendReceipt
	sendFailed  bool
	lastError   string
}

// Controller is the chat client core for one user.
type Controller struct {
	manager    *conversation.Manager
	stream     StreamAPI
	push       PushSource
	persist    PersistenceAPI
	sendPolicy retry.Policy
	userID     string
	log        zerolog.Logger

	mu    sync.Mutex
	convs map[string]*runtime

	runCtx context.Context
}

// NewController creates a controller for the given user.
func NewController(
	manager *conversation.Manager,
	stream StreamAPI,
	push PushSource,
	persist PersistenceAPI,
	sendPolicy retry.Policy,
	userID string,
	log zerolog.Logger,
) *Controller {
	return &Controller{
		manager:    manager,
		stream:     stream,
		push:       push,
		persist:    persist,
		sendPolicy: sendPolicy,
		userID:     userID,
		log:        log.With().Str("component", "chat-controller").Logger(),
		convs:      make(map[string]*runtime),
	}
}

func (c *Controller) runtimeFor(chatID string) *runtime {
	c.mu.Lock()
	defer c.mu.Unlock()

	rt, ok := c.convs[chatID]
	if !ok {
		rt = &runtime{
			chatID: chatID,
			rec:    reconcile.New(message.NewStore(), c.persist, c.log),
		}
		c.convs[chatID] = rt
	}
	return rt
}

// Run drains the push channel until ctx is cancelled. It must be running
// before Send is called; stream goroutines are scoped to this context so
// they outlive the HTTP request that triggered them but not the process.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	messages := c.push.Messages()
	progress := c.push.FileProgress()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			c.handlePush(ctx, ev)
		case ev, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			c.log.Debug().
				Str("file", ev.FileName).
				Int("percent", ev.Percent).
				Msg("file upload progress")
		}
	}
}

// handlePush routes an out-of-band message to the conversation keyed by the
// peer: traffic addressed to this user lands in the sender's conversation.
func (c *Controller) handlePush(ctx context.Context, ev reconcile.PushEvent) {
	chatID := ev.SenderID
	if ev.ReceiverID != c.userID {
		chatID = ev.ReceiverID
	}
	if chatID == "" {
		c.log.Warn().Msg("push event without routable peer dropped")
		return
	}

	rt := c.runtimeFor(chatID)
	rt.mu.Lock()
	inserted := rt.rec.ApplyPush(ctx, ev)
	rt.mu.Unlock()

	if inserted != nil {
		c.manager.UpdateSession(chatID, c.manager.CurrentSessionID(chatID, ev.SenderID, c.userID), inserted.ID, 1)
	}
}

// Send issues a user message to a responder. The optimistic message is
// inserted immediately; the stream is consumed on a background goroutine
// scoped to the controller's run context.
func (c *Controller) Send(ctx context.Context, chatID, text, responderID string) (*SendReceipt, error) {
	c.mu.Lock()
	runCtx := c.runCtx
	c.mu.Unlock()
	if runCtx == nil {
		return nil, ErrNotRunning
	}

	if c.manager.Status(chatID).IsActive() {
		return nil, ErrBusy
	}

	sessionID := c.manager.CurrentSessionID(chatID, responderID, c.userID)
	userMsgID := uuid.NewString()

	rt := c.runtimeFor(chatID)
	userMsg := &message.Message{
		ID:   userMsgID,
		Role: message.RoleUser,
		Metadata: message.Metadata{
			CreatedAt:         time.Now(),
			SenderID:          c.userID,
			ReceiverID:        responderID,
			CommunicationType: message.CommDirect,
			ResponderUsed:     responderID,
		},
	}
	if text != "" {
		userMsg.Parts = []message.Part{{Kind: message.PartText, Text: text}}
	}
	if err := rt.rec.Store().Upsert(userMsg); err != nil {
		return nil, fmt.Errorf("insert optimistic message: %w", err)
	}

	if err := c.manager.UpdateStatus(chatID, conversation.StatusSubmitted); err != nil {
		return nil, err
	}
	c.manager.UpdateSession(chatID, sessionID, userMsgID, 1)

	req := SendRequest{
		ConversationID:             chatID,
		Message:                    text,
		ResponderID:                responderID,
		ExpectedAssistantMessageID: userMsgID + "-assistant",
	}

	receipt := &SendReceipt{
		UserMessageID:      userMsgID,
		AssistantMessageID: req.ExpectedAssistantMessageID,
		SessionID:          sessionID,
	}

	rt.mu.Lock()
	rt.sessionID = sessionID
	rt.responderID = responderID
	rt.lastSend = &req
	rt.lastReceipt = receipt
	rt.sendFailed = false
	rt.lastError = ""
	rt.mu.Unlock()

	go c.runStream(runCtx, rt, req, sessionID, responderID)

	return receipt, nil
}

// runStream opens the stream under the bounded send policy and pumps its
// events into the reconciler. All attempts reuse the same request, so the
// same client-generated IDs collapse under last-write-wins dedup.
func (c *Controller) runStream(parent context.Context, rt *runtime, req SendRequest, sessionID, responderID string) {
	ctx, cancel := context.WithCancel(parent)

	rt.mu.Lock()
	rt.cancel = cancel
	rt.mu.Unlock()

	var stream EventStream
	exec := retry.NewExecutor(c.sendPolicy)
	err := exec.Execute(ctx, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			// Offline probe first: no point re-sending into a dead network.
			if err := c.stream.Probe(ctx); err != nil {
				return err
			}
			c.log.Info().Int("attempt", attempt).Str("chat_id", rt.chatID).Msg("retrying send")
		}
		opened, err := c.stream.Open(ctx, req)
		if err != nil {
			return err
		}
		stream = opened
		return nil
	})
	if err != nil {
		c.finishStream(rt, sessionID, err)
		return
	}

	rt.mu.Lock()
	rt.resumeToken = stream.ResumeToken()
	rt.rec.TakeSnapshot()
	rt.mu.Unlock()

	c.pump(ctx, rt, stream, sessionID, responderID)
}

// pump applies stream events until EOF, cancellation, or a responder
// switch invalidates the session.
func (c *Controller) pump(ctx context.Context, rt *runtime, stream EventStream, sessionID, responderID string) {
	defer stream.Close()

	var pumpErr error
	for {
		ev, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				pumpErr = err
			}
			break
		}

		// Late tokens for a session the user switched away from are
		// discarded, never misattributed to the new responder.
		if !c.manager.CanResumeStream(rt.chatID, sessionID, responderID) {
			c.log.Debug().
				Str("chat_id", rt.chatID).
				Str("session_id", sessionID).
				Msg("discarding event for superseded session")
			break
		}

		rt.mu.Lock()
		mutated := rt.rec.ApplyStream(ev)
		if token := stream.ResumeToken(); token != "" {
			rt.resumeToken = token
		}
		rt.mu.Unlock()

		if mutated && c.manager.Status(rt.chatID) == conversation.StatusSubmitted {
			if err := c.manager.UpdateStatus(rt.chatID, conversation.StatusStreaming); err == nil {
				c.log.Debug().Str("chat_id", rt.chatID).Msg("first token arrived")
			}
		}
		if mutated && ev.MessageID != "" {
			c.manager.UpdateSession(rt.chatID, sessionID, ev.MessageID, 0)
		}
	}

	c.finishStream(rt, sessionID, pumpErr)
}

// finishStream releases the snapshot and settles status back to idle.
func (c *Controller) finishStream(rt *runtime, sessionID string, streamErr error) {
	rt.mu.Lock()
	rt.rec.ClearSnapshot()
	rt.cancel = nil
	if streamErr != nil {
		rt.sendFailed = true
		rt.lastError = streamErr.Error()
	}
	rt.mu.Unlock()

	if streamErr != nil {
		c.log.Error().Err(streamErr).Str("chat_id", rt.chatID).Msg("stream failed")
	}

	if c.manager.Status(rt.chatID).IsActive() {
		if err := c.manager.UpdateStatus(rt.chatID, conversation.StatusIdle); err != nil {
			c.log.Warn().Err(err).Str("chat_id", rt.chatID).Msg("could not settle status")
		}
	}
}

// Stop aborts the in-flight stream for a conversation. Already-applied
// tokens remain; there is no rollback.
func (c *Controller) Stop(chatID string) {
	rt := c.runtimeFor(chatID)
	rt.mu.Lock()
	cancel := rt.cancel
	rt.mu.Unlock()

	if cancel != nil {
		cancel()
		c.log.Info().Str("chat_id", chatID).Msg("stream stopped")
	}
}

// SwitchResponder stops any active stream, then rebinds the conversation to
// the new responder. The manager certifies the old session is no longer
// resumable.
func (c *Controller) SwitchResponder(chatID, newResponderID string) string {
	if c.manager.Status(chatID).IsActive() {
		c.Stop(chatID)
	}
	sessionID := c.manager.SwitchAgent(chatID, newResponderID, c.userID)

	rt := c.runtimeFor(chatID)
	rt.mu.Lock()
	rt.sessionID = sessionID
	rt.responderID = newResponderID
	rt.resumeToken = ""
	rt.mu.Unlock()

	return sessionID
}

// Retry re-issues the last failed send, reusing the original message IDs so
// the store folds the attempts into one entry.
func (c *Controller) Retry(chatID string) (*SendReceipt, error) {
	c.mu.Lock()
	runCtx := c.runCtx
	c.mu.Unlock()
	if runCtx == nil {
		return nil, ErrNotRunning
	}

	rt := c.runtimeFor(chatID)
	rt.mu.Lock()
	req := rt.lastSend
	receipt := rt.lastReceipt
	failed := rt.sendFailed
	sessionID := rt.sessionID
	responderID := rt.responderID
	rt.mu.Unlock()

	if req == nil || receipt == nil || !failed {
		return nil, ErrNothingToRetry
	}
	if c.manager.Status(chatID).IsActive() {
		return nil, ErrBusy
	}
	if err := c.manager.UpdateStatus(chatID, conversation.StatusSubmitted); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.sendFailed = false
	rt.lastError = ""
	rt.mu.Unlock()

	go c.runStream(runCtx, rt, *req, sessionID, responderID)

	return receipt, nil
}

// Resume reattaches to an interrupted stream, e.g. after a page reload. If
// resumption is invalid it falls back to the canonical history from the
// persistence API; that fallback is a silent recovery, not an error.
func (c *Controller) Resume(ctx context.Context, chatID string) error {
	c.mu.Lock()
	runCtx := c.runCtx
	c.mu.Unlock()
	if runCtx == nil {
		return ErrNotRunning
	}

	rt := c.runtimeFor(chatID)
	rt.mu.Lock()
	token := rt.resumeToken
	sessionID := rt.sessionID
	responderID := rt.responderID
	rt.mu.Unlock()

	if token == "" || !c.manager.CanResumeStream(chatID, sessionID, responderID) {
		return c.fallbackToHistory(ctx, rt)
	}

	stream, err := c.stream.Resume(ctx, token)
	if err != nil {
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("stream resumption failed, fetching canonical history")
		return c.fallbackToHistory(ctx, rt)
	}

	streamCtx, cancel := context.WithCancel(runCtx)
	rt.mu.Lock()
	rt.cancel = cancel
	rt.rec.TakeSnapshot()
	rt.mu.Unlock()

	if err := c.manager.UpdateStatus(chatID, conversation.StatusSubmitted); err != nil {
		c.log.Warn().Err(err).Str("chat_id", chatID).Msg("could not mark resumed stream")
	}

	go c.pump(streamCtx, rt, stream, sessionID, responderID)
	return nil
}

func (c *Controller) fallbackToHistory(ctx context.Context, rt *runtime) error {
	msgs, err := c.persist.ListMessages(ctx, rt.chatID)
	if err != nil {
		return fmt.Errorf("fetch canonical history: %w", err)
	}

	rt.mu.Lock()
	rt.rec.Store().Seed(msgs)
	rt.resumeToken = ""
	rt.mu.Unlock()

	c.log.Info().Str("chat_id", rt.chatID).Int("messages", len(msgs)).Msg("seeded conversation from canonical history")
	return nil
}

// Messages returns the ordered sequence for rendering.
func (c *Controller) Messages(chatID string) []*message.Message {
	return c.runtimeFor(chatID).rec.Store().List()
}

// Status returns the control-surface view of a conversation.
func (c *Controller) Status(chatID string) StatusInfo {
	rt := c.runtimeFor(chatID)
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return StatusInfo{
		Status:    c.manager.Status(chatID),
		Usage:     rt.rec.Usage(),
		LastError: rt.lastError,
	}
}

// Sessions returns the conversation state for inspection.
func (c *Controller) Sessions(chatID string) *conversation.State {
	return c.manager.StateOf(chatID)
}

// Close tears down a conversation when the rendering layer closes its view.
func (c *Controller) Close(chatID string) {
	c.Stop(chatID)
	c.manager.Reset(chatID)

	c.mu.Lock()
	delete(c.convs, chatID)
	c.mu.Unlock()
}

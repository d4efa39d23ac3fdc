package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jan-server/services/chat-client/internal/domain/conversation"
	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/domain/reconcile"
	"jan-server/services/chat-client/internal/domain/retry"
)

const testUserID = "user-1"

type fakeStream struct {
	events chan reconcile.StreamEvent
	token  string
}

func (s *fakeStream) Recv() (reconcile.StreamEvent, error) {
	ev, ok := <-s.events
	if !ok {
		return reconcile.StreamEvent{}, io.EOF
	}
	return ev, nil
}

func (s *fakeStream) ResumeToken() string { return s.token }
func (s *fakeStream) Close() error        { return nil }

type fakeStreamAPI struct {
	mu         sync.Mutex
	next       *fakeStream
	openErr    error
	resumeErr  error
	openCalls  int
	probeCalls int
	requests   []SendRequest
}

func (f *fakeStreamAPI) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	return nil
}

func (f *fakeStreamAPI) Open(ctx context.Context, req SendRequest) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	f.requests = append(f.requests, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.next, nil
}

func (f *fakeStreamAPI) Resume(ctx context.Context, token string) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return f.next, nil
}

func (f *fakeStreamAPI) setOpenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

type fakePush struct {
	messages chan reconcile.PushEvent
	progress chan reconcile.FileProgressEvent
}

func newFakePush() *fakePush {
	return &fakePush{
		messages: make(chan reconcile.PushEvent, 8),
		progress: make(chan reconcile.FileProgressEvent, 8),
	}
}

func (f *fakePush) Messages() <-chan reconcile.PushEvent { return f.messages }

func (f *fakePush) FileProgress() <-chan reconcile.FileProgressEvent { return f.progress }

type fakePersist struct {
	mu      sync.Mutex
	saved   []*message.Message
	history []*message.Message
	listErr error
}

func (f *fakePersist) ListMessages(ctx context.Context, conversationID string) ([]*message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.history, nil
}

func (f *fakePersist) SaveMessage(ctx context.Context, msg *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, msg.Clone())
	return nil
}

func (f *fakePersist) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func fastPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:      2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		BackoffStrategy: retry.BackoffFixed,
	}
}

func startController(t *testing.T, api *fakeStreamAPI, push *fakePush, persist *fakePersist) *Controller {
	t.Helper()

	log := zerolog.Nop()
	manager := conversation.NewManager(log)
	c := NewController(manager, api, push, persist, fastPolicy(), testUserID, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = c.Run(ctx) }()

	// Run has started once the run context is observable through Send's
	// precondition.
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.runCtx != nil
	}, time.Second, time.Millisecond)

	return c
}

func waitStatus(t *testing.T, c *Controller, chatID string, want conversation.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status(chatID).Status == want
	}, 2*time.Second, 2*time.Millisecond, "waiting for status %s", want)
}

func TestSendStreamsToCompletion(t *testing.T) {
	api := &fakeStreamAPI{next: &fakeStream{events: make(chan reconcile.StreamEvent, 8), token: "tok-1"}}
	persist := &fakePersist{}
	c := startController(t, api, newFakePush(), persist)

	receipt, err := c.Send(context.Background(), "peer-1", "hi there", "agent-a")
	require.NoError(t, err)
	require.NotEmpty(t, receipt.UserMessageID)
	require.Equal(t, receipt.UserMessageID+"-assistant", receipt.AssistantMessageID)

	// First token flips submitted to streaming.
	api.next.events <- reconcile.StreamEvent{
		Kind:      reconcile.KindTokenDelta,
		MessageID: receipt.AssistantMessageID,
		Role:      message.RoleAssistant,
		Delta:     "Hello",
	}
	waitStatus(t, c, "peer-1", conversation.StatusStreaming)

	api.next.events <- reconcile.StreamEvent{
		Kind:      reconcile.KindTokenDelta,
		MessageID: receipt.AssistantMessageID,
		Delta:     " world",
	}
	api.next.events <- reconcile.StreamEvent{
		Kind:  reconcile.KindUsage,
		Usage: reconcile.Usage{InputTokens: 4, OutputTokens: 2},
	}

	serverTime := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	api.next.events <- reconcile.StreamEvent{
		Kind:      reconcile.KindPersisted,
		MessageID: receipt.AssistantMessageID,
		Role:      message.RoleAssistant,
		Parts:     []message.Part{{Kind: message.PartText, Text: "Hello world"}},
		Metadata:  message.Metadata{CreatedAt: serverTime, ServerTimestamped: true},
	}
	close(api.next.events)

	waitStatus(t, c, "peer-1", conversation.StatusIdle)

	msgs := c.Messages("peer-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, receipt.UserMessageID, msgs[0].ID)
	assert.Equal(t, "hi there", msgs[0].PrimaryText())
	assert.Equal(t, receipt.AssistantMessageID, msgs[1].ID)
	assert.Equal(t, "Hello world", msgs[1].PrimaryText())
	assert.True(t, msgs[1].Metadata.CreatedAt.Equal(serverTime), "server timestamp must win")

	info := c.Status("peer-1")
	assert.Equal(t, 4, info.Usage.InputTokens)
	assert.Equal(t, 2, info.Usage.OutputTokens)
	assert.Empty(t, info.LastError)
}

func TestSendWhileActiveReturnsBusy(t *testing.T) {
	api := &fakeStreamAPI{next: &fakeStream{events: make(chan reconcile.StreamEvent)}}
	c := startController(t, api, newFakePush(), &fakePersist{})

	_, err := c.Send(context.Background(), "peer-1", "first", "agent-a")
	require.NoError(t, err)

	_, err = c.Send(context.Background(), "peer-1", "second", "agent-a")
	require.ErrorIs(t, err, ErrBusy)

	close(api.next.events)
	waitStatus(t, c, "peer-1", conversation.StatusIdle)
}

func TestSendBeforeRunReturnsNotRunning(t *testing.T) {
	log := zerolog.Nop()
	c := NewController(conversation.NewManager(log), &fakeStreamAPI{}, newFakePush(), &fakePersist{}, fastPolicy(), testUserID, log)

	_, err := c.Send(context.Background(), "peer-1", "hi", "agent-a")
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestRetryReusesOriginalMessageIDs(t *testing.T) {
	api := &fakeStreamAPI{openErr: errors.New("connection refused")}
	c := startController(t, api, newFakePush(), &fakePersist{})

	receipt, err := c.Send(context.Background(), "peer-1", "hi", "agent-a")
	require.NoError(t, err)

	waitStatus(t, c, "peer-1", conversation.StatusIdle)
	require.Eventually(t, func() bool {
		return c.Status("peer-1").LastError != ""
	}, time.Second, 2*time.Millisecond)

	// Retries consulted the online probe before re-sending.
	api.mu.Lock()
	probes := api.probeCalls
	api.mu.Unlock()
	assert.Greater(t, probes, 0)

	// Network recovers.
	stream := &fakeStream{events: make(chan reconcile.StreamEvent, 2)}
	stream.events <- reconcile.StreamEvent{
		Kind:      reconcile.KindTokenDelta,
		MessageID: receipt.AssistantMessageID,
		Role:      message.RoleAssistant,
		Delta:     "recovered",
	}
	close(stream.events)
	api.mu.Lock()
	api.openErr = nil
	api.next = stream
	api.mu.Unlock()

	retried, err := c.Retry("peer-1")
	require.NoError(t, err)
	assert.Equal(t, receipt.UserMessageID, retried.UserMessageID)
	assert.Equal(t, receipt.AssistantMessageID, retried.AssistantMessageID)

	waitStatus(t, c, "peer-1", conversation.StatusIdle)

	msgs := c.Messages("peer-1")
	require.Len(t, msgs, 2, "retry must fold into the original entries")
	assert.Equal(t, receipt.UserMessageID, msgs[0].ID)
	assert.Equal(t, "recovered", msgs[1].PrimaryText())
	assert.Empty(t, c.Status("peer-1").LastError)

	// All attempts carried the same request payload.
	api.mu.Lock()
	defer api.mu.Unlock()
	for _, req := range api.requests {
		assert.Equal(t, receipt.AssistantMessageID, req.ExpectedAssistantMessageID)
	}
}

func TestRetryWithoutFailureReturnsNothingToRetry(t *testing.T) {
	c := startController(t, &fakeStreamAPI{}, newFakePush(), &fakePersist{})

	_, err := c.Retry("peer-1")
	require.ErrorIs(t, err, ErrNothingToRetry)
}

func TestPermanentRejectionStopsRetrying(t *testing.T) {
	api := &fakeStreamAPI{openErr: retry.Permanent(errors.New("invalid payload"))}
	c := startController(t, api, newFakePush(), &fakePersist{})

	_, err := c.Send(context.Background(), "peer-1", "hi", "agent-a")
	require.NoError(t, err)

	waitStatus(t, c, "peer-1", conversation.StatusIdle)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, 1, api.openCalls, "client rejections must not be retried")
}

func TestSwitchResponderDiscardsLateTokens(t *testing.T) {
	api := &fakeStreamAPI{next: &fakeStream{events: make(chan reconcile.StreamEvent, 8)}}
	c := startController(t, api, newFakePush(), &fakePersist{})

	receipt, err := c.Send(context.Background(), "peer-1", "question", "agent-a")
	require.NoError(t, err)

	api.next.events <- reconcile.StreamEvent{
		Kind:      reconcile.KindTokenDelta,
		MessageID: receipt.AssistantMessageID,
		Role:      message.RoleAssistant,
		Delta:     "partial",
	}
	waitStatus(t, c, "peer-1", conversation.StatusStreaming)

	c.SwitchResponder("peer-1", "agent-b")

	// Tokens still in flight for the superseded session are dropped.
	api.next.events <- reconcile.StreamEvent{
		Kind:      reconcile.KindTokenDelta,
		MessageID: receipt.AssistantMessageID,
		Delta:     " LATE",
	}
	close(api.next.events)

	waitStatus(t, c, "peer-1", conversation.StatusIdle)
	require.Eventually(t, func() bool {
		msgs := c.Messages("peer-1")
		return len(msgs) == 2 && msgs[1].PrimaryText() == "partial"
	}, 2*time.Second, 2*time.Millisecond, "late tokens must not reach the store")

	st := c.Sessions("peer-1")
	assert.Equal(t, "agent-b", st.CurrentAgentID)
}

func TestPushRoutedBySenderAndDeduplicated(t *testing.T) {
	push := newFakePush()
	persist := &fakePersist{}
	c := startController(t, &fakeStreamAPI{}, push, persist)

	ev := reconcile.PushEvent{
		SenderID:          "peer-2",
		SenderName:        "Dana",
		ReceiverID:        testUserID,
		Content:           "ping",
		CommunicationType: message.CommDirect,
		CreatedAt:         time.Now(),
	}
	push.messages <- ev
	push.messages <- ev // duplicate delivery

	require.Eventually(t, func() bool {
		return len(c.Messages("peer-2")) == 1
	}, 2*time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool {
		return persist.savedCount() == 1
	}, 2*time.Second, 2*time.Millisecond)

	// Give the duplicate a beat to land; it must not create a second entry.
	time.Sleep(20 * time.Millisecond)
	msgs := c.Messages("peer-2")
	require.Len(t, msgs, 1)
	assert.Equal(t, "ping", msgs[0].PrimaryText())
	assert.Equal(t, message.RoleUser, msgs[0].Role)
	assert.Equal(t, 1, persist.savedCount())
}

func TestResumeFallsBackToCanonicalHistory(t *testing.T) {
	persist := &fakePersist{history: []*message.Message{
		{ID: "h1", Role: message.RoleUser, Parts: []message.Part{{Kind: message.PartText, Text: "earlier"}}},
		{ID: "h2", Role: message.RoleAssistant, Parts: []message.Part{{Kind: message.PartText, Text: "reply"}}},
	}}
	c := startController(t, &fakeStreamAPI{}, newFakePush(), persist)

	// No resume token held: Resume seeds from the persistence API instead.
	require.NoError(t, c.Resume(context.Background(), "peer-1"))

	msgs := c.Messages("peer-1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "h1", msgs[0].ID)
	assert.Equal(t, "h2", msgs[1].ID)
}

func TestCloseTearsDownConversation(t *testing.T) {
	persist := &fakePersist{history: []*message.Message{
		{ID: "h1", Role: message.RoleUser, Parts: []message.Part{{Kind: message.PartText, Text: "earlier"}}},
	}}
	c := startController(t, &fakeStreamAPI{}, newFakePush(), persist)

	require.NoError(t, c.Resume(context.Background(), "peer-1"))
	require.Len(t, c.Messages("peer-1"), 1)

	c.Close("peer-1")

	assert.Empty(t, c.Messages("peer-1"))
	assert.Equal(t, conversation.StatusIdle, c.Status("peer-1").Status)
}

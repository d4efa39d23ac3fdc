// Package reconcile applies events from the token stream and the push
// channel to the message store under one fixed precedence policy:
// dedup by ID and fingerprint, additive metadata merge, first-writer-wins
// createdAt with server timestamps replacing local placeholders.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"jan-server/services/chat-client/internal/domain/message"
	"jan-server/services/chat-client/internal/utils/idgen"
)

// PersistenceSink stores push-originated messages. Failures are logged,
// never propagated: the sink is fire-and-forget.
type PersistenceSink interface {
	SaveMessage(ctx context.Context, msg *message.Message) error
}

type appliedKey struct {
	messageID string
	kind      EventKind
}

// Reconciler owns one conversation's message store and applies inbound
// events to it. All Apply calls must come from a single goroutine (the
// controller's event loop); the store's own lock only protects concurrent
// readers.
type Reconciler struct {
	store *message.Store
	sink  PersistenceSink
	log   zerolog.Logger

	applied map[appliedKey]struct{}
	usage   Usage

	snapshot    []*message.Message
	streamingID string
}

// New creates a reconciler over the given store.
func New(store *message.Store, sink PersistenceSink, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:   store,
		sink:    sink,
		log:     log.With().Str("component", "reconciler").Logger(),
		applied: make(map[appliedKey]struct{}),
	}
}

// Store exposes the underlying message store for read access.
func (r *Reconciler) Store() *message.Store {
	return r.store
}

// Usage returns the accumulated side-channel usage counters.
func (r *Reconciler) Usage() Usage {
	return r.usage
}

// ApplyStream applies one decoded stream event. Returns true when the event
// mutated the message sequence (the caller uses this to flip submitted ->
// streaming on the first token).
func (r *Reconciler) ApplyStream(ev StreamEvent) bool {
	switch ev.Kind {
	case KindTokenDelta:
		return r.applyTokenDelta(ev)
	case KindUsage:
		r.usage.InputTokens += ev.Usage.InputTokens
		r.usage.OutputTokens += ev.Usage.OutputTokens
		return false
	case KindPersisted:
		return r.applyPersisted(ev)
	case KindAppendMetadata:
		return r.applyAppendMetadata(ev)
	default:
		r.log.Warn().Str("kind", string(ev.Kind)).Msg("dropping unknown stream event")
		return false
	}
}

func (r *Reconciler) applyTokenDelta(ev StreamEvent) bool {
	if ev.MessageID == "" {
		return false
	}

	err := r.store.Update(ev.MessageID, func(m *message.Message) {
		m.AppendText(ev.Delta)
	})
	if errors.Is(err, message.ErrMessageNotFound) {
		if ev.Delta == "" {
			return false
		}
		role := ev.Role
		if role == "" {
			role = message.RoleAssistant
		}
		m := &message.Message{
			ID:    ev.MessageID,
			Role:  role,
			Parts: []message.Part{{Kind: message.PartText, Text: ev.Delta}},
			// Local placeholder until a durable confirmation arrives.
			Metadata: message.Metadata{CreatedAt: time.Now()},
		}
		if err := r.store.Upsert(m); err != nil {
			r.log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("dropping stream message")
			return false
		}
	}

	r.streamingID = ev.MessageID
	r.reconcileAgainstSnapshot()
	return true
}

func (r *Reconciler) applyPersisted(ev StreamEvent) bool {
	confirmed := ev.Metadata
	confirmed.ServerTimestamped = !confirmed.CreatedAt.IsZero()

	err := r.store.Update(ev.MessageID, func(m *message.Message) {
		// Confirmation is advisory, never regressive: an empty parts array
		// keeps the in-memory parts, and a recorded server timestamp is
		// immutable.
		prior := m.Metadata
		if len(ev.Parts) > 0 {
			m.Parts = ev.Parts
		}
		m.Metadata = confirmed
		if confirmed.CreatedAt.IsZero() || prior.ServerTimestamped {
			m.Metadata.CreatedAt = prior.CreatedAt
			m.Metadata.ServerTimestamped = prior.ServerTimestamped
		}
	})
	if errors.Is(err, message.ErrMessageNotFound) {
		role := ev.Role
		if role == "" {
			role = message.RoleAssistant
		}
		m := &message.Message{
			ID:       ev.MessageID,
			Role:     role,
			Parts:    ev.Parts,
			Metadata: confirmed,
		}
		if err := r.store.Upsert(m); err != nil {
			r.log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("dropping empty confirmation")
			return false
		}
	}

	r.reconcileAgainstSnapshot()
	return true
}

func (r *Reconciler) applyAppendMetadata(ev StreamEvent) bool {
	key := appliedKey{messageID: ev.MessageID, kind: KindAppendMetadata}
	if _, done := r.applied[key]; done {
		r.log.Debug().Str("message_id", ev.MessageID).Msg("skipping replayed metadata patch")
		return false
	}

	err := r.store.Update(ev.MessageID, func(m *message.Message) {
		m.Metadata.Merge(ev.Metadata)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("message_id", ev.MessageID).Msg("metadata patch for unknown message dropped")
		return false
	}

	r.applied[key] = struct{}{}
	r.reconcileAgainstSnapshot()
	return true
}

// ApplyPush converts a push-channel event into a stored message, unless an
// existing message with the same fingerprint makes it an echo. Returns the
// inserted message, or nil when the event was dropped.
func (r *Reconciler) ApplyPush(ctx context.Context, ev PushEvent) *message.Message {
	m := &message.Message{
		Role: message.RoleUser,
		Metadata: message.Metadata{
			CreatedAt:         ev.CreatedAt,
			ServerTimestamped: !ev.CreatedAt.IsZero(),
			SenderID:          ev.SenderID,
			SenderName:        ev.SenderName,
			ReceiverID:        ev.ReceiverID,
			ReceiverName:      ev.ReceiverName,
			CommunicationType: ev.CommunicationType,
		},
	}
	if ev.Content != "" {
		m.Parts = append(m.Parts, message.Part{Kind: message.PartText, Text: ev.Content})
	}
	if ev.FileAttachment != "" {
		m.Parts = append(m.Parts, message.Part{Kind: message.PartFile, FileURL: ev.FileAttachment})
	}

	if existing := r.store.FindByFingerprint(message.FingerprintOf(m)); existing != nil {
		r.log.Debug().
			Str("existing_id", existing.ID).
			Str("sender_id", ev.SenderID).
			Msg("push event is an echo of a rendered message, dropped")
		return nil
	}

	id, err := idgen.GenerateSecureID("msg", 24)
	if err != nil {
		r.log.Error().Err(err).Msg("failed to mint push message ID")
		return nil
	}
	m.ID = id

	if err := r.store.Upsert(m); err != nil {
		r.log.Warn().Err(err).Msg("dropping empty push message")
		return nil
	}
	r.reconcileAgainstSnapshot()

	if r.sink != nil {
		// Fire-and-forget: the push origin already owns the event, local
		// persistence failure must not block the sequence.
		go func(clone *message.Message) {
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := r.sink.SaveMessage(saveCtx, clone); err != nil {
				r.log.Warn().Err(err).Str("message_id", clone.ID).Msg("failed to persist push message")
			}
		}(m.Clone())
	}

	return m
}

// TakeSnapshot captures the sequence immediately before a stream begins.
// While the snapshot is held, every mutation re-checks that no snapshotted
// message vanished from the live sequence.
func (r *Reconciler) TakeSnapshot() {
	r.snapshot = r.store.Snapshot()
	r.streamingID = ""
}

// ClearSnapshot releases the snapshot at stream end.
func (r *Reconciler) ClearSnapshot() {
	r.snapshot = nil
	r.streamingID = ""
}

// ReconcileAgainstSnapshot restores any snapshotted message missing from
// the live sequence, immediately before the currently streaming trailing
// message. The underlying streaming transport is known to re-materialize
// its array and silently drop history; this undoes that.
func (r *Reconciler) ReconcileAgainstSnapshot() {
	r.reconcileAgainstSnapshot()
}

func (r *Reconciler) reconcileAgainstSnapshot() {
	if len(r.snapshot) == 0 {
		return
	}
	for _, snap := range r.snapshot {
		if r.store.Has(snap.ID) {
			continue
		}
		r.log.Warn().
			Str("message_id", snap.ID).
			Msg("restoring message lost from live sequence")
		r.store.InsertBefore(r.streamingID, snap.Clone())
	}
}

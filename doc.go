// Package chatclient implements the chat-client service which maintains a
// consistent conversation view over three concurrent event sources.
//
// The service provides:
//   - An ordered in-memory message store with last-write-wins dedup
//   - Reconciliation of token streams, push-channel events and persistence
//     confirmations into one message sequence
//   - Session management with deterministic IDs and responder switching
//   - Bounded send retries with an online probe, plus stream resumption
//   - An HTTP surface for the rendering layer
package chatclient

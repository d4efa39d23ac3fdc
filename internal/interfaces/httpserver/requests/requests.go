// Package requests contains HTTP request DTOs for the rendering-layer
// surface.
package requests

// SendMessageRequest is the payload for sending a message to a responder.
type SendMessageRequest struct {
	Text        string `json:"text"`
	ResponderID string `json:"responder_id" binding:"required"`
}

// SwitchResponderRequest is the payload for rebinding a conversation to a
// different responder.
type SwitchResponderRequest struct {
	ResponderID string `json:"responder_id" binding:"required"`
}

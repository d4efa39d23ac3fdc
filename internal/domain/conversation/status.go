// Package conversation tracks per-conversation state: which responder is
// addressed, the sessions minted per responder, and the stream lifecycle
// status.
package conversation

import "errors"

// Status represents the stream lifecycle status of a conversation.
type Status string

const (
	// StatusIdle indicates no request is in flight.
	StatusIdle Status = "idle"
	// StatusSubmitted indicates a request was issued and no token has arrived yet.
	StatusSubmitted Status = "submitted"
	// StatusStreaming indicates tokens are being applied to the trailing message.
	StatusStreaming Status = "streaming"
	// StatusSwitching indicates a responder switch is in progress.
	StatusSwitching Status = "switching"
)

// ErrInvalidTransition is returned when a status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidTransitions defines allowed status transitions. Switching is
// reachable from any non-switching state: entering it while streaming is
// precisely the cancel-then-switch path.
var ValidTransitions = map[Status][]Status{
	StatusIdle:      {StatusSubmitted, StatusSwitching},
	StatusSubmitted: {StatusStreaming, StatusIdle, StatusSwitching},
	StatusStreaming: {StatusIdle, StatusSwitching},
	StatusSwitching: {StatusIdle},
}

// IsActive returns true while a stream request is in flight.
func (s Status) IsActive() bool {
	return s == StatusSubmitted || s == StatusStreaming
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range ValidTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// TransitionTo attempts the transition and returns an error if invalid.
func (s Status) TransitionTo(target Status) (Status, error) {
	if !s.CanTransitionTo(target) {
		return s, ErrInvalidTransition
	}
	return target, nil
}

package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores for unknown recipients.
var ErrNotFound = errors.New("not found")

// IngressError is a malformed inbound payload. It never reaches the bridge.
type IngressError struct {
	Reason string
	Err    error
}

func (e *IngressError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingress: %s: %v", e.Reason, e.Err)
	}
	return "ingress: " + e.Reason
}

func (e *IngressError) Unwrap() error { return e.Err }

// RoutingError is an event no handler accepts.
type RoutingError struct {
	Kind    string
	Payload string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing: no handler for %s %q", e.Kind, e.Payload)
}

// GenerationError wraps a content provider failure.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generate %s: %v", e.Op, e.Err) }

func (e *GenerationError) Unwrap() error { return e.Err }

// DeliveryError wraps a failed send to one chat.
type DeliveryError struct {
	ChatID int64
	Op     string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s to %d: %v", e.Op, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

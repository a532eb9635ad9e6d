// Package messaging defines the delivery capability shared by the WhatsApp transports.
package messaging

import (
	"context"
	"errors"
)

var (
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
)

// Sender delivers a text message to a canonical phone number.
// A nil error means the transport accepted the message.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// InboundHandler turns one inbound customer message into the reply text.
// Implementations never fail outward; the reply is always deliverable.
type InboundHandler interface {
	HandleInbound(ctx context.Context, phone, displayName, text string) string
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, phone, displayName, text string) string

// HandleInbound calls f.
func (f InboundHandlerFunc) HandleInbound(ctx context.Context, phone, displayName, text string) string {
	return f(ctx, phone, displayName, text)
}

var errMockDelivery = errors.New("mock delivery failure")

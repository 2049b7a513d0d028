// Package notify delivers client alerts and campaign messages by email (SES)
// and SMS (HTTP gateway).
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/leadflow/internal/domain"
)

var (
	// ErrUnknownChannel is returned for a channel with no configured sender.
	ErrUnknownChannel = errors.New("unknown notification channel")
	// ErrNoRecipient is returned when the message has no address.
	ErrNoRecipient = errors.New("message has no recipient")
)

// Message is one outbound email or SMS. Subject is ignored for SMS.
type Message struct {
	To      string
	Subject string
	Body    string
	Tags    map[string]string
}

// Sender delivers a message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Router picks a Sender by channel name.
type Router struct {
	senders map[string]Sender
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{senders: make(map[string]Sender)}
}

// Handle registers s for channel. A nil sender is ignored.
func (r *Router) Handle(channel string, s Sender) *Router {
	if s != nil {
		r.senders[channel] = s
	}
	return r
}

// Send delivers msg over channel. An empty channel means email.
func (r *Router) Send(ctx context.Context, channel string, msg Message) (string, error) {
	if channel == "" {
		channel = domain.ChannelEmail
	}
	s, ok := r.senders[channel]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	if msg.To == "" {
		return "", ErrNoRecipient
	}
	return s.Send(ctx, msg)
}

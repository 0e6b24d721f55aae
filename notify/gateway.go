package notify

import (
	"context"
	"strings"
)

// Channel is the delivery medium for a one-time code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one code delivery request. Code is plaintext and must only be
// handed to the transport, never logged.
type Message struct {
	Channel      Channel
	Destination  string
	Code         string
	Purpose      string
	CredentialID string
}

// Gateway delivers a message to an external transport.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// GatewayFunc adapts a function to [Gateway].
type GatewayFunc func(ctx context.Context, msg Message) error

func (f GatewayFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// MaskDestination hides most of an address for logs: "j***@example.com",
// "+2547******21".
func MaskDestination(dest string) string {
	if at := strings.IndexByte(dest, '@'); at > 0 {
		return dest[:1] + strings.Repeat("*", 3) + dest[at:]
	}
	if len(dest) <= 4 {
		return strings.Repeat("*", len(dest))
	}
	keep := 5
	if len(dest) < 9 {
		keep = 1
	}
	return dest[:keep] + strings.Repeat("*", len(dest)-keep-2) + dest[len(dest)-2:]
}

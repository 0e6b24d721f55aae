package otpAuth

import (
	"io"

	"github.com/MrEthical07/otpAuth/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one security record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events. Emit is called from the dispatcher
// goroutine, never from the request path.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink forwards events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink = audit.JSONWriterSink

// ZapSink logs events through zap.
type ZapSink = audit.ZapSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewZapSink(logger *zap.Logger) *ZapSink { return audit.NewZapSink(logger) }

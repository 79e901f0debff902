package goUserAuth

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goUserAuth/internal/audit"
)

// AuditEvent is a structured security event emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// SlogSink forwards audit events to a structured logger.
type SlogSink = audit.SlogSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing JSON lines to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink that logs refresh reuse, denied authorizations
// and every other failed event at Warn, and everything else at Info.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger, auditCriticalEvents...)
}

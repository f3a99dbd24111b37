package agentauth

import (
	"io"
	"log/slog"

	internalaudit "github.com/fieldops/agentauth/internal/audit"
)

// AuditEvent is one security-relevant outcome. It never carries passwords or OTP codes.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON object per event line.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes each audit event as a structured log record.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

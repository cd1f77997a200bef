package whatsapp

import (
	"context"
	"log/slog"
)

// NoopSender logs instead of sending. Used in development and in tests
// so reminders flow through the queue without a paired device.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) Send(_ context.Context, to, text string) error {
	s.logger.Info("noop send", "to", to, "chars", len(text))
	return nil
}

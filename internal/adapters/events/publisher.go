package events

import (
	"context"
	"log/slog"

	"github.com/shoplane/commerce-core/internal/domain"
)

// LoggingPublisher stands in for the broker in local/dev runtimes.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, env domain.Envelope) error {
	p.logger.InfoContext(ctx, "event published",
		"module", "events.publisher",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"event_id", env.EventID,
		"topic", env.Topic,
		"event_type", env.EventType,
		"partition_key", env.PartitionKey,
		"correlation_id", env.CorrelationID,
		"payload_bytes", len(env.Payload),
	)
	return nil
}

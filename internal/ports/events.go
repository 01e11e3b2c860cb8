package ports

import (
	"context"

	"github.com/shoplane/commerce-core/internal/domain"
)

// EventPublisher is the outbound domain-event publish port.
// The application uses this abstraction to keep broker/client concerns in adapters.
type EventPublisher interface {
	Publish(ctx context.Context, env domain.Envelope) error
}

package ports

import (
	"context"
	"time"

	"github.com/shoplane/commerce-core/internal/domain"
)

// TokenVerifier validates a bearer token against the external identity
// provider and extracts the request principal. Any verification failure maps
// to domain.ErrUnauthenticated; there is no default-allow path.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (domain.Principal, error)
}

// KeyCache stores the provider's signing-key document with a bounded TTL so
// verification does not hit the discovery endpoint per request. Get returns
// (nil, nil) on a miss.
type KeyCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

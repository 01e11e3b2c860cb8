package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

// RetryPolicy bounds the client's backoff behavior. The zero value is not
// usable; call DefaultRetryPolicy for tuned defaults.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	CallTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		CallTimeout: 8 * time.Second,
	}
}

// RetryClient wraps a DocumentStore driver with throttle-aware retries:
// exponential backoff plus full jitter, honoring a server-suggested
// retry-after hint when one is present. Only throttle errors are retried;
// not-found, conflict and validation errors return immediately because
// retrying them cannot change the outcome. The client performs no admission
// control of its own; backpressure is purely retry delay.
type RetryClient struct {
	inner  ports.DocumentStore
	policy RetryPolicy
	logger *slog.Logger
	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration) error
}

func NewRetryClient(inner ports.DocumentStore, policy RetryPolicy, logger *slog.Logger) *RetryClient {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = 100 * time.Millisecond
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = 5 * time.Second
	}
	if policy.CallTimeout <= 0 {
		policy.CallTimeout = 8 * time.Second
	}
	return &RetryClient{
		inner:  inner,
		policy: policy,
		logger: logger,
		sleep:  sleepCtx,
	}
}

var _ ports.DocumentStore = (*RetryClient)(nil)

func (c *RetryClient) Read(ctx context.Context, collection, id, partitionKey string) (ports.Document, error) {
	return execute(ctx, c, "read", func(callCtx context.Context) (ports.Document, error) {
		return c.inner.Read(callCtx, collection, id, partitionKey)
	})
}

func (c *RetryClient) Insert(ctx context.Context, doc ports.Document) (ports.Document, error) {
	// Safe to retry: the identical payload is re-issued each attempt and the
	// store's uniqueness constraint rejects a duplicate of a write that
	// already landed.
	return execute(ctx, c, "insert", func(callCtx context.Context) (ports.Document, error) {
		return c.inner.Insert(callCtx, doc)
	})
}

func (c *RetryClient) Replace(ctx context.Context, doc ports.Document, expected domain.Revision) (ports.Document, error) {
	return execute(ctx, c, "replace", func(callCtx context.Context) (ports.Document, error) {
		return c.inner.Replace(callCtx, doc, expected)
	})
}

func (c *RetryClient) Delete(ctx context.Context, collection, id, partitionKey string, expected domain.Revision) error {
	_, err := execute(ctx, c, "delete", func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, c.inner.Delete(callCtx, collection, id, partitionKey, expected)
	})
	return err
}

func (c *RetryClient) Query(ctx context.Context, collection string, filter ports.Filter, pageToken string) (ports.Page, error) {
	return execute(ctx, c, "query", func(callCtx context.Context) (ports.Page, error) {
		return c.inner.Query(callCtx, collection, filter, pageToken)
	})
}

// execute runs op with the retry loop. It lives outside the method set so the
// per-operation wrappers can stay typed without repeating the loop.
func execute[T any](ctx context.Context, c *RetryClient, operation string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.policy.CallTimeout)
		result, err := op(callCtx)
		cancel()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// A timed-out store call is treated as retryable, same as a throttle.
			err = &domain.ThrottleError{Cause: err}
		}
		if !domain.IsThrottle(err) {
			return zero, err
		}
		lastErr = err

		if attempt == c.policy.MaxAttempts {
			break
		}
		delay := c.backoff(attempt, err)
		c.logger.WarnContext(ctx, "store call throttled; backing off",
			"module", "docstore",
			"layer", "adapter",
			"operation", operation,
			"outcome", "retry",
			"attempt", attempt,
			"backoff_ms", delay.Milliseconds(),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %v", domain.ErrThrottled, c.policy.MaxAttempts, lastErr)
}

// backoff computes exponential delay with full jitter, preferring the
// server's retry-after hint when it is longer than the computed floor.
func (c *RetryClient) backoff(attempt int, err error) time.Duration {
	ceiling := c.policy.BaseBackoff << (attempt - 1)
	if ceiling > c.policy.MaxBackoff {
		ceiling = c.policy.MaxBackoff
	}
	delay := time.Duration(rand.Int63n(int64(ceiling) + 1))

	var te *domain.ThrottleError
	if errors.As(err, &te) && te.RetryAfter > delay {
		delay = te.RetryAfter
		if delay > c.policy.MaxBackoff {
			delay = c.policy.MaxBackoff
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

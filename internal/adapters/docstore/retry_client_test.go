package docstore

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

func newRetryFixture(t *testing.T, policy RetryPolicy) (*MemoryStore, *RetryClient, *[]time.Duration) {
	t.Helper()
	inner := NewMemoryStore()
	client := NewRetryClient(inner, policy, slog.Default())
	var sleeps []time.Duration
	client.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return inner, client, &sleeps
}

func throttleNTimes(n int, retryAfter time.Duration) func(string, string) error {
	remaining := n
	return func(_, _ string) error {
		if remaining > 0 {
			remaining--
			return &domain.ThrottleError{RetryAfter: retryAfter}
		}
		return nil
	}
}

func TestRetryClientRecoversWithinCeiling(t *testing.T) {
	t.Parallel()

	inner, client, sleeps := newRetryFixture(t, DefaultRetryPolicy())
	inner.Hook = throttleNTimes(3, 0)

	doc, err := client.Insert(context.Background(), ports.Document{
		Collection:   "products",
		ID:           "p-1",
		PartitionKey: "p-1",
		Body:         []byte(`{"sku":"sku-42"}`),
	})
	if err != nil {
		t.Fatalf("insert should succeed once throttling clears: %v", err)
	}
	if doc.Revision != 1 {
		t.Fatalf("fresh insert should land at revision 1, got %d", doc.Revision)
	}
	if len(*sleeps) != 3 {
		t.Fatalf("expected 3 backoff sleeps, got %d", len(*sleeps))
	}
}

func TestRetryClientExhaustsAttempts(t *testing.T) {
	t.Parallel()

	inner, client, sleeps := newRetryFixture(t, RetryPolicy{MaxAttempts: 4})
	inner.Hook = throttleNTimes(100, 0)

	_, err := client.Read(context.Background(), "products", "p-1", "p-1")
	if !errors.Is(err, domain.ErrThrottled) {
		t.Fatalf("expected ErrThrottled after exhausting attempts, got %v", err)
	}
	// One fewer sleep than attempts: no backoff after the final failure.
	if len(*sleeps) != 3 {
		t.Fatalf("expected 3 sleeps for 4 attempts, got %d", len(*sleeps))
	}
}

func TestRetryClientDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	_, client, sleeps := newRetryFixture(t, DefaultRetryPolicy())

	_, err := client.Read(context.Background(), "products", "missing", "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("not-found must not trigger backoff, got %d sleeps", len(*sleeps))
	}
}

func TestRetryClientDoesNotRetryConflicts(t *testing.T) {
	t.Parallel()

	inner, client, sleeps := newRetryFixture(t, DefaultRetryPolicy())
	ctx := context.Background()
	if _, err := inner.Insert(ctx, ports.Document{Collection: "carts", ID: "c-1", PartitionKey: "u-1", Body: []byte(`{}`)}); err != nil {
		t.Fatalf("seed insert failed: %v", err)
	}

	_, err := client.Replace(ctx, ports.Document{Collection: "carts", ID: "c-1", PartitionKey: "u-1", Body: []byte(`{}`)}, domain.Revision(99))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("conflicts must not trigger backoff, got %d sleeps", len(*sleeps))
	}
}

func TestRetryClientHonorsRetryAfterHint(t *testing.T) {
	t.Parallel()

	hint := 2 * time.Second
	inner, client, sleeps := newRetryFixture(t, RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Second,
	})
	inner.Hook = throttleNTimes(1, hint)

	if _, err := client.Read(context.Background(), "products", "p-1", "p-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected eventual not-found, got %v", err)
	}
	if len(*sleeps) != 1 {
		t.Fatalf("expected a single backoff, got %d", len(*sleeps))
	}
	// The jittered floor at 1ms base is far below the hint, so the hint wins.
	if (*sleeps)[0] != hint {
		t.Fatalf("expected retry-after hint %v to be honored, got %v", hint, (*sleeps)[0])
	}
}

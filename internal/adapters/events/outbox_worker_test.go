package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

type fakeOutbox struct {
	mu      sync.Mutex
	pending []ports.OutboxRecord

	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (f *fakeOutbox) Enqueue(_ context.Context, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, ports.OutboxRecord{Envelope: env})
	return nil
}

func (f *fakeOutbox) MarkPublishedInline(_ context.Context, eventID uuid.UUID, _ time.Time) error {
	return f.remove(eventID, &f.published)
}

func (f *fakeOutbox) ClaimUnpublished(_ context.Context, limit int, _ string, _ time.Time) ([]ports.OutboxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.pending) {
		limit = len(f.pending)
	}
	return append([]ports.OutboxRecord(nil), f.pending[:limit]...), nil
}

func (f *fakeOutbox) MarkPublished(_ context.Context, eventID uuid.UUID, _ string, _ time.Time) error {
	return f.remove(eventID, &f.published)
}

func (f *fakeOutbox) MarkFailed(_ context.Context, eventID uuid.UUID, _, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pending {
		if f.pending[i].Envelope.EventID == eventID {
			f.pending[i].RetryCount++
		}
	}
	f.failed = append(f.failed, eventID)
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(_ context.Context, eventID uuid.UUID, _, _ string, _ time.Time) error {
	return f.remove(eventID, &f.deadLettered)
}

func (f *fakeOutbox) remove(eventID uuid.UUID, into *[]uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.pending[:0]
	for _, rec := range f.pending {
		if rec.Envelope.EventID != eventID {
			kept = append(kept, rec)
		}
	}
	f.pending = kept
	*into = append(*into, eventID)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failures  int
	delivered []domain.Envelope
}

func (p *fakePublisher) Publish(_ context.Context, env domain.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.delivered = append(p.delivered, env)
	return nil
}

func pendingEnvelope(t *testing.T) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(domain.TopicOrderEvents, domain.EventOrderCreated, "o-1", "corr", "req", map[string]string{"order_id": "o-1"})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	return env
}

func TestOutboxSweepPublishesPending(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{}
	publisher := &fakePublisher{}
	worker := NewOutboxWorker(slog.Default(), outbox, publisher, time.Second, 10, time.Minute, 5)

	env := pendingEnvelope(t)
	_ = outbox.Enqueue(context.Background(), env)

	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(publisher.delivered) != 1 || publisher.delivered[0].EventID != env.EventID {
		t.Fatalf("expected the pending envelope to be delivered")
	}
	if len(outbox.published) != 1 {
		t.Fatalf("expected the envelope marked published")
	}
	if len(outbox.pending) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(outbox.pending))
	}
}

func TestOutboxSweepRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{}
	publisher := &fakePublisher{failures: 100}
	worker := NewOutboxWorker(slog.Default(), outbox, publisher, time.Second, 10, time.Minute, 3)

	env := pendingEnvelope(t)
	_ = outbox.Enqueue(context.Background(), env)

	// Two sweeps fail and increment the retry count; the third crosses the
	// ceiling and abandons the entry.
	for i := 0; i < 3; i++ {
		if err := worker.ProcessOnce(context.Background()); err != nil {
			t.Fatalf("sweep %d failed: %v", i, err)
		}
	}

	if len(outbox.deadLettered) != 1 {
		t.Fatalf("expected one dead-lettered envelope, got %d", len(outbox.deadLettered))
	}
	if len(outbox.pending) != 0 {
		t.Fatalf("dead-lettered entry must leave the backlog")
	}
	if len(publisher.delivered) != 0 {
		t.Fatalf("nothing should have been delivered")
	}

	// Later sweeps find nothing; the entry is never retried again.
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("post dead-letter sweep failed: %v", err)
	}
	if len(outbox.deadLettered) != 1 {
		t.Fatalf("dead-letter must be terminal")
	}
}

func TestOutboxSweepRecoversAfterOutage(t *testing.T) {
	t.Parallel()

	outbox := &fakeOutbox{}
	publisher := &fakePublisher{failures: 1}
	worker := NewOutboxWorker(slog.Default(), outbox, publisher, time.Second, 10, time.Minute, 5)

	env := pendingEnvelope(t)
	_ = outbox.Enqueue(context.Background(), env)

	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if len(outbox.failed) != 1 {
		t.Fatalf("expected a recorded failure")
	}
	if err := worker.ProcessOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if len(publisher.delivered) != 1 {
		t.Fatalf("expected delivery once the broker recovers")
	}
}

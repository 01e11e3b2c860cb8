package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shoplane/commerce-core/internal/domain"
)

// Use-case lifecycle states. Every mutating call walks Authorizing ->
// Executing -> Publishing -> Complete; Denied and Failed are the terminal
// short circuits. Denial happens before any side effect.
type useCaseState string

const (
	stateAuthorizing useCaseState = "authorizing"
	stateExecuting   useCaseState = "executing"
	statePublishing  useCaseState = "publishing"
	stateComplete    useCaseState = "complete"
	stateDenied      useCaseState = "denied"
	stateFailed      useCaseState = "failed"
)

// correlation threads one external request through every envelope it spawns.
// The first envelope is caused by the request id; each subsequent envelope is
// caused by the one emitted just before it, forming an acyclic chain.
type correlation struct {
	id    string
	cause string
}

func newCorrelation(requestID string) *correlation {
	return &correlation{id: requestID, cause: requestID}
}

// envelope builds the next envelope in the chain and advances the causation
// pointer to it.
func (c *correlation) envelope(topic domain.Topic, eventType, partitionKey string, payload any) (domain.Envelope, error) {
	env, err := domain.NewEnvelope(topic, eventType, partitionKey, c.id, c.cause, payload)
	if err != nil {
		return domain.Envelope{}, err
	}
	c.cause = env.EventID.String()
	return env, nil
}

// uc is the per-call orchestrator. It owns state transitions, logging, and
// the publish stage; the run* helpers on Service drive it.
type uc struct {
	svc   *Service
	op    domain.Operation
	corr  *correlation
	log   *slog.Logger
	state useCaseState

	// sync makes a broker rejection fail the whole call instead of
	// degrading to the publish-pending sweep. Payment transitions use it.
	sync bool

	envelopes []domain.Envelope
}

// writeContext shields a repository write from inbound cancellation. A
// conditional write either fully applies or fully fails; a commit that lands
// after the caller goes away must still reach the publish phase, otherwise
// stored state would change with no envelope behind it. The store client's
// call timeout bounds the shielded work.
func writeContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (s *Service) begin(op domain.Operation, requestID string) *uc {
	corr := newCorrelation(requestID)
	return &uc{
		svc:   s,
		op:    op,
		corr:  corr,
		state: stateAuthorizing,
		log: s.log.With(
			slog.String("operation", op.String()),
			slog.String("correlation_id", corr.id),
		),
	}
}

func (u *uc) transition(next useCaseState) {
	u.log.Debug("use case transition",
		slog.String("from", string(u.state)),
		slog.String("to", string(next)))
	u.state = next
}

// authorize gates the call. Failure here is terminal and side-effect free.
func (u *uc) authorize(p *domain.Principal) error {
	if err := domain.Authorize(p, u.op); err != nil {
		u.transition(stateDenied)
		u.log.Warn("authorization denied", slog.String("outcome", "denied"))
		return err
	}
	u.transition(stateExecuting)
	return nil
}

// emit stages an envelope for the publish phase.
func (u *uc) emit(topic domain.Topic, eventType, partitionKey string, payload any) error {
	env, err := u.corr.envelope(topic, eventType, partitionKey, payload)
	if err != nil {
		return err
	}
	u.envelopes = append(u.envelopes, env)
	return nil
}

func (u *uc) fail(err error) error {
	u.transition(stateFailed)
	u.log.Error("use case failed",
		slog.String("outcome", "failed"),
		slog.String("error", err.Error()))
	return err
}

// finish runs the publish phase and completes the call. Every staged envelope
// is enqueued durably before the inline broker attempt, so a crash or broker
// outage leaves a publish-pending record for the sweep instead of losing the
// event. The caller's response never waits on broker delivery unless sync is
// set.
func (u *uc) finish(ctx context.Context) error {
	if len(u.envelopes) > 0 {
		u.transition(statePublishing)
		// The store write already happened; cancellation of the inbound
		// request must not abandon the envelopes it produced.
		pubCtx := context.WithoutCancel(ctx)
		for _, env := range u.envelopes {
			if err := u.publishOne(pubCtx, env); err != nil {
				return u.fail(err)
			}
		}
	}
	u.transition(stateComplete)
	u.log.Info("use case complete",
		slog.String("outcome", "success"),
		slog.Int("events", len(u.envelopes)))
	return nil
}

func (u *uc) publishOne(ctx context.Context, env domain.Envelope) error {
	enqueueErr := u.svc.deps.Outbox.Enqueue(ctx, env)
	if enqueueErr != nil {
		u.log.Error("outbox enqueue failed",
			slog.String("event_id", env.EventID.String()),
			slog.String("event_type", env.EventType),
			slog.String("error", enqueueErr.Error()))
	}

	pubErr := u.svc.deps.Publisher.Publish(ctx, env)
	if pubErr == nil {
		if enqueueErr == nil {
			if err := u.svc.deps.Outbox.MarkPublishedInline(ctx, env.EventID, u.svc.nowFn()); err != nil {
				// The sweep will re-deliver; at-least-once covers it.
				u.log.Warn("mark published failed; sweep will redeliver",
					slog.String("event_id", env.EventID.String()),
					slog.String("error", err.Error()))
			}
		}
		return nil
	}

	u.log.Warn("inline publish failed",
		slog.String("event_id", env.EventID.String()),
		slog.String("event_type", env.EventType),
		slog.String("topic", string(env.Topic)),
		slog.String("error", pubErr.Error()))

	if enqueueErr != nil {
		// Neither durable nor delivered. This is the one path that can
		// lose an event, so it escalates instead of degrading quietly.
		u.log.Error("event neither delivered nor durably pending; operator attention required",
			slog.String("event_id", env.EventID.String()),
			slog.String("event_type", env.EventType))
		return fmt.Errorf("publish %s: %w", env.EventType, pubErr)
	}
	if u.sync {
		return fmt.Errorf("publish %s: confirmation required: %w", env.EventType, pubErr)
	}
	return nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shoplane/commerce-core/internal/domain"
	"github.com/shoplane/commerce-core/internal/ports"
)

// OutboxRepository persists publish-pending envelopes. Claim tokens plus a
// lease window keep concurrent sweep cycles from double-claiming an entry.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, env domain.Envelope) error {
	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	rec := outboxModel{
		EventID:       env.EventID,
		Topic:         string(env.Topic),
		EventType:     env.EventType,
		PartitionKey:  env.PartitionKey,
		CorrelationID: env.CorrelationID,
		CausationID:   env.CausationID,
		OccurredAt:    env.OccurredAt,
		Payload:       string(payload),
		CreatedAt:     env.OccurredAt,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// MarkPublishedInline acknowledges an envelope that the request path managed
// to publish synchronously, before any sweep claimed it.
func (r *OutboxRepository) MarkPublishedInline(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("event_id = ?", eventID).
		Where("published_at IS NULL").
		Where("claim_token IS NULL").
		Update("published_at", at).Error
}

func (r *OutboxRepository) ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]ports.OutboxRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	now := time.Now().UTC()
	var rows []outboxModel
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&outboxModel{}).
			Select("event_id").
			Where("published_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("created_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&outboxModel{}).
			Where("event_id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("published_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Order("created_at ASC").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}

	result := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, toOutboxRecord(row))
	}
	return result, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID, claimToken string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("event_id = ?", eventID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"published_at": at,
			"claim_token":  nil,
			"claim_until":  nil,
		}).Error
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("event_id = ?", eventID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    errMsg,
			"last_error_at": at,
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *OutboxRepository) MarkDeadLettered(ctx context.Context, eventID uuid.UUID, claimToken, errMsg string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("event_id = ?", eventID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"retry_count":      gorm.Expr("retry_count + 1"),
			"last_error":       errMsg,
			"last_error_at":    at,
			"dead_lettered_at": at,
			"claim_token":      nil,
			"claim_until":      nil,
		}).Error
}

func toOutboxRecord(row outboxModel) ports.OutboxRecord {
	return ports.OutboxRecord{
		Envelope: domain.Envelope{
			EventID:       row.EventID,
			Topic:         domain.Topic(row.Topic),
			EventType:     row.EventType,
			PartitionKey:  row.PartitionKey,
			CorrelationID: row.CorrelationID,
			CausationID:   row.CausationID,
			OccurredAt:    row.OccurredAt,
			Payload:       json.RawMessage(row.Payload),
		},
		RetryCount:     row.RetryCount,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		PublishedAt:    row.PublishedAt,
		LastErrorAt:    row.LastErrorAt,
		ClaimToken:     row.ClaimToken,
		ClaimUntil:     row.ClaimUntil,
		DeadLetteredAt: row.DeadLetteredAt,
	}
}

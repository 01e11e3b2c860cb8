package postgres

import (
	"time"

	"github.com/google/uuid"
)

type documentModel struct {
	Collection   string    `gorm:"column:collection;primaryKey"`
	DocID        string    `gorm:"column:doc_id;primaryKey"`
	PartitionKey string    `gorm:"column:partition_key"`
	Revision     int64     `gorm:"column:revision"`
	Body         string    `gorm:"column:body;type:jsonb"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (documentModel) TableName() string { return "documents" }

type outboxModel struct {
	EventID        uuid.UUID  `gorm:"column:event_id;type:uuid;primaryKey"`
	Topic          string     `gorm:"column:topic"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	CorrelationID  string     `gorm:"column:correlation_id"`
	CausationID    string     `gorm:"column:causation_id"`
	OccurredAt     time.Time  `gorm:"column:occurred_at"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (outboxModel) TableName() string { return "event_outbox" }

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/shoplane/commerce-core/internal/domain"
)

// KafkaPublisher appends envelopes to their topic with at-least-once
// semantics. The message key is the envelope's partition key, so the hash
// balancer preserves per-entity ordering within a topic partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, env domain.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", env.EventID, err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: string(env.Topic),
		Key:   []byte(env.PartitionKey),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(env.EventID.String())},
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "correlation_id", Value: []byte(env.CorrelationID)},
			{Key: "causation_id", Value: []byte(env.CausationID)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

package repository

import (
	"context"

	"TrendGate/internal/domain/models"
	"TrendGate/internal/domain/repository"
	pkgkafka "TrendGate/pkg/kafka"
)

// KafkaDecisionSink forwards validated decisions to the execution
// collaborator's topic, keyed by symbol for per-symbol ordering.
type KafkaDecisionSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaDecisionSink creates a Kafka decision sink.
func NewKafkaDecisionSink(producer *pkgkafka.Producer, topic string) *KafkaDecisionSink {
	return &KafkaDecisionSink{producer: producer, topic: topic}
}

func (s *KafkaDecisionSink) Publish(ctx context.Context, d *models.Decision) error {
	return s.producer.Publish(ctx, s.topic, []byte(d.Symbol), d)
}

func (s *KafkaDecisionSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

var _ repository.DecisionSink = (*KafkaDecisionSink)(nil)

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/configs"
	"github.com/enterprise/aml-screening/internal/models"
)

// Publisher emits flag lifecycle events
type Publisher interface {
	PublishFlagEvent(ctx context.Context, event models.FlagEvent) error
	Close() error
}

// KafkaPublisher publishes flag events to a Kafka topic keyed by transaction
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the configured brokers
func NewKafkaPublisher(cfg configs.KafkaConfig) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Version = sarama.V3_0_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.FlagTopic).Msg("Kafka flag publisher ready")
	return NewKafkaPublisherWithProducer(producer, cfg.FlagTopic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// PublishFlagEvent sends one event
func (p *KafkaPublisher) PublishFlagEvent(_ context.Context, event models.FlagEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode flag event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.TransactionID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("failed to publish flag event: %w", err)
	}
	return nil
}

// Close closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher discards events; used when Kafka is not configured
type NoopPublisher struct{}

func (NoopPublisher) PublishFlagEvent(context.Context, models.FlagEvent) error { return nil }
func (NoopPublisher) Close() error                                             { return nil }

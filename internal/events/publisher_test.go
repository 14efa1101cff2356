package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/aml-screening/internal/models"
)

func TestKafkaPublisher_PublishFlagEvent(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)

	event := models.FlagEvent{
		Type:          models.FlagEventCreated,
		FlagID:        "f-1",
		TransactionID: "t-1",
		RuleName:      "STRUCTURING_PATTERN",
		RiskLevel:     models.RiskLevelHigh,
		Timestamp:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "t-1" {
			return errors.New("message not keyed by transaction")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got models.FlagEvent
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.RuleName != event.RuleName {
			return errors.New("unexpected rule name")
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(producer, "aml.flag-events")
	require.NoError(t, publisher.PublishFlagEvent(context.Background(), event))
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	config := mocks.NewTestConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherWithProducer(producer, "aml.flag-events")
	err := publisher.PublishFlagEvent(context.Background(), models.FlagEvent{TransactionID: "t-1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, publisher.Close())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishFlagEvent(context.Background(), models.FlagEvent{}))
	assert.NoError(t, p.Close())
}

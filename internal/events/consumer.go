package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/aml-screening/internal/models"
)

// FlagEventHandler consumes flag events from a consumer group claim
type FlagEventHandler struct {
	Handle func(ctx context.Context, event models.FlagEvent)
}

func (h *FlagEventHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Flag event session started")
	return nil
}

func (h *FlagEventHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info().Msg("Flag event session ended")
	return nil
}

func (h *FlagEventHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.process(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *FlagEventHandler) process(ctx context.Context, message *sarama.ConsumerMessage) {
	var event models.FlagEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		log.Error().Err(err).Int64("offset", message.Offset).Msg("Failed to parse flag event")
		return
	}
	h.Handle(ctx, event)
}

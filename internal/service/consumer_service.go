package service

import (
	"context"
	"encoding/json"

	"zkcred-be/internal/dto"
	"zkcred-be/internal/entity"
	"zkcred-be/internal/pkg/logger"
	"zkcred-be/internal/repository/contract"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService writes the session audit trail. With a nil repository
// it only logs.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	events     contract.SessionEventRepository
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	events contract.SessionEventRepository,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		events:     events,
		logger:     log,
	}
}

// Consume subscribes and processes messages in the background until ctx
// is done.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.SessionTransitionMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("AuditConsumer", "Failed to unmarshal message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	if cs.events == nil {
		cs.logger.Debug("AuditConsumer", payload.Text, map[string]interface{}{
			"session_id": payload.SessionId,
			"phase":      payload.Phase,
		})
		msg.Ack()
		return
	}

	event := &entity.SessionEvent{
		Id:        uuid.New(),
		SessionId: payload.SessionId,
		ChannelId: payload.ChannelId,
		Portal:    payload.Portal,
		Phase:     payload.Phase,
		Text:      payload.Text,
		CreatedAt: payload.At,
	}
	if err := cs.events.Create(ctx, event); err != nil {
		cs.logger.Error("AuditConsumer", "Failed to store session event", map[string]interface{}{
			"session_id": payload.SessionId,
			"error":      err.Error(),
		})
		// The audit trail is best-effort; redelivery would reorder it.
		msg.Ack()
		return
	}
	msg.Ack()
}

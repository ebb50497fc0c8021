package service

import (
	"context"
	"fmt"

	"zkcred-be/internal/pkg/logger"
	"zkcred-be/internal/session"
	"zkcred-be/pkg/events"
	pktNats "zkcred-be/pkg/nats" // Renamed to avoid collision
)

const (
	EventProofAdded = "proof_added"
	notifierDurable = "proof-notifier"
	notifierSubject = "events." + session.EventVerificationCompleted
)

// NotificationDelivery pushes real-time updates to an owner's channels.
// Implemented by the WebSocket Hub.
type NotificationDelivery interface {
	SendToOwner(ownerID, event string, data interface{})
}

// EventSubscriber is implemented by the NATS subscriber.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

type ProofAddedMessage struct {
	RecordId string `json:"recordId"`
	Portal   string `json:"portal"`
}

// NotificationService tells an owner's open dashboards that a new proof
// exists.
type NotificationService struct {
	subscriber EventSubscriber
	delivery   NotificationDelivery
	logger     logger.ILogger
}

func NewNotificationService(sub EventSubscriber, delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Start begins listening to the event bus until ctx is done.
func (s *NotificationService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, notifierSubject, notifierDurable, s.handleEvent); err != nil {
		return fmt.Errorf("notification subscriber: %w", err)
	}
	s.logger.Info("NotificationService", "Notification service started", map[string]interface{}{"subject": notifierSubject})
	return nil
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	payload := event.Payload()
	ownerID, _ := payload["owner_id"].(string)
	recordID, _ := payload["record_id"].(string)
	portal, _ := payload["portal"].(string)

	if ownerID == "" {
		// Anonymous sessions have no dashboard to refresh.
		return nil
	}
	if recordID == "" {
		s.logger.Warn("NotificationService", "Event without record_id", map[string]interface{}{"type": event.EventType()})
		return nil
	}

	s.delivery.SendToOwner(ownerID, EventProofAdded, ProofAddedMessage{RecordId: recordID, Portal: portal})
	s.logger.Info("NotificationService", "Proof notification delivered", map[string]interface{}{
		"owner_id":  ownerID,
		"record_id": recordID,
	})
	return nil
}

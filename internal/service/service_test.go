package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"zkcred-be/internal/dto"
	"zkcred-be/internal/entity"
	"zkcred-be/internal/pkg/logger"
	"zkcred-be/internal/repository/memory"
	"zkcred-be/pkg/events"
	pktNats "zkcred-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSubscriber struct {
	subject string
	durable string
	handler pktNats.EventHandler
}

func (s *captureSubscriber) Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error {
	s.subject, s.durable, s.handler = subject, durableName, handler
	return nil
}

type delivery struct {
	owner string
	event string
	data  interface{}
}

type captureDelivery struct {
	mu   sync.Mutex
	sent []delivery
}

func (d *captureDelivery) SendToOwner(ownerID, event string, data interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, delivery{ownerID, event, data})
}

func TestNotificationService_PushesProofAdded(t *testing.T) {
	sub := &captureSubscriber{}
	out := &captureDelivery{}
	svc := NewNotificationService(sub, out, logger.NewNopLogger())

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, "events.VERIFICATION_COMPLETED", sub.subject)
	assert.Equal(t, "proof-notifier", sub.durable)

	emit := func(data map[string]interface{}) {
		require.NoError(t, sub.handler(context.Background(), events.BaseEvent{Type: "VERIFICATION_COMPLETED", Data: data, OccurredAt: time.Now()}))
	}
	emit(map[string]interface{}{"owner_id": "alice", "record_id": "r-1", "portal": "nitw"})
	emit(map[string]interface{}{"owner_id": "", "record_id": "r-2", "portal": "nitw"})
	emit(map[string]interface{}{"owner_id": "bob"})

	require.Len(t, out.sent, 1)
	assert.Equal(t, "alice", out.sent[0].owner)
	assert.Equal(t, EventProofAdded, out.sent[0].event)
	assert.Equal(t, ProofAddedMessage{RecordId: "r-1", Portal: "nitw"}, out.sent[0].data)
}

func TestAuditTrail_PublishAndConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer pubSub.Close()

	repo := memory.NewSessionEventRepository()
	consumer := NewConsumerService(pubSub, "session.transitions", repo, logger.NewNopLogger())
	require.NoError(t, consumer.Consume(ctx))

	publisher := NewPublisherService(pubSub, "session.transitions")
	base := time.Now()
	for i, phase := range []string{"initializing", "extracting"} {
		payload, err := json.Marshal(dto.SessionTransitionMessage{SessionId: "s-1", ChannelId: "c-1", Portal: "nitw", Phase: phase, Text: "entered " + phase, At: base.Add(time.Duration(i) * time.Millisecond)})
		require.NoError(t, err)
		require.NoError(t, publisher.Publish(ctx, payload))
	}
	require.NoError(t, publisher.Publish(ctx, []byte("not json")))

	var got []*entity.SessionEvent
	require.Eventually(t, func() bool {
		var err error
		got, err = repo.FindBySession(ctx, "s-1")
		return err == nil && len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "initializing", got[0].Phase)
	assert.Equal(t, "c-1", got[0].ChannelId)
}

func TestVerificationService_LimitBounds(t *testing.T) {
	repo := memory.NewVerificationRepository()
	ctx := context.Background()
	owner := "alice"
	for i := 0; i < MaxProofsLimit+5; i++ {
		require.NoError(t, repo.Create(ctx, &entity.VerificationRecord{OwnerId: &owner, Status: entity.VerificationStatusVerified}))
	}
	svc := NewVerificationService(repo, nil)

	res, err := svc.GetProofs(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, res.Proofs, DefaultProofsLimit)

	res, err = svc.GetProofs(ctx, owner, 500)
	require.NoError(t, err)
	assert.Len(t, res.Proofs, MaxProofsLimit)
}

package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"zkcred-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "cluster_events"

type Hub struct {
	// Channels bound to an owner: OwnerID -> clients (multi-tab, multi-device)
	owners map[string][]*Client

	// Every connected channel by ID
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// Tags our own redis publications so they are not delivered twice.
	instanceID string

	stopped chan struct{}

	// Dedicated Logger
	logger logger.ILogger
}

type clusterMessage struct {
	Origin        string          `json:"origin"`
	TargetOwnerID string          `json:"target_owner_id"`
	Message       json.RawMessage `json:"message"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		owners:     make(map[string][]*Client),
		clients:    make(map[string]*Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		stopped:    make(chan struct{}),
		logger:     log,
	}
}

// Run serves register/unregister requests until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	// Start Redis Subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				c.markClosed()
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if client.OwnerID != "" {
				h.owners[client.OwnerID] = append(h.owners[client.OwnerID], client)
			}
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"channel_id": client.ID, "owner_id": client.OwnerID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	if clients, ok := h.owners[client.OwnerID]; ok {
		for i, c := range clients {
			if c == client {
				h.owners[client.OwnerID] = append(clients[:i], clients[i+1:]...)
				break
			}
		}
		if len(h.owners[client.OwnerID]) == 0 {
			delete(h.owners, client.OwnerID)
		}
	}
	h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"channel_id": client.ID})
}

// Connected returns the number of open channels on this instance.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendToOwner delivers an event to every channel bound to ownerID, on this
// instance and, through redis, on every other instance.
func (h *Hub) SendToOwner(ownerID, event string, data interface{}) {
	if ownerID == "" {
		return
	}
	message, err := Encode(event, data)
	if err != nil {
		h.logger.Error("Hub", "Failed to encode event", map[string]interface{}{"event": event, "error": err.Error()})
		return
	}

	h.deliverLocal(ownerID, message)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.instanceID, TargetOwnerID: ownerID, Message: message})
		if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliverLocal(ownerID string, message []byte) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.owners[ownerID]...)
	h.mu.RUnlock()

	for _, client := range clients {
		if !client.TryEnqueue(message) {
			h.logger.Warn("Hub", "Client Send buffer full, dropping message", map[string]interface{}{"channel_id": client.ID})
		}
	}
}

// All instances subscribe to one cluster channel and keep the messages whose
// owner has a channel open locally.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(payload.TargetOwnerID, payload.Message)
		}
	}
}

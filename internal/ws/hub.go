package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/chorusfm/chorus/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisChannel = "chorus:connect:events"

// Hub manages all device connections grouped per user and fans events out to
// them. Cross-instance delivery goes through Redis Pub/Sub: every send is
// published, and each instance's subscriber delivers to the clients it hosts.
//
// Correctness of the per-user single-writer discipline assumes one user's
// devices are routed to the same instance; the relay exists so display-only
// consumers elsewhere still observe state.
type Hub struct {
	// Map of userID -> set of device connections
	clients map[uuid.UUID]map[*Client]bool
	mu      sync.RWMutex

	// Channels for registering/unregistering clients
	register   chan *Client
	unregister chan *Client

	// Redis client for Pub/Sub (horizontal scaling)
	rdb *redis.Client
}

// NewHub creates a new connection hub.
func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rdb:        rdb,
	}
}

// Run starts the hub's main event loop.
func (h *Hub) Run(ctx context.Context) {
	go h.subscribeRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

// Register queues a client for registration with the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.UserID]; !ok {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true
	log.Printf("✅ Connection opened for user %s (connections: %d)", client.UserID, len(h.clients[client.UserID]))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[client.UserID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			client.markClosed()
			close(client.send)
		}
		if len(clients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	log.Printf("❌ Connection closed for user %s (device %q)", client.UserID, client.DeviceID())
}

// TargetedEvent is the Redis Pub/Sub envelope. TargetDeviceID narrows
// delivery to one device, ExcludeDeviceID skips the sender on sibling
// broadcasts; with neither set, the whole user group receives the event.
type TargetedEvent struct {
	TargetUserID    uuid.UUID      `json:"target_user_id"`
	TargetDeviceID  string         `json:"target_device_id,omitempty"`
	ExcludeDeviceID string         `json:"exclude_device_id,omitempty"`
	Event           *model.WSEvent `json:"event"`
}

// ToDevice sends an event to one device of a user.
func (h *Hub) ToDevice(userID uuid.UUID, deviceID string, event *model.WSEvent) {
	h.publish(&TargetedEvent{TargetUserID: userID, TargetDeviceID: deviceID, Event: event})
}

// ToUser sends an event to all of a user's devices.
func (h *Hub) ToUser(userID uuid.UUID, event *model.WSEvent) {
	h.publish(&TargetedEvent{TargetUserID: userID, Event: event})
}

// ToSiblings sends an event to all of a user's devices except one.
func (h *Hub) ToSiblings(userID uuid.UUID, exceptDeviceID string, event *model.WSEvent) {
	h.publish(&TargetedEvent{TargetUserID: userID, ExcludeDeviceID: exceptDeviceID, Event: event})
}

// publish pushes the envelope through Redis; the subscriber (this instance
// included) performs local delivery.
func (h *Hub) publish(targeted *TargetedEvent) {
	data, err := json.Marshal(targeted)
	if err != nil {
		log.Printf("Error marshaling for Redis: %v", err)
		return
	}

	if err := h.rdb.Publish(context.Background(), redisChannel, data).Err(); err != nil {
		log.Printf("Error publishing to Redis: %v", err)
	}
}

// deliverLocal fans a relayed event out to the matching local connections.
func (h *Hub) deliverLocal(targeted *TargetedEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[targeted.TargetUserID]
	if !ok {
		return
	}
	for client := range clients {
		deviceID := client.DeviceID()
		if targeted.TargetDeviceID != "" && deviceID != targeted.TargetDeviceID {
			continue
		}
		if targeted.ExcludeDeviceID != "" && deviceID == targeted.ExcludeDeviceID {
			continue
		}
		if err := client.Send(targeted.Event); err != nil {
			// Best-effort: a full or closed connection drops the
			// message and the sweeper reconciles the registry.
			log.Printf("Dropped %s for device %q: %v", targeted.Event.Type, deviceID, err)
		}
	}
}

// subscribeRedis subscribes to the relay channel and delivers events to local
// clients.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	log.Println("📡 Redis Pub/Sub subscriber started")

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			var targeted TargetedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &targeted); err != nil {
				log.Printf("Error unmarshaling Redis message: %v", err)
				continue
			}
			h.deliverLocal(&targeted)
		}
	}
}

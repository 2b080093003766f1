package hub

import (
	"encoding/json"
	"sync"
	"time"

	"frontdesk/internal/logger"

	"go.uber.org/zap"
)

// Subscription scopes a client to the events of one identity.
type Subscription struct {
	IdentityID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

// Envelope is the wire shape of every realtime message.
type Envelope struct {
	Type       string    `json:"type"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *zap.Logger
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client), log: logger.Named("hub")}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.log.Warn("drop message for slow client", zap.String("client_id", client.ID))
		}
	}
}

// PublishAuthEvent fans an auth lifecycle event out to the identity's clients.
func (h *Hub) PublishAuthEvent(identityID, event string) {
	if identityID == "" {
		return
	}
	payload, err := json.Marshal(Envelope{Type: event, IdentityID: identityID, CreatedAt: time.Now().UTC()})
	if err != nil {
		return
	}
	h.Broadcast(payload, Subscription{IdentityID: identityID})
}

func match(sub Subscription, meta Subscription) bool {
	if sub.IdentityID == "" {
		return false
	}
	return meta.IdentityID == "" || meta.IdentityID == sub.IdentityID
}

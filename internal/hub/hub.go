package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Subscription filters broadcast events. Empty fields match everything, so a
// TV board subscribes with just a date and an agent console narrows to its
// stage.
type Subscription struct {
	Date  string
	Stage string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type ControlMessage struct {
	Action string `json:"action"`
	Date   string `json:"date"`
	Stage  string `json:"stage"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
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
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func match(sub Subscription, meta Subscription) bool {
	if sub.Date != "" && meta.Date != sub.Date {
		return false
	}
	if sub.Stage != "" && meta.Stage != sub.Stage {
		return false
	}
	return true
}

// ParseControl recognizes the client-side protocol: subscribe, unsubscribe
// and on-demand snapshot requests.
func ParseControl(data []byte) (ControlMessage, bool) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ControlMessage{}, false
	}
	switch msg.Action {
	case "subscribe", "unsubscribe", "snapshot":
		return msg, true
	}
	return ControlMessage{}, false
}

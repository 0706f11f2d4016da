package ws

import "sync"

// Hub fans payloads out to the clients subscribed to a topic.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: map[string]map[*Client]struct{}{}}
}

func (h *Hub) Subscribe(topic string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.topics[topic]
	if !ok {
		members = map[*Client]struct{}{}
		h.topics[topic] = members
	}
	members[client] = struct{}{}
	client.addChannel(topic)
}

func (h *Hub) Unsubscribe(topic string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, client)
	client.removeChannel(topic)
}

// UnsubscribeAll detaches a closing client from every topic it joined.
func (h *Hub) UnsubscribeAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range client.listChannels() {
		h.removeLocked(topic, client)
	}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	members, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.topics, topic)
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Publish copies the member list before sending so a slow client never holds
// the hub lock.
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.topics[topic]))
	for c := range h.topics[topic] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.send(payload)
	}
}

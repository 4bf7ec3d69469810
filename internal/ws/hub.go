package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
)

// Hub is the live-connection registry: an explicit room-membership table keyed by chat
// id plus a per-user connection table. Its lifecycle is scoped to the process; clients
// rebuild their subscriptions on reconnect.
type Hub struct {
	rooms map[int]map[*Client]struct{}
	users map[int]map[*Client]struct{}
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int]map[*Client]struct{}),
		users: make(map[int]map[*Client]struct{}),
	}
}

// Register adds an authenticated connection to the per-user table.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[c.userID]; !ok {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
}

// Unregister drops a connection from every room and the per-user table.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID := range c.rooms {
		h.removeFromRoomLocked(chatID, c)
	}
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
}

// JoinRoom subscribes a connection to a chat room.
func (h *Hub) JoinRoom(chatID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]struct{})
	}
	h.rooms[chatID][c] = struct{}{}
	c.rooms[chatID] = struct{}{}
}

// LeaveRoom removes a connection from a chat room.
func (h *Hub) LeaveRoom(chatID int, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(chatID, c)
	delete(c.rooms, chatID)
}

func (h *Hub) removeFromRoomLocked(chatID int, c *Client) {
	if conns, ok := h.rooms[chatID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// UserOnline reports whether the user has at least one live connection.
func (h *Hub) UserOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// DeliverMessage fans a freshly sent message out: `message received` to every room
// subscriber except the sender's own connection, and a list-level `notification
// received` to member connections that are not subscribed to the room.
func (h *Hub) DeliverMessage(msg *models.MessageDetail, origin *Client) {
	roomPayload := marshal(models.ServerEvent{Type: models.EventMessageReceived, ChatID: msg.ChatID, Message: msg})
	notifyPayload := marshal(models.ServerEvent{Type: models.EventNotification, ChatID: msg.ChatID, Message: msg})

	h.mu.RLock()
	room := h.rooms[msg.ChatID]
	targets := make(map[*Client][]byte)
	for c := range room {
		if c != origin {
			targets[c] = roomPayload
		}
	}
	if msg.Chat != nil {
		for _, memberID := range msg.Chat.MemberIDs() {
			if memberID == msg.Sender.ID {
				continue
			}
			for c := range h.users[memberID] {
				if _, subscribed := room[c]; subscribed {
					continue
				}
				targets[c] = notifyPayload
			}
		}
	}
	h.mu.RUnlock()

	for c, payload := range targets {
		h.send(c, payload)
	}
	observability.IncWSEvent("message_received")
}

// BroadcastToRoom publishes an event to every room subscriber except origin. Used for
// typing indicators.
func (h *Hub) BroadcastToRoom(chatID int, event models.ServerEvent, origin *Client) {
	payload := marshal(event)

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[chatID]))
	for c := range h.rooms[chatID] {
		if c != origin {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(c, payload)
	}
	observability.IncWSEvent(event.Type)
}

// BroadcastPresence publishes a presence event to every connection except the subject
// user's own.
func (h *Hub) BroadcastPresence(event models.ServerEvent) {
	payload := marshal(event)

	h.mu.RLock()
	targets := make([]*Client, 0)
	for userID, conns := range h.users {
		if userID == event.UserID {
			continue
		}
		for c := range conns {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(c, payload)
	}
	observability.IncWSEvent(event.Type)
}

// send enqueues without blocking; a full buffer means the client cannot keep up and the
// connection is dropped rather than stalling the room.
func (h *Hub) send(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Printf("websocket send buffer full, dropping connection conn_id=%s user_id=%d", c.info.ConnID, c.userID)
		c.closeSlow()
		h.publishWSError(c, "send buffer full")
	}
}

func (h *Hub) publishWSError(c *Client, reason string) {
	payload := map[string]any{
		"ws": map[string]any{
			"event":       "ws_error",
			"conn_id":     c.info.ConnID,
			"duration_ms": time.Since(c.info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   c.info.UserID,
			"device_id": c.info.DeviceID,
			"ip":        c.info.IP,
		},
	}

	headers := observability.BuildHeaders(c.info.RequestID, c.info.TraceID)
	_ = observability.PublishEvent(c.ctx, "ws_events.messenger", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}

func marshal(event models.ServerEvent) []byte {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal server event: %v", err)
	}
	return payload
}

package models

import "time"

// Websocket event vocabulary. Clients emit setup/join/leave/new message/typing events;
// the server emits the rest.
const (
	EventSetup           = "setup"
	EventConnected       = "connected"
	EventJoinChat        = "join chat"
	EventLeaveChat       = "leave chat"
	EventNewMessage      = "new message"
	EventMessageReceived = "message received"
	EventNotification    = "notification received"
	EventTyping          = "typing"
	EventStopTyping      = "stop typing"
	EventUserOnline      = "user online"
	EventUserOffline     = "user offline"
)

// ClientEvent is what a connected client sends over the websocket.
type ClientEvent struct {
	Type    string         `json:"type"`
	ChatID  int            `json:"chat_id,omitempty"`
	Message *MessageDetail `json:"message,omitempty"`
}

// ServerEvent is published to client connections.
type ServerEvent struct {
	Type     string         `json:"type"`
	ChatID   int            `json:"chat_id,omitempty"`
	UserID   int            `json:"user_id,omitempty"`
	LastSeen *time.Time     `json:"last_seen,omitempty"`
	Message  *MessageDetail `json:"message,omitempty"`
}

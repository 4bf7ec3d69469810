package models

import "time"

// Message types. Non-text messages carry an opaque content reference plus a size.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeAudio = "audio"
	MessageTypeFile  = "file"
)

// MaxTextLength caps text message content.
const MaxTextLength = 700

// ValidMessageType reports whether t is a known message type.
func ValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeAudio, MessageTypeFile:
		return true
	}
	return false
}

// Message is a single unit of conversation content belonging to exactly one chat.
type Message struct {
	ID          int       `db:"id" json:"id"`
	ChatID      int       `db:"chat_id" json:"chat_id"`
	SenderID    int       `db:"sender_id" json:"sender_id"`
	Content     string    `db:"content" json:"content"`
	MessageType string    `db:"message_type" json:"message_type"`
	MessageSize *int      `db:"message_size" json:"message_size,omitempty"`
	ReplyToID   *int      `db:"reply_to_id" json:"reply_to_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ReadReceipt records that a user has read a message.
type ReadReceipt struct {
	UserID int       `db:"user_id" json:"user_id"`
	ReadAt time.Time `db:"read_at" json:"read_at"`
}

// ReplySummary is the projection of a reply target embedded in a resolved message.
type ReplySummary struct {
	ID          int         `json:"id"`
	Content     string      `json:"content"`
	MessageType string      `json:"message_type"`
	Sender      UserSummary `json:"sender"`
}

// MessageDetail is a message resolved for delivery: sender summary, reply-target summary,
// per-user ledger, read receipts and (on send) the owning chat.
type MessageDetail struct {
	ID          int           `json:"id"`
	ChatID      int           `json:"chat_id"`
	Sender      UserSummary   `json:"sender"`
	Content     string        `json:"content"`
	MessageType string        `json:"message_type"`
	MessageSize *int          `json:"message_size,omitempty"`
	ReplyTo     *ReplySummary `json:"reply_to,omitempty"`
	DeletedBy   []int         `json:"deleted_by"`
	ReadBy      []ReadReceipt `json:"read_by"`
	Chat        *ChatDetail   `json:"chat,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Package delivery orchestrates the message lifecycle: validate, persist, reopen hidden
// chats for recipients, move the latest-message pointer, and hand the resolved message
// to the real-time fan-out.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

// ErrPropagation marks failures that happened after the message was durably created.
// The message itself remains valid and retrievable.
var ErrPropagation = errors.New("message stored but propagation failed")

// ValidationError names the first violated input rule.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string { return e.Rule }

// SendInput carries a send request.
type SendInput struct {
	SenderID    int
	ChatID      int
	Content     string
	MessageType string
	ReplyToID   *int
	Size        *int
}

// Coordinator implements the delivery flow over the chat and message stores.
type Coordinator struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(chats repositories.ChatRepository, messages repositories.MessageRepository) *Coordinator {
	return &Coordinator{chats: chats, messages: messages}
}

func validate(in SendInput) error {
	if strings.TrimSpace(in.Content) == "" {
		return &ValidationError{Rule: "content cannot be empty"}
	}
	if !models.ValidMessageType(in.MessageType) {
		return &ValidationError{Rule: "unknown message type"}
	}
	if in.MessageType == models.MessageTypeText && len(in.Content) > models.MaxTextLength {
		return &ValidationError{Rule: fmt.Sprintf("text message cannot exceed %d characters", models.MaxTextLength)}
	}
	if in.MessageType != models.MessageTypeText && in.Size == nil {
		return &ValidationError{Rule: in.MessageType + " message must have a size"}
	}
	return nil
}

// Send runs the delivery flow. The message is created durably first; reopening hidden
// chats and updating the latest-message pointer are best-effort afterwards, and their
// failure is reported via ErrPropagation without reversing the create.
func (c *Coordinator) Send(ctx context.Context, in SendInput) (models.MessageDetail, error) {
	if err := validate(in); err != nil {
		return models.MessageDetail{}, err
	}

	member, err := c.chats.IsMember(ctx, in.ChatID, in.SenderID)
	if err != nil {
		return models.MessageDetail{}, err
	}
	if !member {
		// A chat that does not exist reads as not-found, not as a membership failure.
		if _, err := c.chats.GetChatDetail(ctx, in.ChatID); err != nil {
			if errors.Is(err, repositories.ErrChatNotFound) {
				return models.MessageDetail{}, repositories.ErrChatNotFound
			}
			return models.MessageDetail{}, err
		}
		return models.MessageDetail{}, repositories.ErrNotChatMember
	}

	msg, err := c.messages.CreateMessage(ctx, in.SenderID, in.ChatID, in.Content, in.MessageType, in.ReplyToID, in.Size)
	if err != nil {
		return models.MessageDetail{}, err
	}

	// A new message resurrects the chat for every recipient who had hidden it. The
	// sender's own hide state is never touched here.
	var propagationErr error
	if msg.Chat != nil {
		remaining := msg.Chat.DeletedBy[:0]
		for _, userID := range msg.Chat.DeletedBy {
			if userID == in.SenderID {
				remaining = append(remaining, userID)
				continue
			}
			if err := c.chats.ReopenChatForUser(ctx, in.ChatID, userID); err != nil {
				log.Printf("reopen chat %d for user %d failed: %v", in.ChatID, userID, err)
				propagationErr = err
				remaining = append(remaining, userID)
			}
		}
		msg.Chat.DeletedBy = remaining
	}

	if err := c.chats.UpdateLatestMessage(ctx, in.ChatID, msg.ID); err != nil {
		log.Printf("update latest message for chat %d failed: %v", in.ChatID, err)
		propagationErr = err
	} else if msg.Chat != nil {
		preview := msg
		preview.Chat = nil
		msg.Chat.LatestMessage = &preview
	}

	if propagationErr != nil {
		return msg, fmt.Errorf("%w: %v", ErrPropagation, propagationErr)
	}
	return msg, nil
}

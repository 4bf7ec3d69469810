package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/delivery"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

// MessageHandler manages message endpoints.
type MessageHandler struct {
	coordinator *delivery.Coordinator
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	hub         *ws.Hub
	audit       *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(coordinator *delivery.Coordinator, chatRepo repositories.ChatRepository, messageRepo repositories.MessageRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		coordinator: coordinator,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		hub:         hub,
		audit:       audit,
	}
}

// PostMessage stores a message and fans it out to live connections.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		Content     string `json:"content" binding:"required"`
		MessageType string `json:"message_type"`
		ReplyToID   *int   `json:"reply_to_id"`
		Size        *int   `json:"message_size"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}

	userID := c.GetInt("userID")
	msg, err := h.coordinator.Send(c.Request.Context(), delivery.SendInput{
		SenderID:    userID,
		ChatID:      chatID,
		Content:     req.Content,
		MessageType: req.MessageType,
		ReplyToID:   req.ReplyToID,
		Size:        req.Size,
	})
	if err != nil && !errors.Is(err, delivery.ErrPropagation) {
		h.emitAudit(c, "ERROR", "could not send message")
		respondError(c, err, "failed to store message")
		return
	}

	observability.IncMessageSent(msg.MessageType)
	h.hub.DeliverMessage(&msg, nil)

	// The message survived even if a follow-up step did not; report the partial failure
	// without discarding the stored message.
	if err != nil {
		h.emitAudit(c, "WARN", "message stored but propagation failed")
		c.JSON(http.StatusCreated, gin.H{"message": msg, "warning": err.Error()})
		return
	}

	h.emitAudit(c, "INFO", "Message sent")
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListMessages returns messages of a chat the caller has not hidden, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msgs, err := h.messageRepo.ListVisibleMessages(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// HideMessage hides a message for the caller only. When every chat member has hidden it
// the message is permanently removed.
func (h *MessageHandler) HideMessage(c *gin.Context) {
	chatID, messageID, ok := parseChatMessageIDs(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	purged, err := h.messageRepo.HideMessageForUser(c.Request.Context(), messageID, chatID, userID)
	if err != nil {
		respondError(c, err, "could not hide message")
		return
	}
	if purged {
		observability.IncEntityPurged("message")
	}

	h.emitAudit(c, "INFO", "Message hidden")
	c.Status(http.StatusNoContent)
}

// MarkRead records a read receipt on every message of the chat for the caller.
// Already-read messages are untouched.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	member, err := h.chatRepo.IsMember(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	if err := h.messageRepo.MarkRead(c.Request.Context(), chatID, userID, time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark chat read"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

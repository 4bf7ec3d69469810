package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
)

// defaultGroupImage is used when a group is created without an image.
const defaultGroupImage = "https://icon-library.com/images/anonymous-avatar-icon/anonymous-avatar-icon-25.jpg"

// ChatHandler manages chat lifecycle endpoints.
type ChatHandler struct {
	chatRepo repositories.ChatRepository
	userRepo repositories.UserRepository
	audit    *telemetry.AuditEmitter
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chatRepo repositories.ChatRepository, userRepo repositories.UserRepository, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{
		chatRepo: chatRepo,
		userRepo: userRepo,
		audit:    audit,
	}
}

// ListChats returns the chats visible to the authenticated user, most recently
// active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chatRepo.ListVisibleChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartDirectChat creates or returns the existing direct chat with another user.
func (h *ChatHandler) StartDirectChat(c *gin.Context) {
	var req struct {
		PeerID int `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	if userID == req.PeerID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		return
	}

	chat, err := h.chatRepo.CreateOrGetDirectChat(c.Request.Context(), userID, req.PeerID)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not create chat")
		respondError(c, err, "could not create chat")
		return
	}

	h.emitAudit(c, "INFO", "Direct chat started")
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// CreateGroupChat creates a group chat with the caller as admin.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	userID := c.GetInt("userID")

	var req struct {
		Name      string `json:"name" binding:"required"`
		Image     string `json:"image"`
		MemberIDs []int  `json:"member_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A group needs at least one member besides the creator.
	members := make([]int, 0, len(req.MemberIDs))
	for _, id := range uniqueIDs(req.MemberIDs) {
		if id != userID {
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "group chat needs at least one other member"})
		return
	}

	// Validate members exist before creating the chat.
	users, err := h.userRepo.BulkUsers(c.Request.Context(), members)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate members"})
		return
	}
	if len(users) != len(members) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown member id"})
		return
	}

	if req.Image == "" {
		req.Image = defaultGroupImage
	}

	chat, err := h.chatRepo.CreateGroupChat(c.Request.Context(), userID, req.Name, req.Image, members)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group chat"})
		return
	}

	h.emitAudit(c, "INFO", "Group chat created")
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// RenameGroup updates a group chat's name (admin only).
func (h *ChatHandler) RenameGroup(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.requireGroupAdmin(c, chatID); !ok {
		return
	}

	if err := h.chatRepo.RenameGroup(c.Request.Context(), chatID, req.Name); err != nil {
		respondError(c, err, "could not rename group")
		return
	}

	h.emitAudit(c, "INFO", "Group renamed")
	c.Status(http.StatusNoContent)
}

// UpdateGroupImage updates a group chat's image reference (admin only).
func (h *ChatHandler) UpdateGroupImage(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		Image string `json:"image" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.requireGroupAdmin(c, chatID); !ok {
		return
	}

	if err := h.chatRepo.UpdateGroupImage(c.Request.Context(), chatID, req.Image); err != nil {
		respondError(c, err, "could not update group image")
		return
	}

	h.emitAudit(c, "INFO", "Group image updated")
	c.Status(http.StatusNoContent)
}

// AddMembers adds users to a group chat (admin only).
func (h *ChatHandler) AddMembers(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	var req struct {
		MemberIDs []int `json:"member_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, ok := h.requireGroupAdmin(c, chatID); !ok {
		return
	}

	if err := h.chatRepo.AddMembers(c.Request.Context(), chatID, req.MemberIDs); err != nil {
		respondError(c, err, "could not add members")
		return
	}

	chat, err := h.chatRepo.GetChatDetail(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err, "failed to load chat")
		return
	}

	h.emitAudit(c, "INFO", "Group members added")
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// RemoveMember removes a user from a group chat. The admin may remove anyone;
// any member may remove themselves.
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	chatID, targetID, ok := parseChatUserIDs(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	chat, err := h.chatRepo.GetChatDetail(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err, "failed to load chat")
		return
	}
	isAdmin := chat.GroupAdmin != nil && chat.GroupAdmin.ID == userID
	if targetID != userID && !isAdmin {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group admin can remove other members"})
		return
	}

	purged, err := h.chatRepo.RemoveMember(c.Request.Context(), chatID, targetID)
	if err != nil {
		respondError(c, err, "could not remove member")
		return
	}
	if purged {
		observability.IncEntityPurged("chat")
	}

	h.emitAudit(c, "INFO", "Group member removed")
	c.Status(http.StatusNoContent)
}

// HideChat hides the chat for the caller only. When the last member hides it the
// chat and its messages are permanently removed.
func (h *ChatHandler) HideChat(c *gin.Context) {
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}
	userID := c.GetInt("userID")

	purged, err := h.chatRepo.HideChatForUser(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err, "could not hide chat")
		return
	}
	if purged {
		observability.IncEntityPurged("chat")
	}

	h.emitAudit(c, "INFO", "Chat hidden")
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) requireGroupAdmin(c *gin.Context, chatID int) (models.ChatDetail, bool) {
	userID := c.GetInt("userID")

	chat, err := h.chatRepo.GetChatDetail(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err, "failed to load chat")
		return models.ChatDetail{}, false
	}
	if !chat.IsGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": repositories.ErrNotGroupChat.Error()})
		return models.ChatDetail{}, false
	}
	if chat.GroupAdmin == nil || chat.GroupAdmin.ID != userID {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "group admin required"})
		return models.ChatDetail{}, false
	}
	return chat, true
}

func (h *ChatHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func uniqueIDs(ids []int) []int {
	seen := map[int]struct{}{}
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messenger-service/internal/models"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateOrGetDirectChat(ctx context.Context, requesterID, peerID int) (models.ChatDetail, error) {
	args := m.Called(ctx, requesterID, peerID)
	var chat models.ChatDetail
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatDetail)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListVisibleChats(ctx context.Context, userID int) ([]models.ChatDetail, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatDetail
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatDetail)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) CreateGroupChat(ctx context.Context, creatorID int, name, image string, memberIDs []int) (models.ChatDetail, error) {
	args := m.Called(ctx, creatorID, name, image, memberIDs)
	var chat models.ChatDetail
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatDetail)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChatDetail(ctx context.Context, chatID int) (models.ChatDetail, error) {
	args := m.Called(ctx, chatID)
	var chat models.ChatDetail
	if val := args.Get(0); val != nil {
		chat = val.(models.ChatDetail)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) IsMember(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) RenameGroup(ctx context.Context, chatID int, name string) error {
	args := m.Called(ctx, chatID, name)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UpdateGroupImage(ctx context.Context, chatID int, image string) error {
	args := m.Called(ctx, chatID, image)
	return args.Error(0)
}

func (m *ChatRepositoryMock) AddMembers(ctx context.Context, chatID int, userIDs []int) error {
	args := m.Called(ctx, chatID, userIDs)
	return args.Error(0)
}

func (m *ChatRepositoryMock) RemoveMember(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) HideChatForUser(ctx context.Context, chatID, userID int) (bool, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ChatRepositoryMock) ReopenChatForUser(ctx context.Context, chatID, userID int) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UpdateLatestMessage(ctx context.Context, chatID, messageID int) error {
	args := m.Called(ctx, chatID, messageID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, senderID, chatID int, content, messageType string, replyToID, size *int) (models.MessageDetail, error) {
	args := m.Called(ctx, senderID, chatID, content, messageType, replyToID, size)
	var msg models.MessageDetail
	if val := args.Get(0); val != nil {
		msg = val.(models.MessageDetail)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListVisibleMessages(ctx context.Context, chatID, userID int) ([]models.MessageDetail, error) {
	args := m.Called(ctx, chatID, userID)
	var msgs []models.MessageDetail
	if val := args.Get(0); val != nil {
		msgs = val.([]models.MessageDetail)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) HideMessageForUser(ctx context.Context, messageID, chatID, userID int) (bool, error) {
	args := m.Called(ctx, messageID, chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, chatID, userID int, at time.Time) error {
	args := m.Called(ctx, chatID, userID, at)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, username, avatarURL string) (models.User, error) {
	args := m.Called(ctx, username, avatarURL)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int) ([]models.User, error) {
	args := m.Called(ctx, ids)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SetPresence(ctx context.Context, userID int, online bool, at time.Time) error {
	args := m.Called(ctx, userID, online, at)
	return args.Error(0)
}

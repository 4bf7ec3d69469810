package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/delivery"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

func setupMessageRouter(chatRepo *mocks.ChatRepositoryMock, messageRepo *mocks.MessageRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	coordinator := delivery.NewCoordinator(chatRepo, messageRepo)
	handler := NewMessageHandler(coordinator, chatRepo, messageRepo, ws.NewHub(), nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/chats/:chat_id/messages", handler.PostMessage)
	r.GET("/chats/:chat_id/messages", handler.ListMessages)
	r.DELETE("/chats/:chat_id/messages/:message_id/me", handler.HideMessage)
	r.POST("/chats/:chat_id/read", handler.MarkRead)
	return r
}

func sentMessage(id, chatID, senderID int) models.MessageDetail {
	return models.MessageDetail{
		ID:          id,
		ChatID:      chatID,
		Sender:      models.UserSummary{ID: senderID},
		Content:     "hi",
		MessageType: models.MessageTypeText,
		Chat: &models.ChatDetail{
			ID:    chatID,
			Users: []models.UserSummary{{ID: senderID}, {ID: 2}},
		},
	}
}

func TestPostMessageSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 1, 5, "hi", "text", (*int)(nil), (*int)(nil)).
		Return(sentMessage(7, 5, 1), nil).Once()
	chatRepo.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotContains(t, resp, "warning")

	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestPostMessageNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()
	chatRepo.On("GetChatDetail", mock.Anything, 5).Return(models.ChatDetail{ID: 5}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestPostMessageMissingChat(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()
	chatRepo.On("GetChatDetail", mock.Anything, 5).Return(models.ChatDetail{}, repositories.ErrChatNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestPostMessageTooLong(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	long := make([]byte, models.MaxTextLength+1)
	for i := range long {
		long[i] = 'a'
	}
	body, err := json.Marshal(gin.H{"content": string(long)})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageMissingSizeForImage(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	body := bytes.NewBufferString(`{"content":"http://cdn/img.png","message_type":"image"}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessagePropagationWarning(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("CreateMessage", mock.Anything, 1, 5, "hi", "text", (*int)(nil), (*int)(nil)).
		Return(sentMessage(7, 5, 1), nil).Once()
	chatRepo.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/messages", bytes.NewBufferString(`{"content":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Stored message wins: still 201, with the secondary failure reported.
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Contains(t, resp, "warning")

	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestListMessagesSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("ListVisibleMessages", mock.Anything, 5, 1).
		Return([]models.MessageDetail{{ID: 1, ChatID: 5}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestListMessagesNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/chats/5/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

func TestListMessagesInvalidID(t *testing.T) {
	router := setupMessageRouter(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock))

	req := httptest.NewRequest(http.MethodGet, "/chats/abc/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHideMessageSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	messageRepo.On("HideMessageForUser", mock.Anything, 7, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/7/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestHideMessageTwiceConflict(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	messageRepo.On("HideMessageForUser", mock.Anything, 7, 5, 1).
		Return(false, repositories.ErrMessageAlreadyHidden).Once()

	req := httptest.NewRequest(http.MethodDelete, "/chats/5/messages/7/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	messageRepo.AssertExpectations(t)
}

func TestMarkReadSuccess(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messageRepo.On("MarkRead", mock.Anything, 5, 1, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	chatRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestMarkReadNotMember(t *testing.T) {
	chatRepo := new(mocks.ChatRepositoryMock)
	messageRepo := new(mocks.MessageRepositoryMock)
	router := setupMessageRouter(chatRepo, messageRepo)

	chatRepo.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/chats/5/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	chatRepo.AssertExpectations(t)
}

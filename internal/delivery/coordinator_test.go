package delivery

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

func textInput(content string) SendInput {
	return SendInput{
		SenderID:    1,
		ChatID:      5,
		Content:     content,
		MessageType: models.MessageTypeText,
	}
}

func createdMessage(deletedBy ...int) models.MessageDetail {
	return models.MessageDetail{
		ID:          7,
		ChatID:      5,
		Sender:      models.UserSummary{ID: 1},
		Content:     "hi",
		MessageType: models.MessageTypeText,
		Chat: &models.ChatDetail{
			ID:        5,
			Users:     []models.UserSummary{{ID: 1}, {ID: 2}, {ID: 3}},
			DeletedBy: deletedBy,
		},
	}
}

func TestSendValidation(t *testing.T) {
	c := NewCoordinator(new(mocks.ChatRepositoryMock), new(mocks.MessageRepositoryMock))

	cases := []struct {
		name  string
		input SendInput
	}{
		{"empty content", textInput("   ")},
		{"unknown type", SendInput{SenderID: 1, ChatID: 5, Content: "x", MessageType: "video"}},
		{"text too long", textInput(strings.Repeat("a", models.MaxTextLength+1))},
		{"image without size", SendInput{SenderID: 1, ChatID: 5, Content: "ref", MessageType: models.MessageTypeImage}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Send(context.Background(), tc.input)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}
}

func TestSendTextAtLimit(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	c := NewCoordinator(chats, messages)

	content := strings.Repeat("a", models.MaxTextLength)
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 1, 5, content, "text", (*int)(nil), (*int)(nil)).
		Return(createdMessage(), nil).Once()
	chats.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(nil).Once()

	_, err := c.Send(context.Background(), textInput(content))
	require.NoError(t, err)
	chats.AssertExpectations(t)
}

func TestSendNotMember(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	c := NewCoordinator(chats, new(mocks.MessageRepositoryMock))

	chats.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()
	chats.On("GetChatDetail", mock.Anything, 5).Return(models.ChatDetail{ID: 5}, nil).Once()

	_, err := c.Send(context.Background(), textInput("hi"))
	require.ErrorIs(t, err, repositories.ErrNotChatMember)
	chats.AssertExpectations(t)
}

func TestSendToMissingChatNotFound(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	c := NewCoordinator(chats, new(mocks.MessageRepositoryMock))

	chats.On("IsMember", mock.Anything, 5, 1).Return(false, nil).Once()
	chats.On("GetChatDetail", mock.Anything, 5).Return(models.ChatDetail{}, repositories.ErrChatNotFound).Once()

	_, err := c.Send(context.Background(), textInput("hi"))
	require.ErrorIs(t, err, repositories.ErrChatNotFound)
	require.NotErrorIs(t, err, repositories.ErrNotChatMember)
	chats.AssertExpectations(t)
}

func TestSendReopensHiddenChatForRecipients(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	c := NewCoordinator(chats, messages)

	// Users 1 (the sender) and 2 had hidden the chat; only 2 gets reopened.
	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 1, 5, "hi", "text", (*int)(nil), (*int)(nil)).
		Return(createdMessage(1, 2), nil).Once()
	chats.On("ReopenChatForUser", mock.Anything, 5, 2).Return(nil).Once()
	chats.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(nil).Once()

	msg, err := c.Send(context.Background(), textInput("hi"))
	require.NoError(t, err)
	require.NotNil(t, msg.Chat)
	assert.Equal(t, []int{1}, msg.Chat.DeletedBy)

	chats.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestSendReopenFailureReportsPropagation(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	c := NewCoordinator(chats, messages)

	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 1, 5, "hi", "text", (*int)(nil), (*int)(nil)).
		Return(createdMessage(2), nil).Once()
	chats.On("ReopenChatForUser", mock.Anything, 5, 2).Return(assert.AnError).Once()
	chats.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(nil).Once()

	msg, err := c.Send(context.Background(), textInput("hi"))
	require.ErrorIs(t, err, ErrPropagation)
	// The message survived; the failed recipient stays in the ledger.
	assert.Equal(t, 7, msg.ID)
	require.NotNil(t, msg.Chat)
	assert.Equal(t, []int{2}, msg.Chat.DeletedBy)

	chats.AssertExpectations(t)
}

func TestSendLatestMessageFailureReportsPropagation(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	c := NewCoordinator(chats, messages)

	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 1, 5, "hi", "text", (*int)(nil), (*int)(nil)).
		Return(createdMessage(), nil).Once()
	chats.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(assert.AnError).Once()

	msg, err := c.Send(context.Background(), textInput("hi"))
	require.ErrorIs(t, err, ErrPropagation)
	assert.Equal(t, 7, msg.ID)
	chats.AssertExpectations(t)
}

func TestSendSetsLatestMessagePreview(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	c := NewCoordinator(chats, messages)

	chats.On("IsMember", mock.Anything, 5, 1).Return(true, nil).Once()
	messages.On("CreateMessage", mock.Anything, 1, 5, "hi", "text", (*int)(nil), (*int)(nil)).
		Return(createdMessage(), nil).Once()
	chats.On("UpdateLatestMessage", mock.Anything, 5, 7).Return(nil).Once()

	msg, err := c.Send(context.Background(), textInput("hi"))
	require.NoError(t, err)
	require.NotNil(t, msg.Chat)
	require.NotNil(t, msg.Chat.LatestMessage)
	assert.Equal(t, 7, msg.Chat.LatestMessage.ID)
	assert.Nil(t, msg.Chat.LatestMessage.Chat)
}

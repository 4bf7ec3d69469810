package ws

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/auth"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
)

func newTestVerifier(t *testing.T) *auth.Service {
	t.Helper()
	svc, err := auth.NewService(context.Background(), auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte("test-secret")),
		TokenExpiry: time.Hour,
	})
	require.NoError(t, err)
	return svc
}

func TestHandlerLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	verifier := newTestVerifier(t)

	offline := make(chan struct{})
	users := new(mocks.UserRepositoryMock)
	users.On("SetPresence", mock.Anything, 42, true, mock.Anything).Return(nil).Once()
	users.On("SetPresence", mock.Anything, 42, false, mock.Anything).Return(nil).
		Run(func(mock.Arguments) { close(offline) }).Once()

	router := gin.New()
	router.GET("/ws", NewHandler(hub, verifier, users).Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + verifier.Mint(42)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	require.Eventually(t, func() bool { return hub.UserOnline(42) }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(models.ClientEvent{Type: models.EventSetup}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var event models.ServerEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, models.EventConnected, event.Type)
	assert.Equal(t, 42, event.UserID)

	conn.Close()
	select {
	case <-offline:
	case <-time.After(time.Second):
		t.Fatal("expected offline presence update after disconnect")
	}
	assert.Eventually(t, func() bool { return !hub.UserOnline(42) }, time.Second, 5*time.Millisecond)
	users.AssertExpectations(t)
}

func TestHandlerAuthorizationHeaderScheme(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := newTestVerifier(t)
	users := new(mocks.UserRepositoryMock)
	users.On("SetPresence", mock.Anything, 42, mock.Anything, mock.Anything).Return(nil)

	router := gin.New()
	router.GET("/ws", NewHandler(NewHub(), verifier, users).Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	// A valid token under a non-Bearer scheme must not authenticate.
	header := http.Header{"Authorization": []string{"Token: " + verifier.Mint(42)}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The Bearer scheme does.
	header = http.Header{"Authorization": []string{"Bearer " + verifier.Mint(42)}}
	conn, resp, err = websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	conn.Close()
}

func TestHandlerRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(NewHub(), newTestVerifier(t), new(mocks.UserRepositoryMock)).Handle)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=garbage"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

package clientsync

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"messenger-service/internal/models"
)

// Socket binds a websocket connection to a State. The read loop is the only place
// events are applied, so State needs no locking of its own.
type Socket struct {
	conn   *websocket.Conn
	state  *State
	typing *TypingIndicator

	writeMu sync.Mutex
}

// Dial connects and authenticates a websocket session.
func Dial(ctx context.Context, url, token string, state *State, typing *TypingIndicator) (*Socket, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return NewSocket(conn, state, typing), nil
}

// NewSocket wraps an established connection.
func NewSocket(conn *websocket.Conn, state *State, typing *TypingIndicator) *Socket {
	return &Socket{conn: conn, state: state, typing: typing}
}

// Setup announces the session; the server answers with a connected event.
func (s *Socket) Setup() error {
	return s.emit(models.ClientEvent{Type: models.EventSetup})
}

// Join subscribes to a chat room.
func (s *Socket) Join(chatID int) error {
	return s.emit(models.ClientEvent{Type: models.EventJoinChat, ChatID: chatID})
}

// Leave unsubscribes from a chat room.
func (s *Socket) Leave(chatID int) error {
	return s.emit(models.ClientEvent{Type: models.EventLeaveChat, ChatID: chatID})
}

// Announce hands a freshly sent message to the server for fan-out to other members.
func (s *Socket) Announce(msg *models.MessageDetail) error {
	return s.emit(models.ClientEvent{Type: models.EventNewMessage, ChatID: msg.ChatID, Message: msg})
}

// Typing signals a keystroke in the chat.
func (s *Socket) Typing(chatID int) error {
	return s.emit(models.ClientEvent{Type: models.EventTyping, ChatID: chatID})
}

// StopTyping clears the caller's typing signal.
func (s *Socket) StopTyping(chatID int) error {
	return s.emit(models.ClientEvent{Type: models.EventStopTyping, ChatID: chatID})
}

func (s *Socket) emit(event models.ClientEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(event)
}

// Listen reads server events until the connection drops or ctx is cancelled, applying
// each one to the State in arrival order.
func (s *Socket) Listen(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.ServerEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.apply(event)
	}
}

func (s *Socket) apply(event models.ServerEvent) {
	switch event.Type {
	case models.EventMessageReceived, models.EventNotification:
		if event.Message != nil {
			s.state.ApplyMessage(*event.Message)
		}
	case models.EventTyping:
		if s.typing != nil {
			s.typing.Touch(event.ChatID, event.UserID)
		}
	case models.EventStopTyping:
		if s.typing != nil {
			s.typing.Stop(event.ChatID, event.UserID)
		}
	case models.EventUserOnline:
		s.state.ApplyPresence(event.UserID, true)
	case models.EventUserOffline:
		s.state.ApplyPresence(event.UserID, false)
	}
}

// Close tears the connection down.
func (s *Socket) Close() error {
	return s.conn.Close()
}

package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger-service/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64
)

// Client is one authenticated websocket connection. The writer goroutine is the only
// writer to the underlying connection; everything else goes through the send channel.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	userID int
	rooms  map[int]struct{}
	info   ConnInfo
	ctx    context.Context

	closeOnce sync.Once
}

func newClient(ctx context.Context, hub *Hub, conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		userID: info.UserID,
		rooms:  make(map[int]struct{}),
		info:   info,
		ctx:    ctx,
	}
}

func (c *Client) closeSlow() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump reads client events until the connection drops. onClose runs exactly once
// after the connection is torn down.
func (c *Client) readPump(onClose func(reason string)) {
	var closeReason string
	defer func() {
		c.hub.Unregister(c)
		c.closeSlow()
		onClose(closeReason)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var event models.ClientEvent
		if err := c.conn.ReadJSON(&event); err != nil {
			closeReason = err.Error()
			return
		}
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event models.ClientEvent) {
	switch event.Type {
	case models.EventSetup:
		c.reply(models.ServerEvent{Type: models.EventConnected, UserID: c.userID})
	case models.EventJoinChat:
		c.hub.JoinRoom(event.ChatID, c)
	case models.EventLeaveChat:
		c.hub.LeaveRoom(event.ChatID, c)
	case models.EventNewMessage:
		// Fan out only what this connection's user actually sent.
		if event.Message != nil && event.Message.Sender.ID == c.userID {
			c.hub.DeliverMessage(event.Message, c)
		}
	case models.EventTyping, models.EventStopTyping:
		c.hub.BroadcastToRoom(event.ChatID, models.ServerEvent{
			Type:   event.Type,
			ChatID: event.ChatID,
			UserID: c.userID,
		}, c)
	default:
		log.Printf("unknown client event type %q conn_id=%s", event.Type, c.info.ConnID)
	}
}

func (c *Client) reply(event models.ServerEvent) {
	c.hub.send(c, marshal(event))
}

// writePump serializes all writes to the connection and keeps it alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSlow()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

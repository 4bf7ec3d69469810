package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messenger-service/internal/auth"
	"messenger-service/internal/models"
	"messenger-service/internal/observability"
	"messenger-service/internal/repositories"
)

// Handler upgrades authenticated websocket connections and binds them to the hub.
type Handler struct {
	hub      *Hub
	verifier *auth.Service
	users    repositories.UserRepository
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, verifier *auth.Service, users repositories.UserRepository) *Handler {
	return &Handler{hub: hub, verifier: verifier, users: users}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, registers the client and starts its pumps.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("messenger-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	// Event publishing outlives the upgrade request.
	connCtx := context.WithoutCancel(ctx)
	client := newClient(connCtx, h.hub, conn, info)
	h.hub.Register(client)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(connCtx, "ws_events.messenger", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   lifecyclePayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(requestID, traceID))

	h.setPresence(connCtx, userID, true)

	go client.writePump()
	go client.readPump(func(reason string) {
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(connCtx, "ws_events.messenger", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   lifecyclePayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), reason),
		}, observability.BuildHeaders(requestID, traceID))

		// Only the last connection of a user flips them offline.
		if !h.hub.UserOnline(userID) {
			h.setPresence(connCtx, userID, false)
		}
	})
}

func (h *Handler) setPresence(ctx context.Context, userID int, online bool) {
	now := time.Now()
	if err := h.users.SetPresence(ctx, userID, online, now); err != nil {
		return
	}
	event := models.ServerEvent{Type: models.EventUserOnline, UserID: userID}
	if !online {
		event.Type = models.EventUserOffline
		event.LastSeen = &now
	}
	h.hub.BroadcastPresence(event)
}

func lifecyclePayload(info ConnInfo, event string, durationMS int64, reason string) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return ""
		}
		return token
	}
	return c.Query("token")
}

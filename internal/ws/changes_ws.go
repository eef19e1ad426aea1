package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
	"github.com/Cross4solution/MedGama-sub003/internal/observability"
)

// TokenValidator resolves a bearer token to an actor.
type TokenValidator interface {
	Validate(token string) (string, models.ActorKind, error)
}

// ChangesHandler streams change notifications over websocket.
type ChangesHandler struct {
	hub       *Hub
	validator TokenValidator
}

// NewChangesHandler constructs a ChangesHandler.
func NewChangesHandler(hub *Hub, validator TokenValidator) *ChangesHandler {
	return &ChangesHandler{hub: hub, validator: validator}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection and registers the observer.
// Browsers cannot set headers on websocket requests, so ?token= is accepted too.
func (h *ChangesHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("medgama/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := tokenFromRequest(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	actorID, actorType, err := h.validator.Validate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		ActorID:     actorID,
		ActorType:   string(actorType),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	h.hub.AddClient(conn, info)

	observability.IncWSActive(wsKind)
	observability.IncWSEvent(wsKind, "ws_connect")
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.WSEvent("ws_connect", info.ConnID, "", 0, info.identity()))

	go h.readLoop(conn, info)
}

// readLoop drains client frames until the socket closes; observers never send data.
func (h *ChangesHandler) readLoop(conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		h.hub.RemoveClient(conn)
		observability.DecWSActive(wsKind)
		observability.IncWSEvent(wsKind, "ws_disconnect")
		_ = observability.PublishEvent(context.Background(), wsRoutingKey,
			observability.WSEvent("ws_disconnect", info.ConnID, closeReason, time.Since(info.ConnectedAt).Milliseconds(), info.identity()))
		conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.hub.publishWSError(info, err)
			}
			return
		}
	}
}

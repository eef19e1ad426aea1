package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Cross4solution/MedGama-sub003/internal/middleware"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// actorIDFromContext returns the authenticated actor, falling back to X-Actor-ID.
func actorIDFromContext(c *gin.Context) *string {
	if id := c.GetString(middleware.ActorIDKey); id != "" {
		return &id
	}
	if header := c.GetHeader("X-Actor-ID"); header != "" {
		return &header
	}
	return nil
}

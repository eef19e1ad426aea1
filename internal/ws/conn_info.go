package ws

import (
	"time"

	"github.com/google/uuid"
)

type ConnInfo struct {
	ConnID      string
	ActorID     string
	ActorType   string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func (i ConnInfo) identity() map[string]any {
	return map[string]any{
		"actor_id":   i.ActorID,
		"actor_type": i.ActorType,
		"device_id":  i.DeviceID,
		"ip":         i.IP,
	}
}

func newConnID() string {
	return uuid.NewString()
}

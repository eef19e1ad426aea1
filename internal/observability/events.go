package observability

// EventEnvelope wraps operational events published to the event exchange.
type EventEnvelope struct {
	EventType string         `json:"event_type"`
	EventName string         `json:"event_name"`
	RequestID string         `json:"request_id,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Payload   map[string]any `json:"payload"`
}

// WSEvent builds the envelope for websocket lifecycle events.
func WSEvent(name, connID, reason string, durationMs int64, identity map[string]any) EventEnvelope {
	return EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        "changes",
				"event":       name,
				"conn_id":     connID,
				"duration_ms": durationMs,
				"reason":      reason,
			},
			"identity": identity,
		},
	}
}

package telemetry

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Cross4solution/MedGama-sub003/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes audit records for invite decisions.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	ActorID       *string      `json:"actor_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level    string `json:"level"`
	Text     string `json:"text"`
	InviteID string `json:"invite_id,omitempty"`
	Status   string `json:"status,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Emit publishes a free-form audit record.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, actorID *string) {
	e.emit(ctx, requestID, actorID, AuditPayload{Level: level, Text: text})
}

// InviteResponded records an accept, reject or cancel decision.
func (e *AuditEmitter) InviteResponded(ctx context.Context, invite models.Invite, requestID string, actorID *string) {
	text := fmt.Sprintf("invite %s %s->%s %s", invite.Status, inviteParty(invite.FromType, invite.FromID), inviteParty(invite.ToType, invite.ToID), invite.ID)
	e.emit(ctx, requestID, actorID, AuditPayload{
		Level:    "INFO",
		Text:     text,
		InviteID: invite.ID,
		Status:   string(invite.Status),
	})
}

func (e *AuditEmitter) emit(ctx context.Context, requestID string, actorID *string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	log.Printf("audit emit: level=%s request_id=%s actor_id=%s text=%q", payload.Level, requestID, derefOr(actorID, "-"), payload.Text)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		TraceID:       traceIDFrom(ctx),
		ActorID:       actorID,
		Payload:       payload,
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}

func traceIDFrom(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func inviteParty(kind models.ActorKind, id string) string {
	return string(kind) + ":" + id
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// Package events publishes side-channel notifications to NATS.
//
// Delivery is fire-and-forget: failures are logged and never block or fail
// the run that produced them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects for agent-produced events.
const (
	SubjectTurnCompleted    = "chat.turn.completed"
	SubjectApprovalDecided  = "chat.approval.decided"
	EventTypeTurnCompleted  = "ChatTurnCompleted"
	EventTypeApprovalDecide = "ChatApprovalDecided"
)

const schemaVersion = 1

// Meta is the standard event envelope metadata.
type Meta struct {
	EventID        string `json:"eventId"`
	EventType      string `json:"eventType"`
	SchemaVersion  int    `json:"schemaVersion"`
	OccurredAt     string `json:"occurredAt"`
	Producer       string `json:"producer"`
	CorrelationID  string `json:"correlationId"`
	CausationID    string `json:"causationId,omitempty"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Envelope wraps event data with standard metadata.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Publisher emits enveloped events to NATS.
type Publisher struct {
	nc       *nats.Conn
	producer string
	logger   *zap.Logger
}

// NewPublisher creates a publisher identified as producer in envelopes.
func NewPublisher(nc *nats.Conn, producer string, logger *zap.Logger) *Publisher {
	if producer == "" {
		producer = "shopd"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, producer: producer, logger: logger}
}

// Publish emits one event, best effort. It returns the event id; delivery
// failures are logged, never returned.
func (p *Publisher) Publish(ctx context.Context, subject, eventType string, data any, correlationID string) string {
	envelope := p.buildEnvelope(eventType, data, correlationID, "")

	if p.nc == nil {
		p.logger.Debug("event publishing disabled",
			zap.String("subject", subject),
			zap.String("event_type", eventType))
		return envelope.Meta.EventID
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error("event encode failed",
			zap.String("subject", subject),
			zap.String("event_type", eventType),
			zap.Error(err))
		return envelope.Meta.EventID
	}

	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Error("event delivery failed",
			zap.String("subject", subject),
			zap.String("event_type", eventType),
			zap.Error(err))
		return envelope.Meta.EventID
	}

	p.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_type", eventType),
		zap.String("event_id", envelope.Meta.EventID))

	return envelope.Meta.EventID
}

func (p *Publisher) buildEnvelope(eventType string, data any, correlationID, causationID string) Envelope {
	eventID := uuid.NewString()
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return Envelope{
		Meta: Meta{
			EventID:        eventID,
			EventType:      eventType,
			SchemaVersion:  schemaVersion,
			OccurredAt:     time.Now().UTC().Format(time.RFC3339Nano),
			Producer:       p.producer,
			CorrelationID:  correlationID,
			CausationID:    causationID,
			IdempotencyKey: fmt.Sprintf("%s:%s", eventType, eventID),
		},
		Data: data,
	}
}

package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event emitted by the orchestrator after a
// committed transition. Events feed the dispatcher (notifications, metrics
// listeners); the durable audit trail is the history log, not this stream.
type Event struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	InstanceID    int64          `json:"instance_id"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	StageOrder    int            `json:"stage_order,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CorrelationID string         `json:"correlation_id"`
}

// New creates a domain event with a generated ID and timestamp.
func New(eventType Type, instanceID int64, entityType, entityID string) *Event {
	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		InstanceID:    instanceID,
		EntityType:    entityType,
		EntityID:      entityID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: uuid.New().String(),
	}
}

// WithCorrelation links the event into an existing correlation chain.
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// WithStage records the execution order of the stage the event concerns.
func (e *Event) WithStage(order int) *Event {
	e.StageOrder = order
	return e
}

// WithActor records who caused the transition.
func (e *Event) WithActor(actor string) *Event {
	e.Actor = actor
	return e
}

// WithPayload adds a payload key-value pair.
func (e *Event) WithPayload(key string, value any) *Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// PayloadString retrieves a string value from the payload.
func (e *Event) PayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// PayloadInt retrieves an int64 value from the payload.
func (e *Event) PayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

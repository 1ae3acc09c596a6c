// Package notify delivers post-commit domain events to an external broker.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is one committed state change. Key groups events of the same entity so
// brokers that partition (Kafka) keep them in order.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewEvent marshals payload into an Event stamped with a fresh id and the current time.
func NewEvent(eventType, key string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	}, nil
}

// Notifier is a broker backend.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
	Close() error
}

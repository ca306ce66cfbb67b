package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Publisher delivers outbox events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Message is the envelope every event is published in.
type Message struct {
	ID         uuid.UUID       `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

package service

import (
	"context"
	"fmt"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

// Emit writes an outbox event through r, so it commits or rolls back with
// the rest of the transaction.
func Emit(ctx context.Context, r repository.Repos, eventType string, payload interface{}) error {
	event, err := model.NewOutboxEvent(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}
	if err := r.Outbox().Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

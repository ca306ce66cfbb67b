package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/kmc/ehr-api/pkg/circuitbreaker"
	"github.com/kmc/ehr-api/pkg/messaging"
)

func TestPublishOpensBreakerWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	b := NewWithClient(client, "", nil)
	defer b.Close()

	msg := messaging.Message{
		ID:         uuid.New(),
		Type:       "RECEIPT_ISSUED",
		Payload:    json.RawMessage(`{"receipt_number":"KMC-RCT-05-2024-0001"}`),
		OccurredAt: time.Now(),
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := b.Publish(ctx, msg)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}
	assert.ErrorIs(t, b.Publish(ctx, msg), circuitbreaker.ErrOpen)
	assert.Equal(t, "ehr.events", b.channel)
}

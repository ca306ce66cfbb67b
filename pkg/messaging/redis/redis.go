package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmc/ehr-api/pkg/circuitbreaker"
	"github.com/kmc/ehr-api/pkg/logger"
	"github.com/kmc/ehr-api/pkg/messaging"
)

// RedisBroker publishes events on a Redis pub/sub channel. Each message
// goes to the base channel and to "<channel>.<event type>".
type RedisBroker struct {
	client  *redis.Client
	channel string
	cb      *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
}

type Config struct {
	URL          string
	Channel      string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

func NewRedisBroker(ctx context.Context, config Config, log *logger.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, config.Channel, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, channel string, log *logger.Logger) *RedisBroker {
	if log == nil {
		log = logger.Nop()
	}
	if channel == "" {
		channel = "ehr.events"
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "redis-broker",
			MaxFailures: 5,
			Interval:    10 * time.Second,
			Timeout:     5 * time.Second,
		}, log),
		logger: log,
	}
}

func (b *RedisBroker) Publish(ctx context.Context, msg messaging.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return b.cb.Execute(func() error {
		pipe := b.client.TxPipeline()
		pipe.Publish(ctx, b.channel, payload)
		pipe.Publish(ctx, b.channel+"."+msg.Type, payload)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to publish %s: %w", msg.Type, err)
		}
		return nil
	})
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/pkg/logger"
	"github.com/kmc/ehr-api/pkg/messaging"
	"github.com/kmc/ehr-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// ClaimLease defaults to DefaultClaimLease.
	ClaimLease    time.Duration
}

const DefaultClaimLease = 5 * time.Minute

// EventHandler runs a side effect for one event type after the event has
// been published.
type EventHandler func(ctx context.Context, event *model.OutboxEvent) error

// OutboxProcessor drains the outbox. A batch is claimed under a short
// lease and committed before anything is published, so no row locks are
// held while the broker or SMTP server is slow. Delivery is at least once:
// an event whose worker dies mid-batch becomes due again when its lease
// runs out.
type OutboxProcessor struct {
	store     repository.Store
	publisher messaging.Publisher
	handlers  map[string]EventHandler
	config    OutboxProcessorConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOutboxProcessor(
	store repository.Store,
	publisher messaging.Publisher,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) (*OutboxProcessor, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		return nil, fmt.Errorf("retry attempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		return nil, fmt.Errorf("retry delay must be greater than 0")
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = DefaultClaimLease
	}
	if log == nil {
		log = logger.Nop()
	}

	return &OutboxProcessor{
		store:     store,
		publisher: publisher,
		handlers:  make(map[string]EventHandler),
		config:    config,
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Handle registers fn for events of eventType.
func (p *OutboxProcessor) Handle(eventType string, fn EventHandler) {
	p.handlers[eventType] = fn
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch handles one batch of due events and reports how many were
// delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
		defer timer.ObserveDuration()
	}

	events, err := p.claim(ctx)
	if err != nil {
		return 0, err
	}

	outbox := p.store.Outbox()
	delivered := 0
	for _, event := range events {
		if err := p.deliver(ctx, event); err != nil {
			if markErr := p.fail(ctx, outbox, event, err); markErr != nil {
				return delivered, markErr
			}
			continue
		}
		if err := outbox.MarkProcessed(ctx, event.ID); err != nil {
			return delivered, fmt.Errorf("failed to mark event %s processed: %w", event.ID, err)
		}
		delivered++
		if p.metrics != nil {
			p.metrics.OutboxEventsProcessed.Inc()
		}
	}
	return delivered, nil
}

func (p *OutboxProcessor) claim(ctx context.Context) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent
	err := p.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		events, err = r.Outbox().ClaimPendingEvents(ctx, p.config.BatchSize, p.now().Add(p.config.ClaimLease))
		return err
	})
	p.metrics.DBOperation("claim_pending_events", err)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending events: %w", err)
	}
	return events, nil
}

func (p *OutboxProcessor) deliver(ctx context.Context, event *model.OutboxEvent) error {
	err := p.publisher.Publish(ctx, messaging.Message{
		ID:         event.ID,
		Type:       event.EventType,
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	})
	if err != nil {
		return err
	}
	if fn, ok := p.handlers[event.EventType]; ok {
		return fn(ctx, event)
	}
	return nil
}

// fail schedules a retry with exponential backoff, or gives up once the
// event has used all its attempts.
func (p *OutboxProcessor) fail(ctx context.Context, outbox repository.OutboxRepository, event *model.OutboxEvent, cause error) error {
	msg := cause.Error()
	attempt := event.RetryCount + 1

	if attempt >= p.config.RetryAttempts {
		p.logger.Error(cause, "Giving up on event",
			"event_id", event.ID.String(), "event_type", event.EventType, "attempts", attempt)
		if p.metrics != nil {
			p.metrics.OutboxEventsFailed.Inc()
		}
		if err := outbox.MarkFailed(ctx, event.ID, msg); err != nil {
			return fmt.Errorf("failed to mark event %s failed: %w", event.ID, err)
		}
		return nil
	}

	retryAt := p.now().Add(p.config.RetryDelay << uint(event.RetryCount))
	p.logger.Warn("Retrying event later",
		"event_id", event.ID.String(), "event_type", event.EventType, "attempt", attempt, "retry_at", retryAt, "error", msg)
	if p.metrics != nil {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}
	if err := outbox.MarkForRetry(ctx, event.ID, msg, retryAt); err != nil {
		return fmt.Errorf("failed to schedule retry for event %s: %w", event.ID, err)
	}
	return nil
}

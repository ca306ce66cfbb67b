package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
)

const outboxColumns = `id, event_type, payload, status, error_message, retry_count, retry_at,
	created_at, processed_at, updated_at`

type outboxRepository struct {
	BaseRepository
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	return r.execAny(ctx, "outbox.create", query,
		event.ID,
		event.EventType,
		[]byte(event.Payload),
		string(event.Status),
		event.CreatedAt,
		event.UpdatedAt,
	)
}

// ClaimPendingEvents claims up to limit due events in one statement. Rows
// locked by a concurrent claim are skipped, and the lease written to
// retry_at keeps them hidden until the claimer marks them or the lease
// runs out.
func (r *outboxRepository) ClaimPendingEvents(ctx context.Context, limit int, leaseUntil time.Time) ([]*model.OutboxEvent, error) {
	query := `
		UPDATE outbox_events
		SET retry_at = $2, updated_at = NOW()
		WHERE id IN (
			SELECT id
			FROM outbox_events
			WHERE status IN ('pending', 'retry')
			AND (retry_at IS NULL OR retry_at <= NOW())
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + outboxColumns
	events := []*model.OutboxEvent{}
	if err := r.selectAll(ctx, "outbox.claim_pending", &events, query, limit, leaseUntil); err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "outbox.mark_processed", `
		UPDATE outbox_events
		SET status = 'processed', error_message = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
}

func (r *outboxRepository) MarkForRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.exec(ctx, "outbox.mark_retry", `
		UPDATE outbox_events
		SET status = 'retry', error_message = $2, retry_count = retry_count + 1,
			retry_at = $3, updated_at = NOW()
		WHERE id = $1`, id, errMsg, retryAt)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.exec(ctx, "outbox.mark_failed", `
		UPDATE outbox_events
		SET status = 'failed', error_message = $2, retry_count = retry_count + 1, updated_at = NOW()
		WHERE id = $1`, id, errMsg)
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	start := time.Now()
	result, err := r.q.ExecContext(ctx, query, before)
	if err != nil {
		return 0, r.done("outbox.delete_processed", start, err)
	}
	n, err := result.RowsAffected()
	return n, r.done("outbox.delete_processed", start, err)
}

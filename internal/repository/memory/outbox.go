package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

type outboxRepo struct{ s *Store }

func (r *outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	event.ID = uuid.New()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Status = model.OutboxStatusPending
	r.s.st.outbox[event.ID] = *event
	return nil
}

func (r *outboxRepo) ClaimPendingEvents(ctx context.Context, limit int, leaseUntil time.Time) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	var due []model.OutboxEvent
	for _, e := range r.s.st.outbox {
		if e.Status != model.OutboxStatusPending && e.Status != model.OutboxStatusRetry {
			continue
		}
		if e.RetryAt != nil && e.RetryAt.After(now) {
			continue
		}
		due = append(due, e)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]*model.OutboxEvent, 0, len(due))
	for _, e := range due {
		lease := leaseUntil
		e.RetryAt = &lease
		e.UpdatedAt = now
		r.s.st.outbox[e.ID] = e
		e := e
		out = append(out, &e)
	}
	return out, nil
}

func (r *outboxRepo) update(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.st.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&e)
	e.UpdatedAt = time.Now()
	r.s.st.outbox[id] = e
	return nil
}

func (r *outboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent) {
		now := time.Now()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.ErrorMessage = nil
	})
}

func (r *outboxRepo) MarkForRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusRetry
		e.ErrorMessage = &errMsg
		e.RetryCount++
		e.RetryAt = &retryAt
	})
}

func (r *outboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, e := range r.s.st.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.st.outbox, id)
			n++
		}
	}
	return n, nil
}

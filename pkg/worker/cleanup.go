package worker

import (
	"context"
	"time"

	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/pkg/logger"
)

// OutboxCleanupWorker deletes delivered events once they are older than
// the retention period. Failed events are kept for inspection.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, log *logger.Logger) *OutboxCleanupWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log,
		now:       time.Now,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Failed to clean up outbox")
			}
		}
	}
}

func (w *OutboxCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().Add(-w.retention)
	n, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Info("Cleaned up processed outbox events", "count", n, "before", cutoff)
	}
	return n, nil
}

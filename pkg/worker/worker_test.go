package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/repository/memory"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/pkg/messaging"
	"github.com/kmc/ehr-api/pkg/metrics"
)

type fakePublisher struct {
	published []messaging.Message
	failures  int
}

func (f *fakePublisher) Publish(_ context.Context, msg messaging.Message) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeMailer struct {
	receipts []model.ReceiptPayload
}

func (m *fakeMailer) SendReceipt(_ context.Context, r model.ReceiptPayload) error {
	m.receipts = append(m.receipts, r)
	return nil
}

func emit(t *testing.T, store *memory.Store, eventType string, payload interface{}) {
	t.Helper()
	require.NoError(t, service.Emit(context.Background(), store, eventType, payload))
}

func newProcessor(t *testing.T, store *memory.Store, pub messaging.Publisher, attempts int) *OutboxProcessor {
	t.Helper()
	p, err := NewOutboxProcessor(store, pub, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: attempts,
		RetryDelay:    time.Second,
	}, nil, metrics.NewMetrics("ehr_test", "worker", prometheus.NewRegistry()))
	require.NoError(t, err)
	// Retries become due immediately.
	p.now = func() time.Time { return time.Now().Add(-time.Hour) }
	return p
}

func TestNewOutboxProcessorRejectsBadConfig(t *testing.T) {
	_, err := NewOutboxProcessor(memory.NewStore(), &fakePublisher{}, OutboxProcessorConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestProcessBatchPublishesAndDispatches(t *testing.T) {
	store := memory.NewStore()
	emit(t, store, model.EventPaymentRecorded, model.PaymentPayload{PaymentID: 1, InvoiceID: 2, Amount: 50})
	emit(t, store, model.EventReceiptIssued, model.ReceiptPayload{ReceiptNumber: "KMC-RCT-05-2024-0001", PatientEmail: "amina@example.com"})

	pub := &fakePublisher{}
	mailer := &fakeMailer{}
	p := newProcessor(t, store, pub, 3)
	p.Handle(model.EventReceiptIssued, MailReceipts(mailer))

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, pub.published, 2)
	require.Len(t, mailer.receipts, 1)
	assert.Equal(t, "KMC-RCT-05-2024-0001", mailer.receipts[0].ReceiptNumber)

	for _, e := range store.OutboxEvents() {
		assert.Equal(t, model.OutboxStatusProcessed, e.Status)
	}

	n, err = p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatchRetriesThenFails(t *testing.T) {
	store := memory.NewStore()
	emit(t, store, model.EventDrugStockLow, model.StockLowPayload{DrugID: 4, Name: "Amoxicillin", Stock: 2, Threshold: 10})

	pub := &fakePublisher{failures: 5}
	p := newProcessor(t, store, pub, 2)
	ctx := context.Background()

	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusRetry, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Equal(t, "broker unavailable", *events[0].ErrorMessage)

	_, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	events = store.OutboxEvents()
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "failed events are not picked up again")
}

func TestProcessBatchRecoversAfterTransientFailure(t *testing.T) {
	store := memory.NewStore()
	emit(t, store, model.EventPaymentVoided, model.PaymentPayload{PaymentID: 9})

	pub := &fakePublisher{failures: 1}
	p := newProcessor(t, store, pub, 3)
	ctx := context.Background()

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.EventPaymentVoided, pub.published[0].Type)
}

// txTracker records whether a transaction is open.
type txTracker struct {
	*memory.Store
	inTx bool
}

func (s *txTracker) WithTx(ctx context.Context, fn func(repository.Repos) error) error {
	s.inTx = true
	defer func() { s.inTx = false }()
	return s.Store.WithTx(ctx, fn)
}

type checkingPublisher struct {
	check func()
}

func (c *checkingPublisher) Publish(context.Context, messaging.Message) error {
	c.check()
	return nil
}

func (c *checkingPublisher) Close() error { return nil }

func TestProcessBatchDeliversOutsideTransaction(t *testing.T) {
	store := &txTracker{Store: memory.NewStore()}
	emit(t, store.Store, model.EventPaymentRecorded, model.PaymentPayload{PaymentID: 1})
	emit(t, store.Store, model.EventReceiptIssued, model.ReceiptPayload{ReceiptNumber: "KMC-RCT-05-2024-0001"})

	published := 0
	pub := &checkingPublisher{check: func() {
		assert.False(t, store.inTx, "publish must not run while the claim transaction is open")
		published++
	}}
	p, err := NewOutboxProcessor(store, pub, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}, nil, nil)
	require.NoError(t, err)
	p.Handle(model.EventReceiptIssued, func(context.Context, *model.OutboxEvent) error {
		assert.False(t, store.inTx, "handlers must not run while the claim transaction is open")
		return nil
	})

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, published)
	for _, e := range store.OutboxEvents() {
		assert.Equal(t, model.OutboxStatusProcessed, e.Status)
	}
}

func TestClaimedEventsAreLeased(t *testing.T) {
	store := memory.NewStore()
	emit(t, store, model.EventPaymentRecorded, model.PaymentPayload{PaymentID: 1})
	ctx := context.Background()

	claimed, err := store.Outbox().ClaimPendingEvents(ctx, 10, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NotNil(t, claimed[0].RetryAt)

	pub := &fakePublisher{}
	p, err := NewOutboxProcessor(store, pub, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		ClaimLease:    time.Minute,
	}, nil, nil)
	require.NoError(t, err)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "an event under another worker's lease is skipped")
	assert.Empty(t, pub.published)

	// The other worker died; its lease runs out.
	again, err := store.Outbox().ClaimPendingEvents(ctx, 10, time.Now().Add(-time.Second))
	require.NoError(t, err)
	require.Len(t, again, 1)

	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.OutboxStatusPending, again[0].Status)
	assert.Equal(t, model.OutboxStatusProcessed, store.OutboxEvents()[0].Status)
}

func TestCleanup(t *testing.T) {
	store := memory.NewStore()
	emit(t, store, model.EventPaymentRecorded, model.PaymentPayload{PaymentID: 1})
	emit(t, store, model.EventPaymentRecorded, model.PaymentPayload{PaymentID: 2})

	events := store.OutboxEvents()
	ctx := context.Background()
	require.NoError(t, store.Outbox().MarkProcessed(ctx, events[0].ID))

	w := NewOutboxCleanupWorker(store.Outbox(), 24*time.Hour, time.Hour, nil)
	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "inside the retention period")

	w.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, store.OutboxEvents(), 1)
}

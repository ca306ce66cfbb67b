package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service/identifier"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(sqlx.NewDb(db, "postgres"), nil), mock
}

// stmt matches a statement containing fragment, whitespace collapsed.
func stmt(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

var mockDay = time.Date(2024, time.May, 14, 0, 0, 0, 0, time.UTC)

func prescriptionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "visit_id", "patient_id", "doctor_id", "start_date", "status"})
}

func drugLineRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"prescription_id", "drug_id", "dosage", "frequency", "quantity"})
}

func TestPrescriptionGetByVisitLoadsDrugLines(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(stmt("FROM prescriptions WHERE visit_id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(prescriptionRows().AddRow(int64(11), int64(3), int64(1), int64(2), mockDay, "active"))
	mock.ExpectQuery(stmt("FROM prescription_drugs WHERE prescription_id = $1 ORDER BY drug_id")).
		WithArgs(int64(11)).
		WillReturnRows(drugLineRows().
			AddRow(int64(11), int64(4), nil, "tds", int64(10)).
			AddRow(int64(11), int64(9), "500mg", "bd", int64(6)))

	rx, err := s.Prescriptions().GetByVisit(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(11), rx.ID)
	require.Len(t, rx.Drugs, 2)
	assert.Equal(t, int64(4), rx.Drugs[0].DrugID)
	assert.Equal(t, 10, rx.Drugs[0].Quantity)
	require.NotNil(t, rx.Drugs[1].Dosage)
	assert.Equal(t, "500mg", *rx.Drugs[1].Dosage)
}

func TestPrescriptionGetByIDWithoutLines(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(stmt("FROM prescriptions WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(prescriptionRows().AddRow(int64(11), nil, int64(1), int64(2), mockDay, "active"))
	mock.ExpectQuery(stmt("FROM prescription_drugs WHERE prescription_id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(drugLineRows())

	rx, err := s.Prescriptions().GetByID(context.Background(), 11)
	require.NoError(t, err)
	assert.Nil(t, rx.VisitID)
	assert.NotNil(t, rx.Drugs)
	assert.Empty(t, rx.Drugs)
}

func TestPrescriptionGetMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(stmt("FROM prescriptions WHERE public_id = $1")).
		WillReturnRows(prescriptionRows())

	_, err := s.Prescriptions().GetByPublicID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPrescriptionListLoadsDrugLinesInOneQuery(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(stmt("FROM prescriptions WHERE ($1 = 0 OR patient_id = $1)")).
		WillReturnRows(prescriptionRows().
			AddRow(int64(11), int64(3), int64(1), int64(2), mockDay, "active").
			AddRow(int64(12), nil, int64(1), int64(2), mockDay, "completed"))
	mock.ExpectQuery(stmt("WHERE prescription_id = ANY($1) ORDER BY prescription_id, drug_id")).
		WithArgs("{11,12}").
		WillReturnRows(drugLineRows().
			AddRow(int64(11), int64(4), nil, "tds", int64(10)).
			AddRow(int64(11), int64(9), nil, "bd", int64(6)))

	list, err := s.Prescriptions().List(context.Background(), model.PrescriptionFilter{PatientID: 1})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Len(t, list[0].Drugs, 2)
	assert.NotNil(t, list[1].Drugs)
	assert.Empty(t, list[1].Drugs)
}

func TestDecrementStockIsConditional(t *testing.T) {
	ctx := context.Background()
	decrement := stmt("UPDATE drugs SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2 RETURNING stock")
	onHand := stmt("SELECT stock FROM drugs WHERE id = $1")

	t.Run("enough stock", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(decrement).WithArgs(int64(7), int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(int64(2)))

		remaining, err := s.Drugs().DecrementStock(ctx, 7, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, remaining)
	})

	t.Run("short", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(decrement).WithArgs(int64(7), int64(10)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}))
		mock.ExpectQuery(onHand).WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(int64(4)))

		remaining, err := s.Drugs().DecrementStock(ctx, 7, 10)
		assert.ErrorIs(t, err, repository.ErrInsufficientStock)
		assert.Equal(t, 4, remaining)
	})

	t.Run("no such drug", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(decrement).WithArgs(int64(8), int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}))
		mock.ExpectQuery(onHand).WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}))

		_, err := s.Drugs().DecrementStock(ctx, 8, 1)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestIdentifierAllocatedUnderAdvisoryLock(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	gen := identifier.NewGenerator(identifier.Config{}, nil).
		WithClock(func() time.Time { return mockDay.Add(9 * time.Hour) })

	mock.ExpectBegin()
	mock.ExpectExec(stmt("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("identifier:patient").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(stmt("SELECT patient_id FROM patients WHERE starts_with(patient_id, $1) ORDER BY length(patient_id) DESC, patient_id DESC")).
		WithArgs("KMC-05-2024-").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("KMC-05-2024-0041"))
	mock.ExpectCommit()

	var id string
	err := s.WithTx(ctx, func(r repository.Repos) error {
		var err error
		id, err = gen.Next(ctx, r.Identifiers(), identifier.Patient)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "KMC-05-2024-0042", id)
}

func TestIdentifierLockFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	gen := identifier.NewGenerator(identifier.Config{Scope: identifier.ScopeGlobal}, nil)

	mock.ExpectBegin()
	mock.ExpectExec(stmt("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("identifier:receipt").
		WillReturnError(errors.New("canceling statement due to lock timeout"))
	mock.ExpectRollback()

	err := s.WithTx(ctx, func(r repository.Repos) error {
		_, err := gen.Next(ctx, r.Identifiers(), identifier.Receipt)
		return err
	})
	assert.ErrorContains(t, err, "lock timeout")
}

func TestIdentifierMaxSequence(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(stmt("SELECT COALESCE(MAX(substring(visit_id FROM '[0-9]+$')::int), 0) FROM visits")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(118)))

	n, err := s.Identifiers().MaxSequence(context.Background(), "visit")
	require.NoError(t, err)
	assert.Equal(t, 118, n)

	_, err = s.Identifiers().MaxSequence(context.Background(), "invoice")
	assert.Error(t, err, "unknown kinds never reach the database")
}

func TestFinancialReportQueries(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	to := mockDay.Add(24*time.Hour - time.Nanosecond)

	mock.ExpectQuery(stmt("FROM invoices WHERE invoice_date BETWEEN $1 AND $2 GROUP BY status")).
		WithArgs(mockDay, to).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count", "amount"}).
			AddRow("pending", int64(2), 230.0).
			AddRow("paid", int64(1), 115.0))
	mock.ExpectQuery(stmt("FROM payments WHERE deleted_at IS NULL AND payment_date BETWEEN $1 AND $2")).
		WithArgs(mockDay, to).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(165.5))

	byStatus, err := s.Reports().InvoiceTotalsByStatus(ctx, mockDay, to)
	require.NoError(t, err)
	assert.Equal(t, model.StatusTotals{Count: 2, Amount: 230}, byStatus[model.InvoiceStatusPending])
	assert.Equal(t, model.StatusTotals{Count: 1, Amount: 115}, byStatus[model.InvoiceStatusPaid])

	paid, err := s.Reports().PaymentsTotal(ctx, mockDay, to)
	require.NoError(t, err)
	assert.Equal(t, 165.5, paid)
}

func TestDashboardQueries(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	since := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(stmt("SELECT date_trunc('month', visit_date AT TIME ZONE 'UTC') AS month")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"month", "visits", "prescriptions", "invoiced"}).
			AddRow("2024-03", int64(0), int64(1), 0.0).
			AddRow("2024-05", int64(4), int64(2), 115.0))
	mock.ExpectQuery(stmt("SELECT COUNT(DISTINCT patient_id) FROM visits")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(stmt("GROUP BY d.id, d.name ORDER BY prescriptions DESC, d.name ASC LIMIT $3")).
		WithArgs(since, mockDay, int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"drug_id", "name", "prescriptions", "quantity"}).
			AddRow(int64(4), "Paracetamol", int64(2), int64(16)))

	months, err := s.Reports().MonthlyActivity(ctx, since)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, model.MonthlyTotals{Month: "2024-05", Visits: 4, Prescriptions: 2, Invoiced: 115}, months[1])

	patients, err := s.Reports().ActivePatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, patients)

	top, err := s.Reports().TopPrescribedDrugs(ctx, since, mockDay, 10)
	require.NoError(t, err)
	assert.Equal(t, []model.DrugUsage{{DrugID: 4, Name: "Paracetamol", Prescriptions: 2, Quantity: 16}}, top)
}

func TestClaimPendingEventsWritesLease(t *testing.T) {
	s, mock := newMockStore(t)
	lease := mockDay.Add(5 * time.Minute)
	id := uuid.New()

	mock.ExpectQuery(stmt("UPDATE outbox_events SET retry_at = $2, updated_at = NOW() WHERE id IN (")).
		WithArgs(int64(10), lease).
		WillReturnRows(sqlmock.NewRows([]string{"id", "event_type", "payload", "status", "retry_count", "retry_at", "created_at", "updated_at"}).
			AddRow(id.String(), model.EventReceiptIssued, []byte(`{"receipt_number":"KMC-RCT-05-2024-0001"}`), "pending", int64(0), lease, mockDay, mockDay))

	events, err := s.Outbox().ClaimPendingEvents(context.Background(), 10, lease)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID)
	require.NotNil(t, events[0].RetryAt)
	assert.Equal(t, lease, *events[0].RetryAt)
}

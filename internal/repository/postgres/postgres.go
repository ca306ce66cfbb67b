package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/pkg/metrics"
)

// repos binds every repository to one connection or transaction.
type repos struct {
	base BaseRepository
}

func (r repos) Patients() repository.PatientRepository   { return &patientRepository{r.base} }
func (r repos) Doctors() repository.DoctorRepository     { return &doctorRepository{r.base} }
func (r repos) Visits() repository.VisitRepository       { return &visitRepository{r.base} }
func (r repos) Triage() repository.TriageRepository      { return &triageRepository{r.base} }
func (r repos) Diagnoses() repository.DiagnosisRepository { return &diagnosisRepository{r.base} }
func (r repos) VisitReports() repository.VisitReportRepository {
	return &visitReportRepository{r.base}
}
func (r repos) Drugs() repository.DrugRepository         { return &drugRepository{r.base} }
func (r repos) Prescriptions() repository.PrescriptionRepository {
	return &prescriptionRepository{r.base}
}
func (r repos) Invoices() repository.InvoiceRepository       { return &invoiceRepository{r.base} }
func (r repos) Payments() repository.PaymentRepository       { return &paymentRepository{r.base} }
func (r repos) Identifiers() repository.IdentifierRepository { return &identifierRepository{r.base} }
func (r repos) Outbox() repository.OutboxRepository          { return &outboxRepository{r.base} }
func (r repos) Reports() repository.ReportRepository         { return &reportRepository{r.base} }

// Store is the Postgres unit of work.
type Store struct {
	repos
	db *sqlx.DB
}

func NewStore(db *sqlx.DB, m *metrics.Metrics) *Store {
	return &Store{
		repos: repos{base: BaseRepository{q: db, metrics: m}},
		db:    db,
	}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction
func (s *Store) WithTx(ctx context.Context, fn func(repository.Repos) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(repos{base: BaseRepository{q: tx, metrics: s.base.metrics}}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

var _ repository.Store = (*Store)(nil)

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrReferenced        = errors.New("record is still referenced")
	ErrConstraint        = errors.New("check constraint violated")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// All repository interfaces in one file
type (
	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		GetByID(ctx context.Context, id int64) (*model.Patient, error)
		GetByPatientID(ctx context.Context, patientID string) (*model.Patient, error)
		GetByPublicID(ctx context.Context, publicID uuid.UUID) (*model.Patient, error)
		List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, id int64) error
	}

	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.Doctor) error
		GetByID(ctx context.Context, id int64) (*model.Doctor, error)
		GetByDoctorID(ctx context.Context, doctorID string) (*model.Doctor, error)
		List(ctx context.Context, filter model.DoctorFilter) ([]*model.Doctor, error)
		Update(ctx context.Context, doctor *model.Doctor) error
		Delete(ctx context.Context, id int64) error
	}

	VisitRepository interface {
		Create(ctx context.Context, visit *model.Visit) error
		GetByID(ctx context.Context, id int64) (*model.Visit, error)
		GetByVisitID(ctx context.Context, visitID string) (*model.Visit, error)
		List(ctx context.Context, filter model.VisitFilter) ([]*model.Visit, error)
		UpdateStatus(ctx context.Context, id int64, status model.VisitStatus) error
		CountByDoctor(ctx context.Context, doctorID int64) (int, error)
		Delete(ctx context.Context, id int64) error
	}

	TriageRepository interface {
		Create(ctx context.Context, triage *model.Triage) error
		GetByVisit(ctx context.Context, visitID int64) (*model.Triage, error)
		Update(ctx context.Context, triage *model.Triage) error
		DeleteByVisit(ctx context.Context, visitID int64) error
	}

	VisitReportRepository interface {
		Create(ctx context.Context, report *model.VisitReport) error
		GetByVisit(ctx context.Context, visitID int64) (*model.VisitReport, error)
		Update(ctx context.Context, report *model.VisitReport) error
		DeleteByVisit(ctx context.Context, visitID int64) error
	}

	DiagnosisRepository interface {
		Create(ctx context.Context, diagnosis *model.Diagnosis) error
		GetByID(ctx context.Context, id int64) (*model.Diagnosis, error)
		ListByVisit(ctx context.Context, visitID int64) ([]*model.Diagnosis, error)
		ListByPatient(ctx context.Context, patientID int64) ([]*model.Diagnosis, error)
		Delete(ctx context.Context, id int64) error
	}

	DrugRepository interface {
		Create(ctx context.Context, drug *model.Drug) error
		GetByID(ctx context.Context, id int64) (*model.Drug, error)
		List(ctx context.Context, filter model.DrugFilter) ([]*model.Drug, error)
		ListLowStock(ctx context.Context, threshold int) ([]*model.Drug, error)
		Update(ctx context.Context, drug *model.Drug) error
		Delete(ctx context.Context, id int64) error
		// DecrementStock removes quantity units only if that many are on hand
		// and returns the remaining stock. It returns ErrInsufficientStock
		// and leaves the row unchanged otherwise.
		DecrementStock(ctx context.Context, id int64, quantity int) (int, error)
		IncrementStock(ctx context.Context, id int64, quantity int) (int, error)
		IsReferenced(ctx context.Context, id int64) (bool, error)
	}

	PrescriptionRepository interface {
		Create(ctx context.Context, prescription *model.Prescription) error
		AddDrug(ctx context.Context, line *model.PrescriptionDrug) error
		ListDrugs(ctx context.Context, prescriptionID int64) ([]model.PrescriptionDrug, error)
		GetByID(ctx context.Context, id int64) (*model.Prescription, error)
		GetByPublicID(ctx context.Context, publicID uuid.UUID) (*model.Prescription, error)
		GetByVisit(ctx context.Context, visitID int64) (*model.Prescription, error)
		List(ctx context.Context, filter model.PrescriptionFilter) ([]*model.Prescription, error)
		UpdateStatus(ctx context.Context, id int64, status model.PrescriptionStatus) error
		DeleteDrugs(ctx context.Context, prescriptionID int64) error
		Delete(ctx context.Context, id int64) error
	}

	InvoiceRepository interface {
		Create(ctx context.Context, invoice *model.Invoice) error
		GetByID(ctx context.Context, id int64) (*model.Invoice, error)
		GetByVisit(ctx context.Context, visitID int64) (*model.Invoice, error)
		List(ctx context.Context, filter model.InvoiceFilter) ([]*model.Invoice, error)
		Update(ctx context.Context, invoice *model.Invoice) error
		Delete(ctx context.Context, id int64) error

		AddItem(ctx context.Context, item *model.InvoiceItem) error
		GetItem(ctx context.Context, id int64) (*model.InvoiceItem, error)
		ListItems(ctx context.Context, invoiceID int64) ([]model.InvoiceItem, error)
		UpdateItem(ctx context.Context, item *model.InvoiceItem) error
		DeleteItem(ctx context.Context, id int64) error
		DeleteItems(ctx context.Context, invoiceID int64) error
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		GetByID(ctx context.Context, id int64) (*model.Payment, error)
		// ListByInvoice returns payments oldest first; voided payments are
		// included only when withVoided is set.
		ListByInvoice(ctx context.Context, invoiceID int64, withVoided bool) ([]model.Payment, error)
		Void(ctx context.Context, id int64, at time.Time) error
		DeleteByInvoice(ctx context.Context, invoiceID int64) error

		CreateReceipt(ctx context.Context, receipt *model.Receipt) error
		GetReceiptByPayment(ctx context.Context, paymentID int64) (*model.Receipt, error)
		DeleteReceiptsByInvoice(ctx context.Context, invoiceID int64) error
	}

	// IdentifierRepository backs business identifier assignment.
	IdentifierRepository interface {
		// Lock serializes identifier assignment for kind until the
		// surrounding transaction ends.
		Lock(ctx context.Context, kind string) error
		// Last returns the highest identifier of kind starting with prefix,
		// or "" when there is none.
		Last(ctx context.Context, kind, prefix string) (string, error)
		// MaxSequence returns the largest trailing sequence number over every
		// identifier of kind, or 0 when there is none.
		MaxSequence(ctx context.Context, kind string) (int, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPendingEvents takes up to limit due events and pushes their
		// retry_at to leaseUntil so no other worker picks them up meanwhile.
		ClaimPendingEvents(ctx context.Context, limit int, leaseUntil time.Time) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkForRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// ReportRepository aggregates clinic figures for reports.
	ReportRepository interface {
		InvoiceTotalsByStatus(ctx context.Context, from, to time.Time) (map[model.InvoiceStatus]model.StatusTotals, error)
		PaymentsTotal(ctx context.Context, from, to time.Time) (float64, error)
		// MonthlyActivity returns visits, prescriptions and invoiced amounts
		// per month from since onwards, oldest first. Months with no
		// activity are omitted.
		MonthlyActivity(ctx context.Context, since time.Time) ([]model.MonthlyTotals, error)
		// ActivePatients counts patients with at least one visit.
		ActivePatients(ctx context.Context) (int, error)
		// TopPrescribedDrugs ranks drugs by the number of prescriptions
		// started between from and to that name them.
		TopPrescribedDrugs(ctx context.Context, from, to time.Time, limit int) ([]model.DrugUsage, error)
	}
)

// Repos gives access to every repository bound to the same connection or
// transaction.
type Repos interface {
	Patients() PatientRepository
	Doctors() DoctorRepository
	Visits() VisitRepository
	Triage() TriageRepository
	VisitReports() VisitReportRepository
	Diagnoses() DiagnosisRepository
	Drugs() DrugRepository
	Prescriptions() PrescriptionRepository
	Invoices() InvoiceRepository
	Payments() PaymentRepository
	Identifiers() IdentifierRepository
	Outbox() OutboxRepository
	Reports() ReportRepository
}

// Store is the unit of work used by the services.
type Store interface {
	Repos
	// WithTx runs fn in a single transaction. Any error returned by fn
	// rolls back every write made through the Repos passed to it.
	WithTx(ctx context.Context, fn func(Repos) error) error
	Ping(ctx context.Context) error
}

// Package memory is an in-process implementation of repository.Store. It
// mirrors the unique, foreign key and check constraints of the Postgres
// schema so that services behave the same against either backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

type rxDrugKey struct {
	prescriptionID int64
	drugID         int64
}

type state struct {
	seq map[string]int64

	patients      map[int64]model.Patient
	doctors       map[int64]model.Doctor
	visits        map[int64]model.Visit
	triage        map[int64]model.Triage
	visitReports  map[int64]model.VisitReport
	diagnoses     map[int64]model.Diagnosis
	drugs         map[int64]model.Drug
	prescriptions map[int64]model.Prescription
	rxDrugs       map[rxDrugKey]model.PrescriptionDrug
	invoices      map[int64]model.Invoice
	items         map[int64]model.InvoiceItem
	payments      map[int64]model.Payment
	receipts      map[int64]model.Receipt
	outbox        map[uuid.UUID]model.OutboxEvent
}

func newState() *state {
	return &state{
		seq:           map[string]int64{},
		patients:      map[int64]model.Patient{},
		doctors:       map[int64]model.Doctor{},
		visits:        map[int64]model.Visit{},
		triage:        map[int64]model.Triage{},
		visitReports:  map[int64]model.VisitReport{},
		diagnoses:     map[int64]model.Diagnosis{},
		drugs:         map[int64]model.Drug{},
		prescriptions: map[int64]model.Prescription{},
		rxDrugs:       map[rxDrugKey]model.PrescriptionDrug{},
		invoices:      map[int64]model.Invoice{},
		items:         map[int64]model.InvoiceItem{},
		payments:      map[int64]model.Payment{},
		receipts:      map[int64]model.Receipt{},
		outbox:        map[uuid.UUID]model.OutboxEvent{},
	}
}

func (s *state) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *state) clone() *state {
	c := newState()
	copyMap(c.seq, s.seq)
	copyMap(c.patients, s.patients)
	copyMap(c.doctors, s.doctors)
	copyMap(c.visits, s.visits)
	copyMap(c.triage, s.triage)
	copyMap(c.visitReports, s.visitReports)
	copyMap(c.diagnoses, s.diagnoses)
	copyMap(c.drugs, s.drugs)
	copyMap(c.prescriptions, s.prescriptions)
	copyMap(c.rxDrugs, s.rxDrugs)
	copyMap(c.invoices, s.invoices)
	copyMap(c.items, s.items)
	copyMap(c.payments, s.payments)
	copyMap(c.receipts, s.receipts)
	copyMap(c.outbox, s.outbox)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

// sortedIDs returns the keys of m in ascending order.
func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func paginate[T any](items []T, p model.Pagination) []T {
	off := p.Offset()
	if off >= len(items) {
		return []T{}
	}
	end := off + p.Limit()
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

// Store keeps every table in memory. Transactions are serialized and roll
// back by restoring a snapshot taken when they began.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Patients() repository.PatientRepository           { return &patientRepo{s} }
func (s *Store) Doctors() repository.DoctorRepository             { return &doctorRepo{s} }
func (s *Store) Visits() repository.VisitRepository               { return &visitRepo{s} }
func (s *Store) Triage() repository.TriageRepository              { return &triageRepo{s} }
func (s *Store) VisitReports() repository.VisitReportRepository   { return &visitReportRepo{s} }
func (s *Store) Diagnoses() repository.DiagnosisRepository        { return &diagnosisRepo{s} }
func (s *Store) Drugs() repository.DrugRepository                 { return &drugRepo{s} }
func (s *Store) Prescriptions() repository.PrescriptionRepository { return &prescriptionRepo{s} }
func (s *Store) Invoices() repository.InvoiceRepository           { return &invoiceRepo{s} }
func (s *Store) Payments() repository.PaymentRepository           { return &paymentRepo{s} }
func (s *Store) Identifiers() repository.IdentifierRepository     { return &identifierRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository              { return &outboxRepo{s} }
func (s *Store) Reports() repository.ReportRepository             { return &reportRepo{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Repos) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

var _ repository.Store = (*Store)(nil)

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
}

// OutboxEvents returns every stored event, oldest first.
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := make([]model.OutboxEvent, 0, len(s.st.outbox))
	for _, e := range s.st.outbox {
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events
}

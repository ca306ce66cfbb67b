package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service/servicetest"
)

func newDrug(t *testing.T, s *Store, name string, stock int) *model.Drug {
	t.Helper()
	d := &model.Drug{Name: name, Stock: stock, UnitPrice: 2.5, IsActive: true}
	d.Touch(time.Now())
	require.NoError(t, s.Drugs().Create(context.Background(), d))
	return d
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	d := newDrug(t, s, "Amoxicillin", 10)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(r repository.Repos) error {
		_, err := r.Drugs().DecrementStock(ctx, d.ID, 4)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Drugs().GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
}

func TestWithTxCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	d := newDrug(t, s, "Paracetamol", 10)

	err := s.WithTx(ctx, func(r repository.Repos) error {
		_, err := r.Drugs().DecrementStock(ctx, d.ID, 4)
		return err
	})
	require.NoError(t, err)

	got, err := s.Drugs().GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Stock)
}

func TestDecrementStockIsConditional(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	d := newDrug(t, s, "Ibuprofen", 5)

	remaining, err := s.Drugs().DecrementStock(ctx, d.ID, 10)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
	assert.Equal(t, 5, remaining)

	remaining, err = s.Drugs().DecrementStock(ctx, d.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestDrugNameUnique(t *testing.T) {
	s := NewStore()
	newDrug(t, s, "Metformin", 1)

	dup := &model.Drug{Name: "metformin"}
	dup.Touch(time.Now())
	assert.ErrorIs(t, s.Drugs().Create(context.Background(), dup), repository.ErrDuplicate)
}

func TestIdentifierLastOrdersByLength(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, id := range []string{"KMC-05-2024-9999", "KMC-05-2024-10000", "KMC-04-2024-0007"} {
		p := &model.Patient{PatientID: id, FirstName: "A", LastName: "B", Gender: "male", Phone: "1"}
		p.Touch(time.Now())
		require.NoError(t, s.Patients().Create(ctx, p))
	}

	last, err := s.Identifiers().Last(ctx, "patient", "KMC-05-2024-")
	require.NoError(t, err)
	assert.Equal(t, "KMC-05-2024-10000", last)

	last, err = s.Identifiers().Last(ctx, "patient", "KMC-06-2024-")
	require.NoError(t, err)
	assert.Empty(t, last)
}

func TestVisitReportOnePerVisit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := servicetest.Patient(t, s, 1)
	d := servicetest.Doctor(t, s, 1)
	v := servicetest.Visit(t, s, 1, p, d)

	vr := &model.VisitReport{VisitID: v.ID, PatientID: p.ID, DoctorID: d.ID}
	vr.Touch(time.Now())
	require.NoError(t, s.VisitReports().Create(ctx, vr))

	again := &model.VisitReport{VisitID: v.ID, PatientID: p.ID, DoctorID: d.ID}
	again.Touch(time.Now())
	assert.ErrorIs(t, s.VisitReports().Create(ctx, again), repository.ErrDuplicate)

	orphan := &model.VisitReport{VisitID: 99, PatientID: p.ID, DoctorID: d.ID}
	orphan.Touch(time.Now())
	assert.ErrorIs(t, s.VisitReports().Create(ctx, orphan), repository.ErrReferenced)

	assert.ErrorIs(t, s.Visits().Delete(ctx, v.ID), repository.ErrReferenced)
	require.NoError(t, s.VisitReports().DeleteByVisit(ctx, v.ID))
	assert.NoError(t, s.Visits().Delete(ctx, v.ID))
}

func TestPrescriptionGettersCarryDrugLines(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := servicetest.Patient(t, s, 1)
	d := servicetest.Doctor(t, s, 1)
	v := servicetest.Visit(t, s, 1, p, d)
	drug := newDrug(t, s, "Amoxicillin", 10)

	rx := &model.Prescription{VisitID: &v.ID, PatientID: p.ID, DoctorID: d.ID, StartDate: time.Now(), Status: model.PrescriptionStatusActive}
	rx.Touch(time.Now())
	require.NoError(t, s.Prescriptions().Create(ctx, rx))
	require.NoError(t, s.Prescriptions().AddDrug(ctx, &model.PrescriptionDrug{
		PrescriptionID: rx.ID, DrugID: drug.ID, Frequency: "bd", Quantity: 3,
	}))

	byVisit, err := s.Prescriptions().GetByVisit(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, byVisit.Drugs, 1)
	assert.Equal(t, 3, byVisit.Drugs[0].Quantity)

	listed, err := s.Prescriptions().List(ctx, model.PrescriptionFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].Drugs, 1)
}

func TestClaimPendingEventsHidesLeasedEvents(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := 0; i < 3; i++ {
		e, err := model.NewOutboxEvent(model.EventPaymentRecorded, model.PaymentPayload{PaymentID: int64(i)})
		require.NoError(t, err)
		require.NoError(t, s.Outbox().Create(ctx, e))
	}

	first, err := s.Outbox().ClaimPendingEvents(ctx, 2, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := s.Outbox().ClaimPendingEvents(ctx, 10, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, second, 1, "leased events are not claimed twice")
	for _, e := range first {
		assert.NotEqual(t, e.ID, second[0].ID)
	}

	third, err := s.Outbox().ClaimPendingEvents(ctx, 10, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, third)
}

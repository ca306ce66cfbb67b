package inventory

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository/memory"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/internal/service/servicetest"
	"github.com/kmc/ehr-api/pkg/errors"
)

type fixture struct {
	store   *memory.Store
	svc     *Service
	patient *model.Patient
	doctor  *model.Doctor
	visit   *model.Visit
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	p := servicetest.Patient(t, s, 1)
	d := servicetest.Doctor(t, s, 1)
	v := servicetest.Visit(t, s, 1, p, d)
	svc := NewService(s, NewLedger(DefaultLowStockThreshold, nil, nil), lookup.NewResolver(time.Minute), nil)
	svc.now = servicetest.Now
	return &fixture{store: s, svc: svc, patient: p, doctor: d, visit: v}
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	d, err := f.store.Drugs().GetByID(context.Background(), id)
	require.NoError(t, err)
	return d.Stock
}

func TestCreatePrescriptionDecrementsStock(t *testing.T) {
	f := setup(t)
	amox := servicetest.Drug(t, f.store, "Amoxicillin 500mg", 12.5, 100)
	para := servicetest.Drug(t, f.store, "Paracetamol 500mg", 2, 50)

	rx, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID,
		Drugs: []model.PrescriptionDrugRequest{
			{DrugID: amox.ID, Frequency: "3x daily", Quantity: 21},
			{DrugID: para.ID, Frequency: "as needed", Quantity: 10},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, f.patient.ID, rx.PatientID)
	assert.Equal(t, f.doctor.ID, rx.DoctorID)
	assert.Len(t, rx.Drugs, 2)
	assert.Equal(t, 79, f.stock(t, amox.ID))
	assert.Equal(t, 40, f.stock(t, para.ID))
}

func TestCreatePrescriptionInsufficientStockRollsBack(t *testing.T) {
	f := setup(t)
	plenty := servicetest.Drug(t, f.store, "Ibuprofen", 3, 100)
	scarce := servicetest.Drug(t, f.store, "Ceftriaxone", 40, 5)

	_, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID,
		Drugs: []model.PrescriptionDrugRequest{
			{DrugID: plenty.ID, Frequency: "2x daily", Quantity: 10},
			{DrugID: scarce.ID, Frequency: "daily", Quantity: 10},
		},
	})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
	assert.True(t, stderrors.Is(err, ErrInsufficientStock))

	assert.Equal(t, 100, f.stock(t, plenty.ID))
	assert.Equal(t, 5, f.stock(t, scarce.ID))
	list, err := f.svc.ListPrescriptions(context.Background(), "", model.PrescriptionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSingleDrugShape(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Metformin", 5, 30)

	rx, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		PatientID: f.patient.PatientID,
		DoctorID:  f.doctor.DoctorID,
		DrugID:    &drug.ID,
		Quantity:  model.IntPtr(14),
	})
	require.NoError(t, err)
	require.Len(t, rx.Drugs, 1)
	assert.Equal(t, "as directed", rx.Drugs[0].Frequency)
	assert.Nil(t, rx.VisitID)
	assert.Equal(t, 16, f.stock(t, drug.ID))
}

func TestPrescriptionConflicts(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Amlodipine", 8, 100)
	line := []model.PrescriptionDrugRequest{{DrugID: drug.ID, Frequency: "daily", Quantity: 5}}
	publicID := uuid.NewString()

	_, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		PublicID: publicID, VisitID: f.visit.VisitID, Drugs: line,
	})
	require.NoError(t, err)

	_, err = f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		PublicID: publicID, PatientID: f.patient.PatientID, DoctorID: f.doctor.DoctorID, Drugs: line,
	})
	assert.True(t, errors.HasCode(err, errors.ErrConflict), "same public id")

	_, err = f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID, Drugs: line,
	})
	assert.True(t, errors.HasCode(err, errors.ErrConflict), "second prescription on a visit")

	other := servicetest.Patient(t, f.store, 2)
	_, err = f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID:   servicetest.Visit(t, f.store, 2, f.patient, f.doctor).VisitID,
		PatientID: other.PatientID,
		Drugs:     line,
	})
	assert.True(t, errors.HasCode(err, errors.ErrConflict), "patient mismatch")

	assert.Equal(t, 95, f.stock(t, drug.ID))
}

func TestDeletePrescriptionRestoresStock(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Omeprazole", 6, 40)
	rx, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID,
		Drugs:   []model.PrescriptionDrugRequest{{DrugID: drug.ID, Frequency: "daily", Quantity: 14}},
	})
	require.NoError(t, err)
	assert.Equal(t, 26, f.stock(t, drug.ID))

	require.NoError(t, f.svc.DeletePrescription(context.Background(), rx.ID))
	assert.Equal(t, 40, f.stock(t, drug.ID))

	_, err = f.svc.GetPrescription(context.Background(), rx.ID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestStatusChangeKeepsStock(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Salbutamol", 15, 20)
	rx, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID,
		Drugs:   []model.PrescriptionDrugRequest{{DrugID: drug.ID, Frequency: "as needed", Quantity: 2}},
	})
	require.NoError(t, err)

	updated, err := f.svc.UpdatePrescriptionStatus(context.Background(), rx.ID, "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, model.PrescriptionStatusCancelled, updated.Status)
	assert.Equal(t, 18, f.stock(t, drug.ID))

	_, err = f.svc.UpdatePrescriptionStatus(context.Background(), rx.ID, "dispensed")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}

func TestLowStockEvent(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Insulin", 30, 12)
	_, err := f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID,
		Drugs:   []model.PrescriptionDrugRequest{{DrugID: drug.ID, Frequency: "daily", Quantity: 4}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{model.EventDrugStockLow}, servicetest.Events(f.store))
	low, err := f.svc.LowStock(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, 8, low[0].Stock)
}

func TestRestockAndDeleteDrug(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Zinc", 1, 0)

	_, err := f.svc.Restock(context.Background(), drug.ID, 0)
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	got, err := f.svc.Restock(context.Background(), drug.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, got.Stock)

	_, err = f.svc.CreatePrescription(context.Background(), &model.CreatePrescriptionRequest{
		VisitID: f.visit.VisitID,
		Drugs:   []model.PrescriptionDrugRequest{{DrugID: drug.ID, Frequency: "daily", Quantity: 1}},
	})
	require.NoError(t, err)

	err = f.svc.DeleteDrug(context.Background(), drug.ID)
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	unused := servicetest.Drug(t, f.store, "Vitamin C", 1, 5)
	require.NoError(t, f.svc.DeleteDrug(context.Background(), unused.ID))
}

func TestUpdateDrugKeepsStock(t *testing.T) {
	f := setup(t)
	drug := servicetest.Drug(t, f.store, "Cetirizine", 3, 60)

	got, err := f.svc.UpdateDrug(context.Background(), drug.ID, &model.UpdateDrugRequest{
		UnitPrice: model.Float64Ptr(3.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 3.5, got.UnitPrice)
	assert.Equal(t, 60, f.stock(t, drug.ID))

	_, err = f.svc.CreateDrug(context.Background(), &model.CreateDrugRequest{Name: "cetirizine", UnitPrice: 1})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))
}

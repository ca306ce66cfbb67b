package visit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository/memory"
	"github.com/kmc/ehr-api/internal/service/cascade"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/inventory"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/internal/service/servicetest"
	"github.com/kmc/ehr-api/pkg/errors"
)

type fixture struct {
	svc     *Service
	store   *memory.Store
	patient *model.Patient
	doctor  *model.Doctor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	ids := identifier.NewGenerator(identifier.Config{}, nil).WithClock(servicetest.Now)
	ledger := inventory.NewLedger(inventory.DefaultLowStockThreshold, nil, nil)
	svc := NewService(s, ids, lookup.NewResolver(time.Minute), cascade.NewDeleter(ledger), nil)
	svc.now = servicetest.Now
	return &fixture{
		svc:     svc,
		store:   s,
		patient: servicetest.Patient(t, s, 1),
		doctor:  servicetest.Doctor(t, s, 1),
	}
}

func (f *fixture) create(t *testing.T, status string) *model.Visit {
	t.Helper()
	v, err := f.svc.CreateVisit(context.Background(), &model.CreateVisitRequest{
		PatientID: f.patient.PatientID,
		DoctorID:  f.doctor.DoctorID,
		VisitType: "Walk In",
		Status:    status,
	})
	require.NoError(t, err)
	return v
}

func TestCreateVisitInProgressHasTriage(t *testing.T) {
	f := setup(t)
	v := f.create(t, "in-progress")
	assert.Equal(t, "KMC-VIS-0524/0001", v.VisitID)
	assert.Equal(t, "walk-in", v.VisitType)

	tr, err := f.svc.GetTriage(context.Background(), v.VisitID)
	require.NoError(t, err)
	assert.False(t, tr.Recorded())
}

func TestCreateVisitDefaults(t *testing.T) {
	f := setup(t)
	v := f.create(t, "")
	assert.Equal(t, model.VisitStatusScheduled, v.Status)
	assert.Equal(t, servicetest.Now(), v.VisitDate)

	_, err := f.svc.GetTriage(context.Background(), v.VisitID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestCreateVisitRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateVisit(ctx, &model.CreateVisitRequest{
		PatientID: "KMC-05-2024-0404", DoctorID: f.doctor.DoctorID, VisitType: "walk-in",
	})
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	_, err = f.svc.CreateVisit(ctx, &model.CreateVisitRequest{
		PatientID: f.patient.PatientID, DoctorID: f.doctor.DoctorID, VisitType: "house-call",
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	f.doctor.IsActive = false
	require.NoError(t, f.store.Doctors().Update(ctx, f.doctor))
	_, err = f.svc.CreateVisit(ctx, &model.CreateVisitRequest{
		PatientID: f.patient.PatientID, DoctorID: f.doctor.DoctorID, VisitType: "walk-in",
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}

func TestStatusTransitions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.create(t, "scheduled")

	_, err := f.svc.UpdateStatus(ctx, v.VisitID, "completed")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	got, err := f.svc.UpdateStatus(ctx, strconv.FormatInt(v.ID, 10), "in-progress")
	require.NoError(t, err)
	assert.Equal(t, model.VisitStatusInProgress, got.Status)
	_, err = f.svc.GetTriage(ctx, v.VisitID)
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, v.VisitID, "in-progress")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, v.VisitID, "completed")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, v.VisitID, "cancelled")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}

func TestUpdateTriage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.create(t, "in-progress")

	tr, err := f.svc.UpdateTriage(ctx, v.VisitID, &model.TriageUpdate{
		Height: model.Float64Ptr(170), Weight: model.Float64Ptr(70),
	})
	require.NoError(t, err)
	require.NotNil(t, tr.BMI())
	assert.Equal(t, 24.2, *tr.BMI())

	tr, err = f.svc.UpdateTriage(ctx, v.VisitID, &model.TriageUpdate{Pulse: model.IntPtr(72)})
	require.NoError(t, err)
	assert.Equal(t, 170.0, *tr.Height)
	assert.Equal(t, 72, *tr.Pulse)

	_, err = f.svc.UpdateTriage(ctx, v.VisitID, &model.TriageUpdate{
		Weight: model.Float64Ptr(80), Temperature: model.Float64Ptr(50),
	})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	tr, err = f.svc.GetTriage(ctx, v.VisitID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, *tr.Weight)
	assert.Nil(t, tr.Temperature)
}

func TestDiagnoses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.create(t, "in-progress")

	d, err := f.svc.AddDiagnosis(ctx, v.VisitID, &model.CreateDiagnosisRequest{
		ICD10Code: model.StringPtr("b54"), Condition: "Malaria", IsPrimary: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "B54", *d.ICD10Code)
	assert.Equal(t, f.patient.ID, d.PatientID)

	_, err = f.svc.AddDiagnosis(ctx, v.VisitID, &model.CreateDiagnosisRequest{Condition: "Typhoid", IsPrimary: true})
	assert.True(t, errors.HasCode(err, errors.ErrConflict))

	_, err = f.svc.AddDiagnosis(ctx, v.VisitID, &model.CreateDiagnosisRequest{Condition: "Anaemia"})
	require.NoError(t, err)

	_, err = f.svc.AddDiagnosis(ctx, v.VisitID, &model.CreateDiagnosisRequest{ICD10Code: model.StringPtr("U07.1"), Condition: "x"})
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	list, err := f.svc.ListDiagnoses(ctx, v.VisitID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, f.svc.DeleteDiagnosis(ctx, d.ID))
	assert.True(t, errors.HasCode(f.svc.DeleteDiagnosis(ctx, d.ID), errors.ErrNotFound))
}

func TestDeleteVisit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	v := f.create(t, "in-progress")
	_, err := f.svc.AddDiagnosis(ctx, v.VisitID, &model.CreateDiagnosisRequest{Condition: "Flu"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteVisit(ctx, v.VisitID))
	_, err = f.svc.GetVisit(ctx, v.VisitID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

package medical

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository/memory"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/internal/service/servicetest"
	"github.com/kmc/ehr-api/pkg/errors"
)

type fixture struct {
	svc   *Service
	store *memory.Store
	visit *model.Visit
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := memory.NewStore()
	p := servicetest.Patient(t, s, 1)
	d := servicetest.Doctor(t, s, 1)
	svc := NewService(s, lookup.NewResolver(time.Minute), nil)
	svc.now = servicetest.Now
	return &fixture{svc: svc, store: s, visit: servicetest.Visit(t, s, 1, p, d)}
}

func TestSaveReportCreatesThenMerges(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.GetReport(ctx, f.visit.VisitID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	review := servicetest.Now().Add(14 * 24 * time.Hour)
	report, err := f.svc.SaveReport(ctx, f.visit.VisitID, &model.VisitReportUpdate{
		PresentingComplaint:  model.StringPtr("  Fever for three days "),
		PreliminaryDiagnosis: model.StringPtr("Malaria"),
		ReviewDate:           &review,
	}, "dr.mwangi")
	require.NoError(t, err)
	assert.NotZero(t, report.ID)
	assert.Equal(t, f.visit.PatientID, report.PatientID)
	assert.Equal(t, f.visit.DoctorID, report.DoctorID)
	assert.Equal(t, "Fever for three days", *report.PresentingComplaint)
	assert.Equal(t, "dr.mwangi", report.RecordedBy)
	require.NotNil(t, report.ReviewDate)
	assert.Equal(t, model.Today(review), *report.ReviewDate)

	report, err = f.svc.SaveReport(ctx, strconv.FormatInt(f.visit.ID, 10), &model.VisitReportUpdate{
		FinalDiagnosis:       model.StringPtr("Uncomplicated malaria"),
		PreliminaryDiagnosis: model.StringPtr(""),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Fever for three days", *report.PresentingComplaint, "untouched sections are kept")
	assert.Equal(t, "Uncomplicated malaria", *report.FinalDiagnosis)
	assert.Nil(t, report.PreliminaryDiagnosis, "an empty section is cleared")
	assert.Equal(t, unknownAuthor, report.RecordedBy)

	got, err := f.svc.GetReport(ctx, f.visit.VisitID)
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, "Uncomplicated malaria", *got.FinalDiagnosis)
}

func TestSaveReportRejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SaveReport(ctx, f.visit.VisitID, &model.VisitReportUpdate{}, "dr.mwangi")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))

	before := servicetest.Now().Add(-48 * time.Hour)
	_, err = f.svc.SaveReport(ctx, f.visit.VisitID, &model.VisitReportUpdate{ReviewDate: &before}, "dr.mwangi")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
	_, err = f.store.VisitReports().GetByVisit(ctx, f.visit.ID)
	assert.Error(t, err, "a rejected report is not stored")

	_, err = f.svc.SaveReport(ctx, "KMC-VIS-0524/9999", &model.VisitReportUpdate{Investigations: model.StringPtr("FBC")}, "")
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	require.NoError(t, f.store.Visits().UpdateStatus(ctx, f.visit.ID, model.VisitStatusCancelled))
	_, err = f.svc.SaveReport(ctx, f.visit.VisitID, &model.VisitReportUpdate{Investigations: model.StringPtr("FBC")}, "")
	assert.True(t, errors.HasCode(err, errors.ErrBadRequest))
}

func TestDeleteReport(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.svc.DeleteReport(ctx, f.visit.VisitID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))

	_, err = f.svc.SaveReport(ctx, f.visit.VisitID, &model.VisitReportUpdate{ManagementPlan: model.StringPtr("Rest")}, "dr.mwangi")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteReport(ctx, f.visit.VisitID))

	_, err = f.svc.GetReport(ctx, f.visit.VisitID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

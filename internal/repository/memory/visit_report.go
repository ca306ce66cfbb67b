package memory

import (
	"context"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

type visitReportRepo struct{ s *Store }

func (r *visitReportRepo) Create(ctx context.Context, vr *model.VisitReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.visits[vr.VisitID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.patients[vr.PatientID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.doctors[vr.DoctorID]; !ok {
		return repository.ErrReferenced
	}
	for _, o := range st.visitReports {
		if o.VisitID == vr.VisitID || o.PublicID == vr.PublicID {
			return repository.ErrDuplicate
		}
	}
	vr.ID = st.next("visit_reports")
	st.visitReports[vr.ID] = *vr
	return nil
}

func (r *visitReportRepo) GetByVisit(ctx context.Context, visitID int64) (*model.VisitReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, vr := range r.s.st.visitReports {
		if vr.VisitID == visitID {
			return &vr, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *visitReportRepo) Update(ctx context.Context, vr *model.VisitReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.visitReports[vr.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.st.visitReports[vr.ID] = *vr
	return nil
}

func (r *visitReportRepo) DeleteByVisit(ctx context.Context, visitID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, vr := range r.s.st.visitReports {
		if vr.VisitID == visitID {
			delete(r.s.st.visitReports, id)
		}
	}
	return nil
}

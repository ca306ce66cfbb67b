// Package visit manages visits and the clinical records attached to them:
// triage and diagnoses.
package visit

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/cascade"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
)

type VisitService interface {
	CreateVisit(ctx context.Context, req *model.CreateVisitRequest) (*model.Visit, error)
	GetVisit(ctx context.Context, ref string) (*model.Visit, error)
	ListVisits(ctx context.Context, patientRef string, filter model.VisitFilter) ([]*model.Visit, error)
	UpdateStatus(ctx context.Context, ref, status string) (*model.Visit, error)
	DeleteVisit(ctx context.Context, ref string) error

	GetTriage(ctx context.Context, visitRef string) (*model.Triage, error)
	UpdateTriage(ctx context.Context, visitRef string, update *model.TriageUpdate) (*model.Triage, error)

	AddDiagnosis(ctx context.Context, visitRef string, req *model.CreateDiagnosisRequest) (*model.Diagnosis, error)
	ListDiagnoses(ctx context.Context, visitRef string) ([]*model.Diagnosis, error)
	DeleteDiagnosis(ctx context.Context, id int64) error
}

type Service struct {
	store    repository.Store
	ids      *identifier.Generator
	resolver *lookup.Resolver
	cascade  *cascade.Deleter
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(store repository.Store, ids *identifier.Generator, resolver *lookup.Resolver, deleter *cascade.Deleter, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:    store,
		ids:      ids,
		resolver: resolver,
		cascade:  deleter,
		logger:   log,
		now:      time.Now,
	}
}

// CreateVisit opens a visit for a patient with an active doctor. A visit
// that starts in progress gets an empty triage record straight away.
func (s *Service) CreateVisit(ctx context.Context, req *model.CreateVisitRequest) (*model.Visit, error) {
	visitType, err := model.NormalizeVisitType(req.VisitType)
	if err != nil {
		return nil, err
	}
	status := model.VisitStatusScheduled
	if strings.TrimSpace(req.Status) != "" {
		if status, err = model.ParseVisitStatus(req.Status); err != nil {
			return nil, err
		}
	}
	if status.Terminal() {
		return nil, errors.BadRequest(fmt.Sprintf("a visit cannot be created as %s", status), nil)
	}

	v := &model.Visit{
		VisitType: visitType,
		Status:    status,
		VisitDate: s.now(),
	}
	if req.VisitDate != nil {
		v.VisitDate = *req.VisitDate
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		patient, err := s.resolver.Patient(ctx, r.Patients(), req.PatientID)
		if err != nil {
			return err
		}
		doctor, err := s.resolver.Doctor(ctx, r.Doctors(), req.DoctorID)
		if err != nil {
			return err
		}
		if !doctor.IsActive {
			return errors.BadRequest("doctor "+doctor.DoctorID+" is not active", nil)
		}
		v.PatientID = patient.ID
		v.DoctorID = doctor.ID

		if v.VisitID, err = s.ids.Assign(ctx, r.Identifiers(), identifier.Visit, req.VisitID); err != nil {
			return err
		}
		v.Touch(s.now())
		if err := r.Visits().Create(ctx, v); err != nil {
			return service.MapError(err, "visit")
		}
		if v.Status == model.VisitStatusInProgress {
			return s.ensureTriage(ctx, r, v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("visit created", "visit_id", v.VisitID, "status", v.Status)
	return v, nil
}

// ensureTriage creates an empty triage for the visit unless one exists.
func (s *Service) ensureTriage(ctx context.Context, r repository.Repos, visitID int64) error {
	_, err := r.Triage().GetByVisit(ctx, visitID)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, repository.ErrNotFound) {
		return service.MapError(err, "triage")
	}
	now := s.now()
	return service.MapError(r.Triage().Create(ctx, &model.Triage{
		VisitID:   visitID,
		CreatedAt: now,
		UpdatedAt: now,
	}), "triage")
}

func (s *Service) GetVisit(ctx context.Context, ref string) (*model.Visit, error) {
	return s.resolver.Visit(ctx, s.store.Visits(), ref)
}

func (s *Service) ListVisits(ctx context.Context, patientRef string, filter model.VisitFilter) ([]*model.Visit, error) {
	if patientRef != "" {
		p, err := s.resolver.Patient(ctx, s.store.Patients(), patientRef)
		if err != nil {
			return nil, err
		}
		filter.PatientID = p.ID
	}
	list, err := s.store.Visits().List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, "visit")
	}
	return list, nil
}

// UpdateStatus moves a visit through its lifecycle. Entering in-progress
// creates the triage record if the visit has none yet.
func (s *Service) UpdateStatus(ctx context.Context, ref, status string) (*model.Visit, error) {
	to, err := model.ParseVisitStatus(status)
	if err != nil {
		return nil, err
	}
	var v *model.Visit
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		v, err = s.resolver.Visit(ctx, r.Visits(), ref)
		if err != nil {
			return err
		}
		if !model.CanTransition(v.Status, to) {
			return errors.BadRequest(fmt.Sprintf("cannot move visit from %s to %s", v.Status, to), nil)
		}
		if v.Status == to {
			return nil
		}
		if err := r.Visits().UpdateStatus(ctx, v.ID, to); err != nil {
			return service.MapError(err, "visit")
		}
		v.Status = to
		if to == model.VisitStatusInProgress {
			return s.ensureTriage(ctx, r, v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DeleteVisit removes the visit with its invoice, diagnoses, prescription
// and triage.
func (s *Service) DeleteVisit(ctx context.Context, ref string) error {
	var v *model.Visit
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		v, err = s.resolver.Visit(ctx, r.Visits(), ref)
		if err != nil {
			return err
		}
		return s.cascade.Visit(ctx, r, v.ID)
	})
	if err != nil {
		return err
	}
	s.resolver.Forget("visit", v.VisitID)
	s.logger.WithContext(ctx).Info("visit deleted", "visit_id", v.VisitID)
	return nil
}

func (s *Service) GetTriage(ctx context.Context, visitRef string) (*model.Triage, error) {
	v, err := s.resolver.Visit(ctx, s.store.Visits(), visitRef)
	if err != nil {
		return nil, err
	}
	t, err := s.store.Triage().GetByVisit(ctx, v.ID)
	if err != nil {
		return nil, service.MapError(err, "triage")
	}
	return t, nil
}

// UpdateTriage merges the supplied vitals into the visit's triage,
// creating the record first when the visit has none.
func (s *Service) UpdateTriage(ctx context.Context, visitRef string, update *model.TriageUpdate) (*model.Triage, error) {
	var t *model.Triage
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		v, err := s.resolver.Visit(ctx, r.Visits(), visitRef)
		if err != nil {
			return err
		}
		if v.Status == model.VisitStatusCancelled {
			return errors.BadRequest("cannot record triage on a cancelled visit", nil)
		}

		t, err = r.Triage().GetByVisit(ctx, v.ID)
		switch {
		case stderrors.Is(err, repository.ErrNotFound):
			now := s.now()
			t = &model.Triage{VisitID: v.ID, CreatedAt: now, UpdatedAt: now}
			if err := update.Apply(t); err != nil {
				return err
			}
			return service.MapError(r.Triage().Create(ctx, t), "triage")
		case err != nil:
			return service.MapError(err, "triage")
		}

		if err := update.Apply(t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		return service.MapError(r.Triage().Update(ctx, t), "triage")
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// AddDiagnosis records a diagnosis by the visit's doctor for the visit's
// patient. A visit has at most one primary diagnosis.
func (s *Service) AddDiagnosis(ctx context.Context, visitRef string, req *model.CreateDiagnosisRequest) (*model.Diagnosis, error) {
	d := &model.Diagnosis{
		ICD10Code:   req.ICD10Code,
		Condition:   strings.TrimSpace(req.Condition),
		Description: req.Description,
		IsPrimary:   req.IsPrimary,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		v, err := s.resolver.Visit(ctx, r.Visits(), visitRef)
		if err != nil {
			return err
		}
		d.VisitID = &v.ID
		d.PatientID = v.PatientID
		d.DoctorID = v.DoctorID

		if d.IsPrimary {
			existing, err := r.Diagnoses().ListByVisit(ctx, v.ID)
			if err != nil {
				return service.MapError(err, "diagnosis")
			}
			for _, o := range existing {
				if o.IsPrimary {
					return errors.Conflict("visit already has a primary diagnosis", nil)
				}
			}
		}
		d.Touch(s.now())
		return service.MapError(r.Diagnoses().Create(ctx, d), "diagnosis")
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDiagnoses(ctx context.Context, visitRef string) ([]*model.Diagnosis, error) {
	v, err := s.resolver.Visit(ctx, s.store.Visits(), visitRef)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Diagnoses().ListByVisit(ctx, v.ID)
	if err != nil {
		return nil, service.MapError(err, "diagnosis")
	}
	return list, nil
}

func (s *Service) DeleteDiagnosis(ctx context.Context, id int64) error {
	return service.MapError(s.store.Diagnoses().Delete(ctx, id), "diagnosis")
}

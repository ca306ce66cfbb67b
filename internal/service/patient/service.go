package patient

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/cascade"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
)

type PatientService interface {
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	GetPatient(ctx context.Context, ref string) (*model.Patient, error)
	ListPatients(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error)
	UpdatePatient(ctx context.Context, ref string, req *model.UpdatePatientRequest) (*model.Patient, error)
	DeletePatient(ctx context.Context, ref string) error
	Journey(ctx context.Context, ref string) (*model.PatientJourney, error)
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

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	p := &model.Patient{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Gender:    req.Gender,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     req.Email,
		Address:   req.Address,
		BloodType: req.BloodType,
		Allergies: req.Allergies,
	}
	if req.Age == nil {
		return nil, errors.BadRequest("age is required", nil)
	}
	p.Age = *req.Age
	if req.PublicID != "" {
		id, err := uuid.Parse(req.PublicID)
		if err != nil {
			return nil, errors.BadRequest("invalid public_id", err)
		}
		p.PublicID = id
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		id, err := s.ids.Assign(ctx, r.Identifiers(), identifier.Patient, req.PatientID)
		if err != nil {
			return err
		}
		p.PatientID = id
		p.Touch(s.now())
		return service.MapError(r.Patients().Create(ctx, p), "patient")
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("patient registered", "patient_id", p.PatientID)
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, ref string) (*model.Patient, error) {
	return s.resolver.Patient(ctx, s.store.Patients(), ref)
}

func (s *Service) ListPatients(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	list, err := s.store.Patients().List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, "patient")
	}
	return list, nil
}

func (s *Service) UpdatePatient(ctx context.Context, ref string, req *model.UpdatePatientRequest) (*model.Patient, error) {
	var p *model.Patient
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		p, err = s.resolver.Patient(ctx, r.Patients(), ref)
		if err != nil {
			return err
		}
		req.Apply(p)
		if err := p.Validate(); err != nil {
			return err
		}
		p.UpdatedAt = s.now()
		return service.MapError(r.Patients().Update(ctx, p), "patient")
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the patient together with visits, prescriptions,
// invoices and diagnoses. Dispensed stock is returned to inventory.
func (s *Service) DeletePatient(ctx context.Context, ref string) error {
	var p *model.Patient
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		p, err = s.resolver.Patient(ctx, r.Patients(), ref)
		if err != nil {
			return err
		}
		visits, err := r.Visits().List(ctx, model.VisitFilter{PatientID: p.ID, Pagination: model.Pagination{PageSize: 200}})
		if err != nil {
			return service.MapError(err, "visit")
		}
		for _, v := range visits {
			s.resolver.Forget("visit", v.VisitID)
		}
		return s.cascade.Patient(ctx, r, p.ID)
	})
	if err != nil {
		return err
	}
	s.resolver.Forget("patient", p.PatientID)
	s.logger.WithContext(ctx).Info("patient deleted", "patient_id", p.PatientID)
	return nil
}

// Journey reports the patient's in-progress visit and what should happen
// next on it.
func (s *Service) Journey(ctx context.Context, ref string) (*model.PatientJourney, error) {
	p, err := s.resolver.Patient(ctx, s.store.Patients(), ref)
	if err != nil {
		return nil, err
	}
	journey := &model.PatientJourney{PatientID: p.PatientID, NextStep: model.JourneyStartVisit}

	active, err := s.store.Visits().List(ctx, model.VisitFilter{
		PatientID: p.ID,
		Status:    model.VisitStatusInProgress,
	})
	if err != nil {
		return nil, service.MapError(err, "visit")
	}
	if len(active) == 0 {
		return journey, nil
	}
	visit := active[len(active)-1]
	for _, v := range active {
		if v.VisitDate.After(visit.VisitDate) {
			visit = v
		}
	}
	journey.ActiveVisit = visit

	triage, err := s.store.Triage().GetByVisit(ctx, visit.ID)
	if err != nil && !stderrors.Is(err, repository.ErrNotFound) {
		return nil, service.MapError(err, "triage")
	}
	if triage == nil || !triage.Recorded() {
		journey.NextStep = model.JourneyTriage
		return journey, nil
	}

	if _, err := s.store.Prescriptions().GetByVisit(ctx, visit.ID); err != nil {
		if !stderrors.Is(err, repository.ErrNotFound) {
			return nil, service.MapError(err, "prescription")
		}
		journey.NextStep = model.JourneyPrescription
		return journey, nil
	}

	if _, err := s.store.Invoices().GetByVisit(ctx, visit.ID); err != nil {
		if !stderrors.Is(err, repository.ErrNotFound) {
			return nil, service.MapError(err, "invoice")
		}
		journey.NextStep = model.JourneyInvoice
		return journey, nil
	}

	journey.NextStep = model.JourneyDone
	return journey, nil
}

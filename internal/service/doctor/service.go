package doctor

import (
	"context"
	"strings"
	"time"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
)

type DoctorService interface {
	CreateDoctor(ctx context.Context, req *model.CreateDoctorRequest) (*model.Doctor, error)
	GetDoctor(ctx context.Context, ref string) (*model.Doctor, error)
	ListDoctors(ctx context.Context, filter model.DoctorFilter) ([]*model.Doctor, error)
	UpdateDoctor(ctx context.Context, ref string, req *model.UpdateDoctorRequest) (*model.Doctor, error)
	DeleteDoctor(ctx context.Context, ref string) error
}

type Service struct {
	store    repository.Store
	ids      *identifier.Generator
	resolver *lookup.Resolver
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(store repository.Store, ids *identifier.Generator, resolver *lookup.Resolver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, ids: ids, resolver: resolver, logger: log, now: time.Now}
}

func (s *Service) CreateDoctor(ctx context.Context, req *model.CreateDoctorRequest) (*model.Doctor, error) {
	d := &model.Doctor{
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		LicenseNumber: strings.TrimSpace(req.LicenseNumber),
		Specialty:     req.Specialty,
		Email:         req.Email,
		Phone:         strings.TrimSpace(req.Phone),
		IsActive:      true,
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		id, err := s.ids.Assign(ctx, r.Identifiers(), identifier.Doctor, req.DoctorID)
		if err != nil {
			return err
		}
		d.DoctorID = id
		d.Touch(s.now())
		if err := r.Doctors().Create(ctx, d); err != nil {
			if errors.HasCode(service.MapError(err, "doctor"), errors.ErrConflict) {
				return errors.Conflict("doctor id, license number or email already registered", err)
			}
			return service.MapError(err, "doctor")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Info("doctor registered", "doctor_id", d.DoctorID, "specialty", d.Specialty)
	return d, nil
}

func (s *Service) GetDoctor(ctx context.Context, ref string) (*model.Doctor, error) {
	return s.resolver.Doctor(ctx, s.store.Doctors(), ref)
}

func (s *Service) ListDoctors(ctx context.Context, filter model.DoctorFilter) ([]*model.Doctor, error) {
	list, err := s.store.Doctors().List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, "doctor")
	}
	return list, nil
}

func (s *Service) UpdateDoctor(ctx context.Context, ref string, req *model.UpdateDoctorRequest) (*model.Doctor, error) {
	var d *model.Doctor
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		d, err = s.resolver.Doctor(ctx, r.Doctors(), ref)
		if err != nil {
			return err
		}
		req.Apply(d)
		if err := d.Validate(); err != nil {
			return err
		}
		d.UpdatedAt = s.now()
		return service.MapError(r.Doctors().Update(ctx, d), "doctor")
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDoctor refuses to remove a doctor who still has visits on record.
func (s *Service) DeleteDoctor(ctx context.Context, ref string) error {
	var d *model.Doctor
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		d, err = s.resolver.Doctor(ctx, r.Doctors(), ref)
		if err != nil {
			return err
		}
		n, err := r.Visits().CountByDoctor(ctx, d.ID)
		if err != nil {
			return service.MapError(err, "visit")
		}
		if n > 0 {
			return errors.Conflict("doctor has visits on record", nil)
		}
		return service.MapError(r.Doctors().Delete(ctx, d.ID), "doctor")
	})
	if err != nil {
		return err
	}
	s.resolver.Forget("doctor", d.DoctorID)
	return nil
}

// Package inventory keeps drug stock consistent with the prescriptions
// written against it.
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
)

type InventoryService interface {
	CreateDrug(ctx context.Context, req *model.CreateDrugRequest) (*model.Drug, error)
	GetDrug(ctx context.Context, id int64) (*model.Drug, error)
	ListDrugs(ctx context.Context, filter model.DrugFilter) ([]*model.Drug, error)
	LowStock(ctx context.Context) ([]*model.Drug, error)
	UpdateDrug(ctx context.Context, id int64, req *model.UpdateDrugRequest) (*model.Drug, error)
	Restock(ctx context.Context, id int64, quantity int) (*model.Drug, error)
	DeleteDrug(ctx context.Context, id int64) error

	CreatePrescription(ctx context.Context, req *model.CreatePrescriptionRequest) (*model.Prescription, error)
	GetPrescription(ctx context.Context, id int64) (*model.Prescription, error)
	ListPrescriptions(ctx context.Context, patientRef string, filter model.PrescriptionFilter) ([]*model.Prescription, error)
	UpdatePrescriptionStatus(ctx context.Context, id int64, status string) (*model.Prescription, error)
	DeletePrescription(ctx context.Context, id int64) error
}

var _ InventoryService = (*Service)(nil)

type Service struct {
	store    repository.Store
	ledger   *Ledger
	resolver *lookup.Resolver
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(store repository.Store, ledger *Ledger, resolver *lookup.Resolver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		resolver: resolver,
		logger:   log,
		now:      time.Now,
	}
}

func (s *Service) CreateDrug(ctx context.Context, req *model.CreateDrugRequest) (*model.Drug, error) {
	drug := &model.Drug{
		Name:       strings.TrimSpace(req.Name),
		Vendor:     req.Vendor,
		DosageForm: req.DosageForm,
		Strength:   req.Strength,
		UnitPrice:  req.UnitPrice,
		Stock:      req.Stock,
		ExpiryDate: req.ExpiryDate,
		IsActive:   true,
	}
	if req.IsActive != nil {
		drug.IsActive = *req.IsActive
	}
	if err := drug.Validate(); err != nil {
		return nil, err
	}
	drug.Touch(s.now())
	if err := s.store.Drugs().Create(ctx, drug); err != nil {
		return nil, service.MapError(err, "drug")
	}
	return drug, nil
}

func (s *Service) GetDrug(ctx context.Context, id int64) (*model.Drug, error) {
	drug, err := s.store.Drugs().GetByID(ctx, id)
	if err != nil {
		return nil, service.MapError(err, "drug")
	}
	return drug, nil
}

func (s *Service) ListDrugs(ctx context.Context, filter model.DrugFilter) ([]*model.Drug, error) {
	drugs, err := s.store.Drugs().List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, "drug")
	}
	return drugs, nil
}

// LowStock lists active drugs at or below the configured threshold.
func (s *Service) LowStock(ctx context.Context) ([]*model.Drug, error) {
	drugs, err := s.store.Drugs().ListLowStock(ctx, s.ledger.Threshold())
	if err != nil {
		return nil, service.MapError(err, "drug")
	}
	return drugs, nil
}

func (s *Service) UpdateDrug(ctx context.Context, id int64, req *model.UpdateDrugRequest) (*model.Drug, error) {
	var drug *model.Drug
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		drug, err = r.Drugs().GetByID(ctx, id)
		if err != nil {
			return service.MapError(err, "drug")
		}
		req.Apply(drug)
		if err := drug.Validate(); err != nil {
			return err
		}
		drug.UpdatedAt = s.now()
		return service.MapError(r.Drugs().Update(ctx, drug), "drug")
	})
	if err != nil {
		return nil, err
	}
	return drug, nil
}

// Restock adds delivered units to a drug.
func (s *Service) Restock(ctx context.Context, id int64, quantity int) (*model.Drug, error) {
	if quantity <= 0 {
		return nil, errors.BadRequest("quantity must be positive", nil)
	}
	var drug *model.Drug
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := s.ledger.Restore(ctx, r, id, quantity); err != nil {
			return err
		}
		var err error
		drug, err = r.Drugs().GetByID(ctx, id)
		return service.MapError(err, "drug")
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithContext(ctx).Info("drug restocked", "drug_id", id, "quantity", quantity, "stock", drug.Stock)
	return drug, nil
}

// DeleteDrug removes a drug that no prescription or invoice refers to.
func (s *Service) DeleteDrug(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Drugs().GetByID(ctx, id); err != nil {
			return service.MapError(err, "drug")
		}
		used, err := r.Drugs().IsReferenced(ctx, id)
		if err != nil {
			return service.MapError(err, "drug")
		}
		if used {
			return errors.Conflict("drug is referenced by prescriptions or invoices", nil)
		}
		return service.MapError(r.Drugs().Delete(ctx, id), "drug")
	})
}

// CreatePrescription records a prescription and dispenses every drug line
// from stock in the same transaction. If any line cannot be covered the
// whole prescription is rejected and no stock moves.
func (s *Service) CreatePrescription(ctx context.Context, req *model.CreatePrescriptionRequest) (*model.Prescription, error) {
	rx := &model.Prescription{
		Dosage:       req.Dosage,
		Frequency:    req.Frequency,
		Quantity:     req.Quantity,
		DurationDays: req.DurationDays,
		EndDate:      req.EndDate,
		Instructions: req.Instructions,
		Status:       model.PrescriptionStatusActive,
		StartDate:    model.Today(s.now()),
	}
	if req.StartDate != nil {
		rx.StartDate = *req.StartDate
	}
	if req.PublicID != "" {
		id, err := uuid.Parse(req.PublicID)
		if err != nil {
			return nil, errors.BadRequest("invalid public_id", err)
		}
		rx.PublicID = id
	}

	rx.Drugs = normalizeLines(req)
	if len(rx.Drugs) == 0 {
		return nil, errors.BadRequest("prescription needs at least one drug", nil)
	}
	if err := rx.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if rx.PublicID != uuid.Nil {
			if _, err := r.Prescriptions().GetByPublicID(ctx, rx.PublicID); err == nil {
				return errors.Conflict("prescription already exists", nil)
			}
		}
		if err := s.bindParties(ctx, r, rx, req); err != nil {
			return err
		}

		rx.Touch(s.now())
		lines := rx.Drugs
		if err := r.Prescriptions().Create(ctx, rx); err != nil {
			return service.MapError(err, "prescription")
		}
		for i := range lines {
			lines[i].PrescriptionID = rx.ID
			if err := r.Prescriptions().AddDrug(ctx, &lines[i]); err != nil {
				return service.MapError(err, "prescription drug")
			}
			if err := s.ledger.Decrement(ctx, r, lines[i].DrugID, lines[i].Quantity); err != nil {
				return err
			}
		}
		rx.Drugs = lines
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("prescription created",
		"prescription_id", rx.ID, "patient_id", rx.PatientID, "lines", len(rx.Drugs))
	return rx, nil
}

// normalizeLines turns the single drug_id + quantity shape into one line.
func normalizeLines(req *model.CreatePrescriptionRequest) []model.PrescriptionDrug {
	var lines []model.PrescriptionDrug
	for _, d := range req.Drugs {
		lines = append(lines, model.PrescriptionDrug{
			DrugID:    d.DrugID,
			Dosage:    d.Dosage,
			Frequency: d.Frequency,
			Quantity:  d.Quantity,
		})
	}
	if len(lines) == 0 && req.DrugID != nil && req.Quantity != nil {
		freq := "as directed"
		if req.Frequency != nil && strings.TrimSpace(*req.Frequency) != "" {
			freq = *req.Frequency
		}
		lines = append(lines, model.PrescriptionDrug{
			DrugID:    *req.DrugID,
			Dosage:    req.Dosage,
			Frequency: freq,
			Quantity:  *req.Quantity,
		})
	}
	return lines
}

// bindParties resolves visit, patient and doctor, and checks they agree.
func (s *Service) bindParties(ctx context.Context, r repository.Repos, rx *model.Prescription, req *model.CreatePrescriptionRequest) error {
	if req.VisitID != "" {
		visit, err := s.resolver.Visit(ctx, r.Visits(), req.VisitID)
		if err != nil {
			return err
		}
		if visit.Status == model.VisitStatusCancelled {
			return errors.BadRequest("cannot prescribe on a cancelled visit", nil)
		}
		if _, err := r.Prescriptions().GetByVisit(ctx, visit.ID); err == nil {
			return errors.Conflict("visit already has a prescription", nil)
		}
		rx.VisitID = &visit.ID
		rx.PatientID = visit.PatientID
		rx.DoctorID = visit.DoctorID
	}

	if req.PatientID != "" {
		patient, err := s.resolver.Patient(ctx, r.Patients(), req.PatientID)
		if err != nil {
			return err
		}
		if rx.PatientID != 0 && rx.PatientID != patient.ID {
			return errors.Conflict("prescription patient does not match the visit", nil)
		}
		rx.PatientID = patient.ID
	}
	if req.DoctorID != "" {
		doctor, err := s.resolver.Doctor(ctx, r.Doctors(), req.DoctorID)
		if err != nil {
			return err
		}
		if rx.DoctorID != 0 && rx.DoctorID != doctor.ID {
			return errors.Conflict("prescription doctor does not match the visit", nil)
		}
		rx.DoctorID = doctor.ID
	}

	if rx.PatientID == 0 || rx.DoctorID == 0 {
		return errors.BadRequest("visit_id or both patient_id and doctor_id are required", nil)
	}
	return nil
}

func (s *Service) GetPrescription(ctx context.Context, id int64) (*model.Prescription, error) {
	rx, err := s.store.Prescriptions().GetByID(ctx, id)
	if err != nil {
		return nil, service.MapError(err, "prescription")
	}
	return rx, nil
}

// ListPrescriptions lists prescriptions, optionally for one patient given
// by business id.
func (s *Service) ListPrescriptions(ctx context.Context, patientRef string, filter model.PrescriptionFilter) ([]*model.Prescription, error) {
	if patientRef != "" {
		patient, err := s.resolver.Patient(ctx, s.store.Patients(), patientRef)
		if err != nil {
			return nil, err
		}
		filter.PatientID = patient.ID
	}
	list, err := s.store.Prescriptions().List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, "prescription")
	}
	return list, nil
}

// UpdatePrescriptionStatus changes the status only; stock is untouched.
func (s *Service) UpdatePrescriptionStatus(ctx context.Context, id int64, status string) (*model.Prescription, error) {
	st, err := model.ParsePrescriptionStatus(status)
	if err != nil {
		return nil, err
	}
	var rx *model.Prescription
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Prescriptions().UpdateStatus(ctx, id, st); err != nil {
			return service.MapError(err, "prescription")
		}
		var err error
		rx, err = r.Prescriptions().GetByID(ctx, id)
		return service.MapError(err, "prescription")
	})
	if err != nil {
		return nil, err
	}
	return rx, nil
}

// DeletePrescription removes a prescription and restores its stock.
func (s *Service) DeletePrescription(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Prescriptions().GetByID(ctx, id); err != nil {
			return service.MapError(err, "prescription")
		}
		return s.ledger.RemovePrescription(ctx, r, id)
	})
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).Info("prescription deleted, stock restored", "prescription_id", id)
	return nil
}

package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

type PrescriptionStatus string

const (
	PrescriptionStatusActive    PrescriptionStatus = "active"
	PrescriptionStatusCompleted PrescriptionStatus = "completed"
	PrescriptionStatusCancelled PrescriptionStatus = "cancelled"
)

func ParsePrescriptionStatus(s string) (PrescriptionStatus, error) {
	st := PrescriptionStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case PrescriptionStatusActive, PrescriptionStatusCompleted, PrescriptionStatusCancelled:
		return st, nil
	}
	return "", errors.BadRequest("invalid prescription status "+s, nil)
}

type Prescription struct {
	Base
	VisitID      *int64             `db:"visit_id" json:"visit_id,omitempty"`
	PatientID    int64              `db:"patient_id" json:"patient_id"`
	DoctorID     int64              `db:"doctor_id" json:"doctor_id"`
	Dosage       *string            `db:"dosage" json:"dosage,omitempty"`
	Frequency    *string            `db:"frequency" json:"frequency,omitempty"`
	Quantity     *int               `db:"quantity" json:"quantity,omitempty"`
	DurationDays *int               `db:"duration_days" json:"duration_days,omitempty"`
	StartDate    time.Time          `db:"start_date" json:"start_date"`
	EndDate      *time.Time         `db:"end_date" json:"end_date,omitempty"`
	Instructions *string            `db:"instructions" json:"instructions,omitempty"`
	Status       PrescriptionStatus `db:"status" json:"status"`
	Drugs        []PrescriptionDrug `db:"-" json:"drugs"`
}

// IsActiveAt reports whether the prescription is active and not past its end date.
func (p *Prescription) IsActiveAt(now time.Time) bool {
	if p.Status != PrescriptionStatusActive {
		return false
	}
	return p.EndDate == nil || !Today(*p.EndDate).Before(Today(now))
}

func (p Prescription) MarshalJSON() ([]byte, error) {
	type alias Prescription
	return json.Marshal(struct {
		alias
		IsActive bool `json:"is_active"`
	}{alias(p), p.IsActiveAt(time.Now())})
}

func (p *Prescription) Validate() error {
	if p.Quantity != nil && *p.Quantity <= 0 {
		return errors.BadRequest("quantity must be positive", nil)
	}
	if p.DurationDays != nil && *p.DurationDays <= 0 {
		return errors.BadRequest("duration_days must be positive", nil)
	}
	if p.EndDate != nil && Today(*p.EndDate).Before(Today(p.StartDate)) {
		return errors.BadRequest("end_date cannot be before start_date", nil)
	}
	seen := make(map[int64]bool, len(p.Drugs))
	for _, d := range p.Drugs {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.DrugID] {
			return errors.BadRequest("drug listed twice on one prescription", nil)
		}
		seen[d.DrugID] = true
	}
	return nil
}

// PrescriptionDrug is one drug line of a prescription, keyed by
// (prescription_id, drug_id).
type PrescriptionDrug struct {
	PrescriptionID int64   `db:"prescription_id" json:"prescription_id"`
	DrugID         int64   `db:"drug_id" json:"drug_id"`
	Dosage         *string `db:"dosage" json:"dosage,omitempty"`
	Frequency      string  `db:"frequency" json:"frequency"`
	Quantity       int     `db:"quantity" json:"quantity"`
}

func (d *PrescriptionDrug) Validate() error {
	if d.DrugID <= 0 {
		return errors.BadRequest("drug_id is required", nil)
	}
	if strings.TrimSpace(d.Frequency) == "" {
		return errors.BadRequest("frequency is required", nil)
	}
	if d.Quantity <= 0 {
		return errors.BadRequest("quantity must be positive", nil)
	}
	return nil
}

type PrescriptionFilter struct {
	PatientID int64
	VisitID   int64
	Status    PrescriptionStatus
	Pagination
}

type PrescriptionDrugRequest struct {
	DrugID    int64   `json:"drug_id" binding:"required"`
	Dosage    *string `json:"dosage"`
	Frequency string  `json:"frequency" binding:"required"`
	Quantity  int     `json:"quantity" binding:"required,gt=0"`
}

// CreatePrescriptionRequest accepts either a list of drug lines or a single
// drug_id with quantity.
type CreatePrescriptionRequest struct {
	PublicID     string                    `json:"public_id" binding:"omitempty,uuid"`
	VisitID      string                    `json:"visit_id"`
	PatientID    string                    `json:"patient_id"`
	DoctorID     string                    `json:"doctor_id"`
	Dosage       *string                   `json:"dosage"`
	Frequency    *string                   `json:"frequency"`
	Quantity     *int                      `json:"quantity" binding:"omitempty,gt=0"`
	DurationDays *int                      `json:"duration_days" binding:"omitempty,gt=0"`
	StartDate    *time.Time                `json:"start_date"`
	EndDate      *time.Time                `json:"end_date"`
	Instructions *string                   `json:"instructions"`
	DrugID       *int64                    `json:"drug_id"`
	Drugs        []PrescriptionDrugRequest `json:"drugs" binding:"omitempty,dive"`
}

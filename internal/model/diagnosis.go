package model

import (
	"regexp"
	"strings"

	"github.com/kmc/ehr-api/pkg/errors"
)

var icd10Pattern = regexp.MustCompile(`^[A-TV-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?$`)

// ValidICD10 reports whether code has the shape of an ICD-10 code, e.g. J45.909.
func ValidICD10(code string) bool {
	return icd10Pattern.MatchString(strings.ToUpper(code))
}

type Diagnosis struct {
	Base
	VisitID     *int64  `db:"visit_id" json:"visit_id,omitempty"`
	PatientID   int64   `db:"patient_id" json:"patient_id"`
	DoctorID    int64   `db:"doctor_id" json:"doctor_id"`
	ICD10Code   *string `db:"icd10_code" json:"icd10_code,omitempty"`
	Condition   string  `db:"condition" json:"condition"`
	Description *string `db:"description" json:"description,omitempty"`
	IsPrimary   bool    `db:"is_primary" json:"is_primary"`
}

func (d *Diagnosis) Validate() error {
	if strings.TrimSpace(d.Condition) == "" {
		return errors.BadRequest("condition is required", nil)
	}
	if d.ICD10Code != nil {
		code := strings.ToUpper(strings.TrimSpace(*d.ICD10Code))
		if !ValidICD10(code) {
			return errors.BadRequest("invalid ICD-10 code "+*d.ICD10Code, nil)
		}
		d.ICD10Code = &code
	}
	return nil
}

type CreateDiagnosisRequest struct {
	ICD10Code   *string `json:"icd10_code" binding:"omitempty,icd10"`
	Condition   string  `json:"condition" binding:"required,max=200"`
	Description *string `json:"description"`
	IsPrimary   bool    `json:"is_primary"`
}

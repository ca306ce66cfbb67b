package model

import (
	"encoding/json"
	"strings"

	"github.com/kmc/ehr-api/pkg/errors"
)

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

var bloodTypes = map[string]bool{
	"A+": true, "A-": true, "B+": true, "B-": true,
	"AB+": true, "AB-": true, "O+": true, "O-": true,
}

type Patient struct {
	Base
	PatientID string  `db:"patient_id" json:"patient_id"`
	FirstName string  `db:"first_name" json:"first_name"`
	LastName  string  `db:"last_name" json:"last_name"`
	Age       int     `db:"age" json:"age"`
	Gender    string  `db:"gender" json:"gender"`
	Phone     string  `db:"phone" json:"phone"`
	Email     *string `db:"email" json:"email,omitempty"`
	Address   *string `db:"address" json:"address,omitempty"`
	BloodType *string `db:"blood_type" json:"blood_type,omitempty"`
	Allergies *string `db:"allergies" json:"allergies,omitempty"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

func (p Patient) MarshalJSON() ([]byte, error) {
	type alias Patient
	return json.Marshal(struct {
		alias
		FullName string `json:"full_name"`
	}{alias(p), p.FullName()})
}

// Validate normalizes gender and checks the required fields.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return errors.BadRequest("first_name and last_name are required", nil)
	}
	if p.Age < 0 || p.Age > 150 {
		return errors.BadRequest("age must be between 0 and 150", nil)
	}
	if strings.TrimSpace(p.Phone) == "" {
		return errors.BadRequest("phone is required", nil)
	}
	gender, err := NormalizeGender(p.Gender)
	if err != nil {
		return err
	}
	p.Gender = gender
	if p.BloodType != nil {
		bt := strings.ToUpper(strings.TrimSpace(*p.BloodType))
		if !bloodTypes[bt] {
			return errors.BadRequest("invalid blood type "+*p.BloodType, nil)
		}
		p.BloodType = &bt
	}
	return nil
}

// NormalizeGender lower-cases g and accepts only male or female.
func NormalizeGender(g string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(g))
	if v != GenderMale && v != GenderFemale {
		return "", errors.BadRequest("gender must be 'male' or 'female'", nil)
	}
	return v, nil
}

type PatientFilter struct {
	Search string
	Pagination
}

type CreatePatientRequest struct {
	PatientID string  `json:"patient_id"`
	PublicID  string  `json:"public_id" binding:"omitempty,uuid"`
	FirstName string  `json:"first_name" binding:"required,max=100"`
	LastName  string  `json:"last_name" binding:"required,max=100"`
	Age       *int    `json:"age" binding:"required,min=0,max=150"`
	Gender    string  `json:"gender" binding:"required,gender"`
	Phone     string  `json:"phone" binding:"required,max=20"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Address   *string `json:"address"`
	BloodType *string `json:"blood_type"`
	Allergies *string `json:"allergies"`
}

type UpdatePatientRequest struct {
	FirstName *string `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,max=100"`
	Age       *int    `json:"age" binding:"omitempty,min=0,max=150"`
	Gender    *string `json:"gender" binding:"omitempty,gender"`
	Phone     *string `json:"phone" binding:"omitempty,max=20"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Address   *string `json:"address"`
	BloodType *string `json:"blood_type"`
	Allergies *string `json:"allergies"`
}

// Apply copies the supplied fields onto p.
func (r *UpdatePatientRequest) Apply(p *Patient) {
	if r.FirstName != nil {
		p.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		p.LastName = *r.LastName
	}
	if r.Age != nil {
		p.Age = *r.Age
	}
	if r.Gender != nil {
		p.Gender = *r.Gender
	}
	if r.Phone != nil {
		p.Phone = *r.Phone
	}
	if r.Email != nil {
		p.Email = r.Email
	}
	if r.Address != nil {
		p.Address = r.Address
	}
	if r.BloodType != nil {
		p.BloodType = r.BloodType
	}
	if r.Allergies != nil {
		p.Allergies = r.Allergies
	}
}

// JourneyStep names the next clinical step for a patient.
type JourneyStep string

const (
	JourneyStartVisit   JourneyStep = "start-visit"
	JourneyTriage       JourneyStep = "triage"
	JourneyPrescription JourneyStep = "prescription"
	JourneyInvoice      JourneyStep = "invoice"
	JourneyDone         JourneyStep = "done"
)

type PatientJourney struct {
	PatientID   string      `json:"patient_id"`
	ActiveVisit *Visit      `json:"active_visit,omitempty"`
	NextStep    JourneyStep `json:"next_step"`
}

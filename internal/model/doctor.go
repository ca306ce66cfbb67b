package model

import (
	"encoding/json"
	"strings"

	"github.com/kmc/ehr-api/pkg/errors"
)

var specialties = map[string]bool{
	"general":    true,
	"obs-gyn":    true,
	"ent":        true,
	"pediatrics": true,
	"surgery":    true,
}

type Doctor struct {
	Base
	DoctorID      string  `db:"doctor_id" json:"doctor_id"`
	FirstName     string  `db:"first_name" json:"first_name"`
	LastName      string  `db:"last_name" json:"last_name"`
	LicenseNumber string  `db:"license_number" json:"license_number"`
	Specialty     string  `db:"specialty" json:"specialty"`
	Email         *string `db:"email" json:"email,omitempty"`
	Phone         string  `db:"phone" json:"phone"`
	IsActive      bool    `db:"is_active" json:"is_active"`
}

func (d *Doctor) FullName() string {
	return d.FirstName + " " + d.LastName
}

func (d Doctor) MarshalJSON() ([]byte, error) {
	type alias Doctor
	return json.Marshal(struct {
		alias
		FullName string `json:"full_name"`
	}{alias(d), d.FullName()})
}

func (d *Doctor) Validate() error {
	if strings.TrimSpace(d.FirstName) == "" || strings.TrimSpace(d.LastName) == "" {
		return errors.BadRequest("first_name and last_name are required", nil)
	}
	if strings.TrimSpace(d.LicenseNumber) == "" {
		return errors.BadRequest("license_number is required", nil)
	}
	if strings.TrimSpace(d.Phone) == "" {
		return errors.BadRequest("phone is required", nil)
	}
	d.Specialty = strings.ToLower(strings.TrimSpace(d.Specialty))
	if d.Specialty == "" {
		d.Specialty = "general"
	}
	if !specialties[d.Specialty] {
		return errors.BadRequest("invalid specialty "+d.Specialty, nil)
	}
	return nil
}

type DoctorFilter struct {
	ActiveOnly bool
	Specialty  string
	Pagination
}

type CreateDoctorRequest struct {
	DoctorID      string  `json:"doctor_id"`
	FirstName     string  `json:"first_name" binding:"required,max=100"`
	LastName      string  `json:"last_name" binding:"required,max=100"`
	LicenseNumber string  `json:"license_number" binding:"required,max=50"`
	Specialty     string  `json:"specialty" binding:"omitempty,oneof=general obs-gyn ent pediatrics surgery"`
	Email         *string `json:"email" binding:"omitempty,email"`
	Phone         string  `json:"phone" binding:"required,max=20"`
	IsActive      *bool   `json:"is_active"`
}

type UpdateDoctorRequest struct {
	FirstName     *string `json:"first_name" binding:"omitempty,max=100"`
	LastName      *string `json:"last_name" binding:"omitempty,max=100"`
	LicenseNumber *string `json:"license_number" binding:"omitempty,max=50"`
	Specialty     *string `json:"specialty" binding:"omitempty,oneof=general obs-gyn ent pediatrics surgery"`
	Email         *string `json:"email" binding:"omitempty,email"`
	Phone         *string `json:"phone" binding:"omitempty,max=20"`
	IsActive      *bool   `json:"is_active"`
}

func (r *UpdateDoctorRequest) Apply(d *Doctor) {
	if r.FirstName != nil {
		d.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		d.LastName = *r.LastName
	}
	if r.LicenseNumber != nil {
		d.LicenseNumber = *r.LicenseNumber
	}
	if r.Specialty != nil {
		d.Specialty = *r.Specialty
	}
	if r.Email != nil {
		d.Email = r.Email
	}
	if r.Phone != nil {
		d.Phone = *r.Phone
	}
	if r.IsActive != nil {
		d.IsActive = *r.IsActive
	}
}

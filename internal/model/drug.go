package model

import (
	"strings"
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

type Drug struct {
	Base
	Name       string     `db:"name" json:"name"`
	Vendor     *string    `db:"vendor" json:"vendor,omitempty"`
	DosageForm *string    `db:"dosage_form" json:"dosage_form,omitempty"`
	Strength   *string    `db:"strength" json:"strength,omitempty"`
	UnitPrice  float64    `db:"unit_price" json:"unit_price"`
	Stock      int        `db:"stock" json:"stock"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	IsActive   bool       `db:"is_active" json:"is_active"`
}

func (d *Drug) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.BadRequest("name is required", nil)
	}
	if d.UnitPrice < 0 {
		return errors.BadRequest("unit_price cannot be negative", nil)
	}
	if d.Stock < 0 {
		return errors.BadRequest("stock cannot be negative", nil)
	}
	return nil
}

type DrugFilter struct {
	ActiveOnly bool
	Search     string
	Pagination
}

type CreateDrugRequest struct {
	Name       string     `json:"name" binding:"required,max=100"`
	Vendor     *string    `json:"vendor"`
	DosageForm *string    `json:"dosage_form"`
	Strength   *string    `json:"strength"`
	UnitPrice  float64    `json:"unit_price" binding:"min=0"`
	Stock      int        `json:"stock" binding:"min=0"`
	ExpiryDate *time.Time `json:"expiry_date"`
	IsActive   *bool      `json:"is_active"`
}

type UpdateDrugRequest struct {
	Name       *string    `json:"name" binding:"omitempty,max=100"`
	Vendor     *string    `json:"vendor"`
	DosageForm *string    `json:"dosage_form"`
	Strength   *string    `json:"strength"`
	UnitPrice  *float64   `json:"unit_price" binding:"omitempty,min=0"`
	ExpiryDate *time.Time `json:"expiry_date"`
	IsActive   *bool      `json:"is_active"`
}

// Apply copies the supplied fields onto d. Stock is only changed through
// prescriptions and restocks.
func (r *UpdateDrugRequest) Apply(d *Drug) {
	if r.Name != nil {
		d.Name = *r.Name
	}
	if r.Vendor != nil {
		d.Vendor = r.Vendor
	}
	if r.DosageForm != nil {
		d.DosageForm = r.DosageForm
	}
	if r.Strength != nil {
		d.Strength = r.Strength
	}
	if r.UnitPrice != nil {
		d.UnitPrice = *r.UnitPrice
	}
	if r.ExpiryDate != nil {
		d.ExpiryDate = r.ExpiryDate
	}
	if r.IsActive != nil {
		d.IsActive = *r.IsActive
	}
}

type RestockRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

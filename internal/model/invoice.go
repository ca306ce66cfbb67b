package model

import (
	"strings"
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

var itemTypes = map[string]bool{
	"consultation": true,
	"procedure":    true,
	"medication":   true,
	"sundry":       true,
	"other":        true,
}

const ItemTypeMedication = "medication"

type Invoice struct {
	Base
	VisitID         *int64        `db:"visit_id" json:"visit_id,omitempty"`
	PatientID       int64         `db:"patient_id" json:"patient_id"`
	InvoiceDate     time.Time     `db:"invoice_date" json:"invoice_date"`
	DueDate         *time.Time    `db:"due_date" json:"due_date,omitempty"`
	Subtotal        float64       `db:"subtotal" json:"subtotal"`
	ProfessionalFee float64       `db:"professional_fee" json:"professional_fee"`
	Sundries        float64       `db:"sundries" json:"sundries"`
	TaxAmount       float64       `db:"tax_amount" json:"tax_amount"`
	DiscountAmount  float64       `db:"discount_amount" json:"discount_amount"`
	TotalAmount     float64       `db:"total_amount" json:"total_amount"`
	Status          InvoiceStatus `db:"status" json:"status"`
	Notes           *string       `db:"notes" json:"notes,omitempty"`

	// Derived from the item and payment rows; never stored.
	AmountPaid float64       `db:"-" json:"amount_paid"`
	BalanceDue float64       `db:"-" json:"balance_due"`
	Items      []InvoiceItem `db:"-" json:"items"`
	Payments   []Payment     `db:"-" json:"payments"`
}

func (inv *Invoice) Validate() error {
	for name, v := range map[string]float64{
		"professional_fee": inv.ProfessionalFee,
		"sundries":         inv.Sundries,
		"tax_amount":       inv.TaxAmount,
		"discount_amount":  inv.DiscountAmount,
	} {
		if v < 0 {
			return errors.BadRequest(name+" cannot be negative", nil)
		}
	}
	if inv.DueDate != nil && Today(*inv.DueDate).Before(Today(inv.InvoiceDate)) {
		return errors.BadRequest("due_date cannot be before invoice_date", nil)
	}
	return nil
}

type InvoiceItem struct {
	Base
	InvoiceID      int64   `db:"invoice_id" json:"invoice_id"`
	DrugID         int64   `db:"drug_id" json:"drug_id"`
	PrescriptionID *int64  `db:"prescription_id" json:"prescription_id,omitempty"`
	ItemType       string  `db:"item_type" json:"item_type"`
	Description    string  `db:"description" json:"description"`
	Quantity       int     `db:"quantity" json:"quantity"`
	UnitPrice      float64 `db:"unit_price" json:"unit_price"`
	TotalPrice     float64 `db:"total_price" json:"total_price"`
}

// Recompute sets TotalPrice from quantity and unit price.
func (it *InvoiceItem) Recompute() {
	it.TotalPrice = FromCents(int64(it.Quantity) * ToCents(it.UnitPrice))
}

func (it *InvoiceItem) Validate() error {
	if it.DrugID <= 0 {
		return errors.BadRequest("drug_id is required", nil)
	}
	if it.Quantity <= 0 {
		return errors.BadRequest("quantity must be positive", nil)
	}
	if it.UnitPrice < 0 {
		return errors.BadRequest("unit_price cannot be negative", nil)
	}
	it.ItemType = strings.ToLower(strings.TrimSpace(it.ItemType))
	if it.ItemType == "" {
		it.ItemType = "other"
	}
	if !itemTypes[it.ItemType] {
		return errors.BadRequest("invalid item_type "+it.ItemType, nil)
	}
	return nil
}

type InvoiceFilter struct {
	PatientID int64
	Status    InvoiceStatus
	From      *time.Time
	To        *time.Time
	Pagination
}

type InvoiceItemRequest struct {
	DrugID         int64    `json:"drug_id" binding:"required"`
	PrescriptionID *int64   `json:"prescription_id"`
	ItemType       string   `json:"item_type" binding:"omitempty,oneof=consultation procedure medication sundry other"`
	Description    string   `json:"description" binding:"max=255"`
	Quantity       int      `json:"quantity" binding:"required,gt=0"`
	UnitPrice      *float64 `json:"unit_price" binding:"omitempty,min=0"`
}

type UpdateInvoiceItemRequest struct {
	Description *string  `json:"description" binding:"omitempty,max=255"`
	Quantity    *int     `json:"quantity" binding:"omitempty,gt=0"`
	UnitPrice   *float64 `json:"unit_price" binding:"omitempty,min=0"`
}

type CreateInvoiceRequest struct {
	InvoiceDate      *time.Time           `json:"invoice_date"`
	DueDate          *time.Time           `json:"due_date"`
	ProfessionalFee  float64              `json:"professional_fee" binding:"min=0"`
	Sundries         float64              `json:"sundries" binding:"min=0"`
	TaxAmount        float64              `json:"tax_amount" binding:"min=0"`
	DiscountAmount   float64              `json:"discount_amount" binding:"min=0"`
	Notes            *string              `json:"notes"`
	FromPrescription bool                 `json:"from_prescription"`
	Items            []InvoiceItemRequest `json:"items" binding:"omitempty,dive"`
}

type UpdateInvoiceRequest struct {
	DueDate         *time.Time `json:"due_date"`
	ProfessionalFee *float64   `json:"professional_fee" binding:"omitempty,min=0"`
	Sundries        *float64   `json:"sundries" binding:"omitempty,min=0"`
	TaxAmount       *float64   `json:"tax_amount" binding:"omitempty,min=0"`
	DiscountAmount  *float64   `json:"discount_amount" binding:"omitempty,min=0"`
	Notes           *string    `json:"notes"`
}

func (r *UpdateInvoiceRequest) Apply(inv *Invoice) {
	if r.DueDate != nil {
		inv.DueDate = r.DueDate
	}
	if r.ProfessionalFee != nil {
		inv.ProfessionalFee = *r.ProfessionalFee
	}
	if r.Sundries != nil {
		inv.Sundries = *r.Sundries
	}
	if r.TaxAmount != nil {
		inv.TaxAmount = *r.TaxAmount
	}
	if r.DiscountAmount != nil {
		inv.DiscountAmount = *r.DiscountAmount
	}
	if r.Notes != nil {
		inv.Notes = r.Notes
	}
}

// FinancialReport summarises invoices per status over a date range.
type FinancialReport struct {
	From          time.Time                      `json:"from"`
	To            time.Time                      `json:"to"`
	ByStatus      map[InvoiceStatus]StatusTotals `json:"by_status"`
	TotalInvoiced float64                        `json:"total_invoiced"`
	TotalPaid     float64                        `json:"total_paid"`
	Outstanding   float64                        `json:"outstanding"`
}

type StatusTotals struct {
	Count  int     `json:"count" db:"count"`
	Amount float64 `json:"amount" db:"amount"`
}

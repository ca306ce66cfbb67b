package model

import (
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

var paymentMethods = map[string]bool{
	"cash":          true,
	"card":          true,
	"mobile-money":  true,
	"insurance":     true,
	"bank-transfer": true,
}

type Payment struct {
	Base
	InvoiceID            int64      `db:"invoice_id" json:"invoice_id"`
	PaymentDate          time.Time  `db:"payment_date" json:"payment_date"`
	Amount               float64    `db:"amount" json:"amount"`
	PaymentMethod        string     `db:"payment_method" json:"payment_method"`
	TransactionReference *string    `db:"transaction_reference" json:"transaction_reference,omitempty"`
	Notes                *string    `db:"notes" json:"notes,omitempty"`
	DeletedAt            *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	Receipt              *Receipt   `db:"-" json:"receipt,omitempty"`
}

func (p *Payment) Voided() bool {
	return p.DeletedAt != nil
}

func (p *Payment) Validate() error {
	if ToCents(p.Amount) <= 0 {
		return errors.BadRequest("payment amount must be positive", nil)
	}
	if !paymentMethods[p.PaymentMethod] {
		return errors.BadRequest("invalid payment_method "+p.PaymentMethod, nil)
	}
	return nil
}

type Receipt struct {
	Base
	PaymentID     int64     `db:"payment_id" json:"payment_id"`
	ReceiptDate   time.Time `db:"receipt_date" json:"receipt_date"`
	ReceiptNumber string    `db:"receipt_number" json:"receipt_number"`
	IssuedBy      string    `db:"issued_by" json:"issued_by"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
}

type CreatePaymentRequest struct {
	Amount               float64    `json:"amount" binding:"required,gt=0"`
	PaymentMethod        string     `json:"payment_method" binding:"required,oneof=cash card mobile-money insurance bank-transfer"`
	PaymentDate          *time.Time `json:"payment_date"`
	TransactionReference *string    `json:"transaction_reference"`
	Notes                *string    `json:"notes"`
}

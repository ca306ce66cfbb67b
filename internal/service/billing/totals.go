package billing

import (
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/errors"
)

// Totals are the stored money columns of an invoice.
type Totals struct {
	Subtotal float64
	Total    float64
}

// ComputeTotals sums the item lines and applies fees, tax and discount.
// Arithmetic is done in cents. A discount that drives the total below zero
// is rejected.
func ComputeTotals(items []model.InvoiceItem, fee, sundries, tax, discount float64) (Totals, error) {
	var subtotal int64
	for i := range items {
		items[i].Recompute()
		subtotal += model.ToCents(items[i].TotalPrice)
	}
	total := subtotal + model.ToCents(fee) + model.ToCents(sundries) + model.ToCents(tax) - model.ToCents(discount)
	if total < 0 {
		return Totals{}, errors.BadRequest("discount exceeds the invoice amount", nil)
	}
	return Totals{Subtotal: model.FromCents(subtotal), Total: model.FromCents(total)}, nil
}

// AmountPaid sums the payments that have not been voided.
func AmountPaid(payments []model.Payment) float64 {
	var cents int64
	for i := range payments {
		if !payments[i].Voided() {
			cents += model.ToCents(payments[i].Amount)
		}
	}
	return model.FromCents(cents)
}

// DeriveStatus computes the payment status of an invoice. Cancelled
// invoices stay cancelled. An invoice with nothing left to pay is paid,
// including one whose total is zero.
func DeriveStatus(current model.InvoiceStatus, total, paid float64) model.InvoiceStatus {
	if current == model.InvoiceStatusCancelled {
		return current
	}
	paidCents := model.ToCents(paid)
	switch {
	case paidCents >= model.ToCents(total):
		return model.InvoiceStatusPaid
	case paidCents <= 0:
		return model.InvoiceStatusPending
	default:
		return model.InvoiceStatusPartial
	}
}

// Balance returns total minus paid.
func Balance(total, paid float64) float64 {
	return model.FromCents(model.ToCents(total) - model.ToCents(paid))
}

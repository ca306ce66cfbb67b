// Package cascade removes records together with everything that hangs off
// them. Every function runs on the Repos of the caller's transaction.
package cascade

import (
	"context"
	"errors"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/inventory"
)

// batch is the page size used while draining child rows.
const batch = 200

type Deleter struct {
	ledger *inventory.Ledger
}

func NewDeleter(ledger *inventory.Ledger) *Deleter {
	return &Deleter{ledger: ledger}
}

// Invoice deletes receipts, payments and items before the invoice itself.
func (d *Deleter) Invoice(ctx context.Context, r repository.Repos, invoiceID int64) error {
	if err := r.Payments().DeleteReceiptsByInvoice(ctx, invoiceID); err != nil {
		return service.MapError(err, "receipt")
	}
	if err := r.Payments().DeleteByInvoice(ctx, invoiceID); err != nil {
		return service.MapError(err, "payment")
	}
	if err := r.Invoices().DeleteItems(ctx, invoiceID); err != nil {
		return service.MapError(err, "invoice item")
	}
	return service.MapError(r.Invoices().Delete(ctx, invoiceID), "invoice")
}

// Visit deletes a visit with its invoice, diagnoses, prescription, report
// and triage. Dispensed stock of the prescription goes back to inventory.
func (d *Deleter) Visit(ctx context.Context, r repository.Repos, visitID int64) error {
	inv, err := r.Invoices().GetByVisit(ctx, visitID)
	switch {
	case err == nil:
		if err := d.Invoice(ctx, r, inv.ID); err != nil {
			return err
		}
	case !isNotFound(err):
		return service.MapError(err, "invoice")
	}

	diagnoses, err := r.Diagnoses().ListByVisit(ctx, visitID)
	if err != nil {
		return service.MapError(err, "diagnosis")
	}
	for _, dx := range diagnoses {
		if err := r.Diagnoses().Delete(ctx, dx.ID); err != nil {
			return service.MapError(err, "diagnosis")
		}
	}

	rx, err := r.Prescriptions().GetByVisit(ctx, visitID)
	switch {
	case err == nil:
		if err := d.ledger.RemovePrescription(ctx, r, rx.ID); err != nil {
			return err
		}
	case !isNotFound(err):
		return service.MapError(err, "prescription")
	}

	if err := r.VisitReports().DeleteByVisit(ctx, visitID); err != nil {
		return service.MapError(err, "visit report")
	}
	if err := r.Triage().DeleteByVisit(ctx, visitID); err != nil {
		return service.MapError(err, "triage")
	}
	return service.MapError(r.Visits().Delete(ctx, visitID), "visit")
}

// Patient deletes a patient and the whole record graph below it.
func (d *Deleter) Patient(ctx context.Context, r repository.Repos, patientID int64) error {
	for {
		visits, err := r.Visits().List(ctx, model.VisitFilter{
			PatientID:  patientID,
			Pagination: model.Pagination{PageSize: batch},
		})
		if err != nil {
			return service.MapError(err, "visit")
		}
		if len(visits) == 0 {
			break
		}
		for _, v := range visits {
			if err := d.Visit(ctx, r, v.ID); err != nil {
				return err
			}
		}
	}

	// Records written without a visit.
	for {
		list, err := r.Prescriptions().List(ctx, model.PrescriptionFilter{
			PatientID:  patientID,
			Pagination: model.Pagination{PageSize: batch},
		})
		if err != nil {
			return service.MapError(err, "prescription")
		}
		if len(list) == 0 {
			break
		}
		for _, rx := range list {
			if err := d.ledger.RemovePrescription(ctx, r, rx.ID); err != nil {
				return err
			}
		}
	}
	for {
		list, err := r.Invoices().List(ctx, model.InvoiceFilter{
			PatientID:  patientID,
			Pagination: model.Pagination{PageSize: batch},
		})
		if err != nil {
			return service.MapError(err, "invoice")
		}
		if len(list) == 0 {
			break
		}
		for _, inv := range list {
			if err := d.Invoice(ctx, r, inv.ID); err != nil {
				return err
			}
		}
	}
	diagnoses, err := r.Diagnoses().ListByPatient(ctx, patientID)
	if err != nil {
		return service.MapError(err, "diagnosis")
	}
	for _, dx := range diagnoses {
		if err := r.Diagnoses().Delete(ctx, dx.ID); err != nil {
			return service.MapError(err, "diagnosis")
		}
	}

	return service.MapError(r.Patients().Delete(ctx, patientID), "patient")
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

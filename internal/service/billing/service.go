// Package billing turns visits into invoices and tracks payments against
// them.
package billing

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/cascade"
	"github.com/kmc/ehr-api/internal/service/identifier"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
	"github.com/kmc/ehr-api/pkg/metrics"
)

const (
	DefaultReportWindow = 30 * 24 * time.Hour
	// DashboardMonths includes the current month.
	DashboardMonths = 6
	DefaultTopDrugs = 10
	MaxTopDrugs     = 100
	defaultIssuer   = "system"
)

type BillingService interface {
	CreateInvoice(ctx context.Context, visitRef string, req *model.CreateInvoiceRequest) (*model.Invoice, error)
	GetInvoice(ctx context.Context, id int64) (*model.Invoice, error)
	ListInvoices(ctx context.Context, patientRef string, filter model.InvoiceFilter) ([]*model.Invoice, error)
	UpdateInvoice(ctx context.Context, id int64, req *model.UpdateInvoiceRequest) (*model.Invoice, error)
	CancelInvoice(ctx context.Context, id int64) (*model.Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error

	AddItem(ctx context.Context, invoiceID int64, req *model.InvoiceItemRequest) (*model.Invoice, error)
	UpdateItem(ctx context.Context, invoiceID, itemID int64, req *model.UpdateInvoiceItemRequest) (*model.Invoice, error)
	RemoveItem(ctx context.Context, invoiceID, itemID int64) (*model.Invoice, error)

	RecordPayment(ctx context.Context, invoiceID int64, req *model.CreatePaymentRequest, issuedBy string) (*model.Payment, error)
	VoidPayment(ctx context.Context, paymentID int64) (*model.Invoice, error)
	GetReceipt(ctx context.Context, paymentID int64) (*model.Receipt, error)

	FinancialReport(ctx context.Context, from, to *time.Time) (*model.FinancialReport, error)
	PrescriptionReport(ctx context.Context, from, to *time.Time, limit int) (*model.PrescriptionReport, error)
	Dashboard(ctx context.Context) (*model.Dashboard, error)
}

type Service struct {
	store    repository.Store
	ids      *identifier.Generator
	resolver *lookup.Resolver
	cascade  *cascade.Deleter
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(store repository.Store, ids *identifier.Generator, resolver *lookup.Resolver,
	deleter *cascade.Deleter, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:    store,
		ids:      ids,
		resolver: resolver,
		cascade:  deleter,
		logger:   log,
		metrics:  m,
		now:      time.Now,
	}
}

// CreateInvoice bills a visit. Items come from the request and, with
// from_prescription, from every drug line of the visit's prescription
// priced at the drug's current unit price.
func (s *Service) CreateInvoice(ctx context.Context, visitRef string, req *model.CreateInvoiceRequest) (*model.Invoice, error) {
	inv := &model.Invoice{
		InvoiceDate:     model.Today(s.now()),
		DueDate:         req.DueDate,
		ProfessionalFee: req.ProfessionalFee,
		Sundries:        req.Sundries,
		TaxAmount:       req.TaxAmount,
		DiscountAmount:  req.DiscountAmount,
		Notes:           req.Notes,
		Status:          model.InvoiceStatusPending,
	}
	if req.InvoiceDate != nil {
		inv.InvoiceDate = *req.InvoiceDate
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		visit, err := s.resolver.Visit(ctx, r.Visits(), visitRef)
		if err != nil {
			return err
		}
		if visit.Status == model.VisitStatusCancelled {
			return errors.BadRequest("cannot invoice a cancelled visit", nil)
		}
		if _, err := r.Invoices().GetByVisit(ctx, visit.ID); err == nil {
			return errors.Conflict("visit already has an invoice", nil)
		} else if !stderrors.Is(err, repository.ErrNotFound) {
			return service.MapError(err, "invoice")
		}
		inv.VisitID = &visit.ID
		inv.PatientID = visit.PatientID

		var items []model.InvoiceItem
		for i := range req.Items {
			it, err := s.buildItem(ctx, r, inv.PatientID, &req.Items[i])
			if err != nil {
				return err
			}
			items = append(items, *it)
		}
		if req.FromPrescription {
			rxItems, err := s.prescriptionItems(ctx, r, visit.ID)
			if err != nil {
				return err
			}
			items = append(items, rxItems...)
		}

		totals, err := ComputeTotals(items, inv.ProfessionalFee, inv.Sundries, inv.TaxAmount, inv.DiscountAmount)
		if err != nil {
			return err
		}
		inv.Subtotal, inv.TotalAmount = totals.Subtotal, totals.Total
		inv.Status = DeriveStatus(inv.Status, inv.TotalAmount, 0)
		inv.Touch(s.now())
		if err := r.Invoices().Create(ctx, inv); err != nil {
			return service.MapError(err, "invoice")
		}
		for i := range items {
			items[i].InvoiceID = inv.ID
			items[i].Touch(s.now())
			if err := r.Invoices().AddItem(ctx, &items[i]); err != nil {
				return service.MapError(err, "invoice item")
			}
		}
		return s.hydrate(ctx, r, inv)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceCreated()
	s.logger.WithContext(ctx).Info("invoice created",
		"invoice_id", inv.ID, "patient_id", inv.PatientID, "total", inv.TotalAmount)
	return inv, nil
}

// buildItem prices a requested line. Unit price and description default
// to the drug's.
func (s *Service) buildItem(ctx context.Context, r repository.Repos, patientID int64, req *model.InvoiceItemRequest) (*model.InvoiceItem, error) {
	drug, err := r.Drugs().GetByID(ctx, req.DrugID)
	if err != nil {
		return nil, service.MapError(err, "drug")
	}
	it := &model.InvoiceItem{
		DrugID:         drug.ID,
		PrescriptionID: req.PrescriptionID,
		ItemType:       req.ItemType,
		Description:    strings.TrimSpace(req.Description),
		Quantity:       req.Quantity,
		UnitPrice:      drug.UnitPrice,
	}
	if req.UnitPrice != nil {
		it.UnitPrice = *req.UnitPrice
	}
	if it.Description == "" {
		it.Description = drug.Name
	}
	if it.PrescriptionID != nil {
		rx, err := r.Prescriptions().GetByID(ctx, *it.PrescriptionID)
		if err != nil {
			return nil, service.MapError(err, "prescription")
		}
		if rx.PatientID != patientID {
			return nil, errors.Conflict("prescription belongs to another patient", nil)
		}
	}
	if err := it.Validate(); err != nil {
		return nil, err
	}
	it.Recompute()
	return it, nil
}

func (s *Service) prescriptionItems(ctx context.Context, r repository.Repos, visitID int64) ([]model.InvoiceItem, error) {
	rx, err := r.Prescriptions().GetByVisit(ctx, visitID)
	if stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.BadRequest("visit has no prescription to bill", nil)
	}
	if err != nil {
		return nil, service.MapError(err, "prescription")
	}
	items := make([]model.InvoiceItem, 0, len(rx.Drugs))
	for _, line := range rx.Drugs {
		drug, err := r.Drugs().GetByID(ctx, line.DrugID)
		if err != nil {
			return nil, service.MapError(err, "drug")
		}
		it := model.InvoiceItem{
			DrugID:         drug.ID,
			PrescriptionID: &rx.ID,
			ItemType:       model.ItemTypeMedication,
			Description:    drug.Name,
			Quantity:       line.Quantity,
			UnitPrice:      drug.UnitPrice,
		}
		it.Recompute()
		items = append(items, it)
	}
	return items, nil
}

// hydrate fills the derived fields of inv from its item and payment rows.
func (s *Service) hydrate(ctx context.Context, r repository.Repos, inv *model.Invoice) error {
	items, err := r.Invoices().ListItems(ctx, inv.ID)
	if err != nil {
		return service.MapError(err, "invoice item")
	}
	payments, err := r.Payments().ListByInvoice(ctx, inv.ID, false)
	if err != nil {
		return service.MapError(err, "payment")
	}
	for i := range payments {
		rc, err := r.Payments().GetReceiptByPayment(ctx, payments[i].ID)
		switch {
		case err == nil:
			payments[i].Receipt = rc
		case !stderrors.Is(err, repository.ErrNotFound):
			return service.MapError(err, "receipt")
		}
	}
	if items == nil {
		items = []model.InvoiceItem{}
	}
	if payments == nil {
		payments = []model.Payment{}
	}
	inv.Items = items
	inv.Payments = payments
	inv.AmountPaid = AmountPaid(payments)
	inv.BalanceDue = Balance(inv.TotalAmount, inv.AmountPaid)
	return nil
}

// recalculate recomputes the totals and status of inv from its rows and
// stores them.
func (s *Service) recalculate(ctx context.Context, r repository.Repos, inv *model.Invoice) error {
	items, err := r.Invoices().ListItems(ctx, inv.ID)
	if err != nil {
		return service.MapError(err, "invoice item")
	}
	totals, err := ComputeTotals(items, inv.ProfessionalFee, inv.Sundries, inv.TaxAmount, inv.DiscountAmount)
	if err != nil {
		return err
	}
	payments, err := r.Payments().ListByInvoice(ctx, inv.ID, false)
	if err != nil {
		return service.MapError(err, "payment")
	}
	paid := AmountPaid(payments)
	if model.ToCents(paid) > model.ToCents(totals.Total) {
		return errors.BadRequest("invoice total cannot drop below the amount already paid", nil)
	}

	before := inv.Status
	inv.Subtotal, inv.TotalAmount = totals.Subtotal, totals.Total
	inv.Status = DeriveStatus(inv.Status, inv.TotalAmount, paid)
	inv.UpdatedAt = s.now()
	if err := r.Invoices().Update(ctx, inv); err != nil {
		return service.MapError(err, "invoice")
	}
	if before != inv.Status {
		s.logger.WithContext(ctx).Info("invoice status changed",
			"invoice_id", inv.ID, "from", before, "to", inv.Status)
	}
	return s.hydrate(ctx, r, inv)
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*model.Invoice, error) {
	inv, err := s.store.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, service.MapError(err, "invoice")
	}
	if err := s.hydrate(ctx, s.store, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) ListInvoices(ctx context.Context, patientRef string, filter model.InvoiceFilter) ([]*model.Invoice, error) {
	if patientRef != "" {
		p, err := s.resolver.Patient(ctx, s.store.Patients(), patientRef)
		if err != nil {
			return nil, err
		}
		filter.PatientID = p.ID
	}
	list, err := s.store.Invoices().List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, "invoice")
	}
	for _, inv := range list {
		if err := s.hydrate(ctx, s.store, inv); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// editable loads an invoice that may still be changed.
func editable(ctx context.Context, r repository.Repos, id int64) (*model.Invoice, error) {
	inv, err := r.Invoices().GetByID(ctx, id)
	if err != nil {
		return nil, service.MapError(err, "invoice")
	}
	if inv.Status == model.InvoiceStatusCancelled {
		return nil, errors.BadRequest("invoice is cancelled", nil)
	}
	return inv, nil
}

func (s *Service) UpdateInvoice(ctx context.Context, id int64, req *model.UpdateInvoiceRequest) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if inv, err = editable(ctx, r, id); err != nil {
			return err
		}
		req.Apply(inv)
		if err := inv.Validate(); err != nil {
			return err
		}
		return s.recalculate(ctx, r, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) AddItem(ctx context.Context, invoiceID int64, req *model.InvoiceItemRequest) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if inv, err = editable(ctx, r, invoiceID); err != nil {
			return err
		}
		it, err := s.buildItem(ctx, r, inv.PatientID, req)
		if err != nil {
			return err
		}
		it.InvoiceID = inv.ID
		it.Touch(s.now())
		if err := r.Invoices().AddItem(ctx, it); err != nil {
			return service.MapError(err, "invoice item")
		}
		return s.recalculate(ctx, r, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) UpdateItem(ctx context.Context, invoiceID, itemID int64, req *model.UpdateInvoiceItemRequest) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if inv, err = editable(ctx, r, invoiceID); err != nil {
			return err
		}
		it, err := itemOf(ctx, r, inv.ID, itemID)
		if err != nil {
			return err
		}
		if req.Description != nil {
			it.Description = *req.Description
		}
		if req.Quantity != nil {
			it.Quantity = *req.Quantity
		}
		if req.UnitPrice != nil {
			it.UnitPrice = *req.UnitPrice
		}
		if err := it.Validate(); err != nil {
			return err
		}
		it.Recompute()
		it.UpdatedAt = s.now()
		if err := r.Invoices().UpdateItem(ctx, it); err != nil {
			return service.MapError(err, "invoice item")
		}
		return s.recalculate(ctx, r, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) RemoveItem(ctx context.Context, invoiceID, itemID int64) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if inv, err = editable(ctx, r, invoiceID); err != nil {
			return err
		}
		if _, err := itemOf(ctx, r, inv.ID, itemID); err != nil {
			return err
		}
		if err := r.Invoices().DeleteItem(ctx, itemID); err != nil {
			return service.MapError(err, "invoice item")
		}
		return s.recalculate(ctx, r, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func itemOf(ctx context.Context, r repository.Repos, invoiceID, itemID int64) (*model.InvoiceItem, error) {
	it, err := r.Invoices().GetItem(ctx, itemID)
	if err != nil {
		return nil, service.MapError(err, "invoice item")
	}
	if it.InvoiceID != invoiceID {
		return nil, errors.NotFound("invoice item", nil)
	}
	return it, nil
}

// CancelInvoice marks an unpaid invoice cancelled. Payments have to be
// voided first.
func (s *Service) CancelInvoice(ctx context.Context, id int64) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if inv, err = editable(ctx, r, id); err != nil {
			return err
		}
		payments, err := r.Payments().ListByInvoice(ctx, inv.ID, false)
		if err != nil {
			return service.MapError(err, "payment")
		}
		if len(payments) > 0 {
			return errors.Conflict("invoice has payments; void them before cancelling", nil)
		}
		inv.Status = model.InvoiceStatusCancelled
		return s.recalculate(ctx, r, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// DeleteInvoice removes the invoice with its items, payments and receipts.
func (s *Service) DeleteInvoice(ctx context.Context, id int64) error {
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Invoices().GetByID(ctx, id); err != nil {
			return service.MapError(err, "invoice")
		}
		return s.cascade.Invoice(ctx, r, id)
	})
}

// RecordPayment takes a payment against the invoice balance and issues a
// receipt for it.
func (s *Service) RecordPayment(ctx context.Context, invoiceID int64, req *model.CreatePaymentRequest, issuedBy string) (*model.Payment, error) {
	p := &model.Payment{
		InvoiceID:            invoiceID,
		PaymentDate:          s.now(),
		Amount:               model.FromCents(model.ToCents(req.Amount)),
		PaymentMethod:        strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		TransactionReference: req.TransactionReference,
		Notes:                req.Notes,
	}
	if req.PaymentDate != nil {
		p.PaymentDate = *req.PaymentDate
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(issuedBy) == "" {
		issuedBy = defaultIssuer
	}

	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		var err error
		if inv, err = editable(ctx, r, invoiceID); err != nil {
			return err
		}
		if err := s.hydrate(ctx, r, inv); err != nil {
			return err
		}
		if inv.Status == model.InvoiceStatusPaid || model.ToCents(inv.BalanceDue) <= 0 {
			return errors.BadRequest("invoice is already fully paid", nil)
		}
		if model.ToCents(p.Amount) > model.ToCents(inv.BalanceDue) {
			return errors.BadRequest(fmt.Sprintf("payment of %.2f exceeds balance due of %.2f", p.Amount, inv.BalanceDue), nil)
		}

		p.Touch(s.now())
		if err := r.Payments().Create(ctx, p); err != nil {
			return service.MapError(err, "payment")
		}
		number, err := s.ids.Next(ctx, r.Identifiers(), identifier.Receipt)
		if err != nil {
			return err
		}
		rc := &model.Receipt{
			PaymentID:     p.ID,
			ReceiptDate:   s.now(),
			ReceiptNumber: number,
			IssuedBy:      issuedBy,
		}
		rc.Touch(s.now())
		if err := r.Payments().CreateReceipt(ctx, rc); err != nil {
			return service.MapError(err, "receipt")
		}
		p.Receipt = rc

		if err := s.recalculate(ctx, r, inv); err != nil {
			return err
		}
		return s.emitPayment(ctx, r, inv, p)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentRecorded(p.Amount)
	s.logger.WithContext(ctx).Info("payment recorded",
		"invoice_id", inv.ID, "amount", p.Amount, "receipt", p.Receipt.ReceiptNumber, "balance_due", inv.BalanceDue)
	return p, nil
}

func (s *Service) emitPayment(ctx context.Context, r repository.Repos, inv *model.Invoice, p *model.Payment) error {
	if err := service.Emit(ctx, r, model.EventPaymentRecorded, model.PaymentPayload{
		PaymentID:  p.ID,
		InvoiceID:  inv.ID,
		PatientID:  inv.PatientID,
		Amount:     p.Amount,
		BalanceDue: inv.BalanceDue,
		Status:     string(inv.Status),
	}); err != nil {
		return err
	}

	patient, err := r.Patients().GetByID(ctx, inv.PatientID)
	if err != nil {
		return service.MapError(err, "patient")
	}
	payload := model.ReceiptPayload{
		ReceiptNumber: p.Receipt.ReceiptNumber,
		PaymentID:     p.ID,
		InvoiceID:     inv.ID,
		Amount:        p.Amount,
		PatientName:   patient.FullName(),
		IssuedBy:      p.Receipt.IssuedBy,
		ReceiptDate:   p.Receipt.ReceiptDate,
	}
	if patient.Email != nil {
		payload.PatientEmail = *patient.Email
	}
	return service.Emit(ctx, r, model.EventReceiptIssued, payload)
}

// VoidPayment soft-deletes a payment and recomputes the invoice status.
func (s *Service) VoidPayment(ctx context.Context, paymentID int64) (*model.Invoice, error) {
	var inv *model.Invoice
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		p, err := r.Payments().GetByID(ctx, paymentID)
		if err != nil {
			return service.MapError(err, "payment")
		}
		if p.Voided() {
			return errors.NotFound("payment", nil)
		}
		if err := r.Payments().Void(ctx, p.ID, s.now()); err != nil {
			return service.MapError(err, "payment")
		}
		if inv, err = r.Invoices().GetByID(ctx, p.InvoiceID); err != nil {
			return service.MapError(err, "invoice")
		}
		if err := s.recalculate(ctx, r, inv); err != nil {
			return err
		}
		return service.Emit(ctx, r, model.EventPaymentVoided, model.PaymentPayload{
			PaymentID:  p.ID,
			InvoiceID:  inv.ID,
			PatientID:  inv.PatientID,
			Amount:     p.Amount,
			BalanceDue: inv.BalanceDue,
			Status:     string(inv.Status),
		})
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) GetReceipt(ctx context.Context, paymentID int64) (*model.Receipt, error) {
	rc, err := s.store.Payments().GetReceiptByPayment(ctx, paymentID)
	if err != nil {
		return nil, service.MapError(err, "receipt")
	}
	return rc, nil
}

// reportWindow resolves an optional range, defaulting to the last 30 days.
// The window starts on a day boundary.
func (s *Service) reportWindow(from, to *time.Time) (time.Time, time.Time, error) {
	end := s.now()
	if to != nil {
		end = *to
	}
	start := end.Add(-DefaultReportWindow)
	if from != nil {
		start = *from
	}
	// Invoice dates carry no time of day, so the window opens at midnight.
	start = model.Today(start)
	if end.Before(start) {
		return start, end, errors.BadRequest("report start is after its end", nil)
	}
	return start, end, nil
}

// FinancialReport summarises invoices by status between from and to,
// defaulting to the last 30 days.
func (s *Service) FinancialReport(ctx context.Context, from, to *time.Time) (*model.FinancialReport, error) {
	start, end, err := s.reportWindow(from, to)
	if err != nil {
		return nil, err
	}

	byStatus, err := s.store.Reports().InvoiceTotalsByStatus(ctx, start, end)
	if err != nil {
		return nil, service.MapError(err, "report")
	}
	paid, err := s.store.Reports().PaymentsTotal(ctx, start, end)
	if err != nil {
		return nil, service.MapError(err, "report")
	}

	var invoiced int64
	for st, t := range byStatus {
		if st != model.InvoiceStatusCancelled {
			invoiced += model.ToCents(t.Amount)
		}
	}
	return &model.FinancialReport{
		From:          start,
		To:            end,
		ByStatus:      byStatus,
		TotalInvoiced: model.FromCents(invoiced),
		TotalPaid:     paid,
		Outstanding:   model.FromCents(invoiced - model.ToCents(paid)),
	}, nil
}

// PrescriptionReport ranks the drugs prescribed between from and to.
func (s *Service) PrescriptionReport(ctx context.Context, from, to *time.Time, limit int) (*model.PrescriptionReport, error) {
	start, end, err := s.reportWindow(from, to)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultTopDrugs
	}
	if limit > MaxTopDrugs {
		limit = MaxTopDrugs
	}
	top, err := s.store.Reports().TopPrescribedDrugs(ctx, start, end, limit)
	if err != nil {
		return nil, service.MapError(err, "report")
	}
	return &model.PrescriptionReport{From: start, To: end, TopDrugs: top}, nil
}

// Dashboard covers the current month and the five before it. Every month
// is listed, with zeros where nothing happened.
func (s *Service) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	end := s.now()
	start := model.MonthStart(end).AddDate(0, -(DashboardMonths - 1), 0)

	reports := s.store.Reports()
	activity, err := reports.MonthlyActivity(ctx, start)
	if err != nil {
		return nil, service.MapError(err, "report")
	}
	patients, err := reports.ActivePatients(ctx)
	if err != nil {
		return nil, service.MapError(err, "report")
	}
	top, err := reports.TopPrescribedDrugs(ctx, start, end, DefaultTopDrugs)
	if err != nil {
		return nil, service.MapError(err, "report")
	}

	byMonth := make(map[string]model.MonthlyTotals, len(activity))
	for _, m := range activity {
		byMonth[m.Month] = m
	}
	months := make([]model.MonthlyTotals, 0, DashboardMonths)
	for i := 0; i < DashboardMonths; i++ {
		key := model.MonthKey(start.AddDate(0, i, 0))
		m, ok := byMonth[key]
		if !ok {
			m = model.MonthlyTotals{Month: key}
		}
		months = append(months, m)
	}

	return &model.Dashboard{
		From:           start,
		To:             end,
		Months:         months,
		ActivePatients: patients,
		TopDrugs:       top,
	}, nil
}

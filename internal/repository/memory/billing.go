package memory

import (
	"context"
	"sort"
	"time"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

type invoiceRepo struct{ s *Store }

func (r *invoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.patients[inv.PatientID]; !ok {
		return repository.ErrReferenced
	}
	if inv.VisitID != nil {
		if _, ok := st.visits[*inv.VisitID]; !ok {
			return repository.ErrReferenced
		}
	}
	if err := checkInvoice(inv); err != nil {
		return err
	}
	for _, o := range st.invoices {
		if o.PublicID == inv.PublicID {
			return repository.ErrDuplicate
		}
		if inv.VisitID != nil && o.VisitID != nil && *o.VisitID == *inv.VisitID {
			return repository.ErrDuplicate
		}
	}
	inv.ID = st.next("invoices")
	st.invoices[inv.ID] = stripInvoice(*inv)
	return nil
}

func checkInvoice(inv *model.Invoice) error {
	if inv.DueDate != nil && inv.DueDate.Before(model.Today(inv.InvoiceDate)) {
		return repository.ErrConstraint
	}
	if inv.TotalAmount < 0 || inv.DiscountAmount < 0 || inv.TaxAmount < 0 ||
		inv.Sundries < 0 || inv.ProfessionalFee < 0 || inv.Subtotal < 0 {
		return repository.ErrConstraint
	}
	return nil
}

func stripInvoice(inv model.Invoice) model.Invoice {
	inv.Items = nil
	inv.Payments = nil
	inv.AmountPaid = 0
	inv.BalanceDue = 0
	return inv
}

func (r *invoiceRepo) GetByID(ctx context.Context, id int64) (*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.st.invoices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inv, nil
}

func (r *invoiceRepo) GetByVisit(ctx context.Context, visitID int64) (*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.st.invoices {
		if inv.VisitID != nil && *inv.VisitID == visitID {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *invoiceRepo) List(ctx context.Context, filter model.InvoiceFilter) ([]*model.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Invoice
	for _, id := range sortedIDs(r.s.st.invoices) {
		inv := r.s.st.invoices[id]
		if filter.PatientID != 0 && inv.PatientID != filter.PatientID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if !inRange(inv.InvoiceDate, filter.From, filter.To) {
			continue
		}
		out = append(out, &inv)
	}
	return paginate(out, filter.Pagination), nil
}

func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func (r *invoiceRepo) Update(ctx context.Context, inv *model.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.invoices[inv.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := checkInvoice(inv); err != nil {
		return err
	}
	r.s.st.invoices[inv.ID] = stripInvoice(*inv)
	return nil
}

func (r *invoiceRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.invoices[id]; !ok {
		return repository.ErrNotFound
	}
	for _, it := range st.items {
		if it.InvoiceID == id {
			return repository.ErrReferenced
		}
	}
	for _, p := range st.payments {
		if p.InvoiceID == id {
			return repository.ErrReferenced
		}
	}
	delete(st.invoices, id)
	return nil
}

func (r *invoiceRepo) AddItem(ctx context.Context, it *model.InvoiceItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.invoices[it.InvoiceID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.drugs[it.DrugID]; !ok {
		return repository.ErrReferenced
	}
	if it.Quantity <= 0 || it.UnitPrice < 0 {
		return repository.ErrConstraint
	}
	it.ID = st.next("invoice_items")
	st.items[it.ID] = *it
	return nil
}

func (r *invoiceRepo) GetItem(ctx context.Context, id int64) (*model.InvoiceItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.st.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &it, nil
}

func (r *invoiceRepo) ListItems(ctx context.Context, invoiceID int64) ([]model.InvoiceItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.InvoiceItem
	for _, id := range sortedIDs(r.s.st.items) {
		if it := r.s.st.items[id]; it.InvoiceID == invoiceID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r *invoiceRepo) UpdateItem(ctx context.Context, it *model.InvoiceItem) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.items[it.ID]; !ok {
		return repository.ErrNotFound
	}
	if it.Quantity <= 0 || it.UnitPrice < 0 {
		return repository.ErrConstraint
	}
	r.s.st.items[it.ID] = *it
	return nil
}

func (r *invoiceRepo) DeleteItem(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.items, id)
	return nil
}

func (r *invoiceRepo) DeleteItems(ctx context.Context, invoiceID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, it := range r.s.st.items {
		if it.InvoiceID == invoiceID {
			delete(r.s.st.items, id)
		}
	}
	return nil
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(ctx context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.invoices[p.InvoiceID]; !ok {
		return repository.ErrReferenced
	}
	if model.ToCents(p.Amount) <= 0 {
		return repository.ErrConstraint
	}
	p.ID = st.next("payments")
	stored := *p
	stored.Receipt = nil
	st.payments[p.ID] = stored
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *paymentRepo) ListByInvoice(ctx context.Context, invoiceID int64, withVoided bool) ([]model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Payment
	for _, id := range sortedIDs(r.s.st.payments) {
		p := r.s.st.payments[id]
		if p.InvoiceID != invoiceID || (!withVoided && p.Voided()) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *paymentRepo) Void(ctx context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.payments[id]
	if !ok || p.Voided() {
		return repository.ErrNotFound
	}
	p.DeletedAt = &at
	r.s.st.payments[id] = p
	return nil
}

func (r *paymentRepo) DeleteByInvoice(ctx context.Context, invoiceID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	for id, p := range st.payments {
		if p.InvoiceID != invoiceID {
			continue
		}
		for _, rc := range st.receipts {
			if rc.PaymentID == id {
				return repository.ErrReferenced
			}
		}
		delete(st.payments, id)
	}
	return nil
}

func (r *paymentRepo) CreateReceipt(ctx context.Context, rc *model.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.payments[rc.PaymentID]; !ok {
		return repository.ErrReferenced
	}
	for _, o := range st.receipts {
		if o.PaymentID == rc.PaymentID || o.ReceiptNumber == rc.ReceiptNumber {
			return repository.ErrDuplicate
		}
	}
	rc.ID = st.next("receipts")
	st.receipts[rc.ID] = *rc
	return nil
}

func (r *paymentRepo) GetReceiptByPayment(ctx context.Context, paymentID int64) (*model.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rc := range r.s.st.receipts {
		if rc.PaymentID == paymentID {
			return &rc, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *paymentRepo) DeleteReceiptsByInvoice(ctx context.Context, invoiceID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	for id, rc := range st.receipts {
		if p, ok := st.payments[rc.PaymentID]; ok && p.InvoiceID == invoiceID {
			delete(st.receipts, id)
		}
	}
	return nil
}

type reportRepo struct{ s *Store }

func (r *reportRepo) InvoiceTotalsByStatus(ctx context.Context, from, to time.Time) (map[model.InvoiceStatus]model.StatusTotals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cents := map[model.InvoiceStatus]int64{}
	out := map[model.InvoiceStatus]model.StatusTotals{}
	for _, inv := range r.s.st.invoices {
		if !inRange(inv.InvoiceDate, &from, &to) {
			continue
		}
		t := out[inv.Status]
		t.Count++
		cents[inv.Status] += model.ToCents(inv.TotalAmount)
		out[inv.Status] = t
	}
	for st, c := range cents {
		t := out[st]
		t.Amount = model.FromCents(c)
		out[st] = t
	}
	return out, nil
}

func (r *reportRepo) PaymentsTotal(ctx context.Context, from, to time.Time) (float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var cents int64
	for _, p := range r.s.st.payments {
		if p.Voided() || !inRange(p.PaymentDate, &from, &to) {
			continue
		}
		cents += model.ToCents(p.Amount)
	}
	return model.FromCents(cents), nil
}

func (r *reportRepo) MonthlyActivity(ctx context.Context, since time.Time) ([]model.MonthlyTotals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	sinceDay := model.Today(since)
	months := map[string]*model.MonthlyTotals{}
	invoiced := map[string]int64{}
	month := func(t time.Time) *model.MonthlyTotals {
		key := model.MonthKey(t)
		m, ok := months[key]
		if !ok {
			m = &model.MonthlyTotals{Month: key}
			months[key] = m
		}
		return m
	}

	for _, v := range st.visits {
		if !v.VisitDate.Before(since) {
			month(v.VisitDate).Visits++
		}
	}
	for _, p := range st.prescriptions {
		if !model.Today(p.StartDate).Before(sinceDay) {
			month(p.StartDate).Prescriptions++
		}
	}
	for _, inv := range st.invoices {
		if !model.Today(inv.InvoiceDate).Before(sinceDay) {
			month(inv.InvoiceDate)
			invoiced[model.MonthKey(inv.InvoiceDate)] += model.ToCents(inv.TotalAmount)
		}
	}

	out := make([]model.MonthlyTotals, 0, len(months))
	for key, m := range months {
		m.Invoiced = model.FromCents(invoiced[key])
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (r *reportRepo) ActivePatients(ctx context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[int64]struct{}{}
	for _, v := range r.s.st.visits {
		seen[v.PatientID] = struct{}{}
	}
	return len(seen), nil
}

func (r *reportRepo) TopPrescribedDrugs(ctx context.Context, from, to time.Time, limit int) ([]model.DrugUsage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	first, last := model.Today(from), model.Today(to)
	usage := map[int64]*model.DrugUsage{}
	for k, line := range st.rxDrugs {
		p, ok := st.prescriptions[k.prescriptionID]
		if !ok {
			continue
		}
		day := model.Today(p.StartDate)
		if day.Before(first) || day.After(last) {
			continue
		}
		u, ok := usage[k.drugID]
		if !ok {
			u = &model.DrugUsage{DrugID: k.drugID, Name: st.drugs[k.drugID].Name}
			usage[k.drugID] = u
		}
		u.Prescriptions++
		u.Quantity += line.Quantity
	}

	out := make([]model.DrugUsage, 0, len(usage))
	for _, u := range usage {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prescriptions != out[j].Prescriptions {
			return out[i].Prescriptions > out[j].Prescriptions
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

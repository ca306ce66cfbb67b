package postgres

import (
	"context"
	"time"

	"github.com/kmc/ehr-api/internal/model"
)

const invoiceColumns = `id, public_id, visit_id, patient_id, invoice_date, due_date, subtotal,
	professional_fee, sundries, tax_amount, discount_amount, total_amount, status, notes,
	created_at, updated_at`

type invoiceRepository struct {
	BaseRepository
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *model.Invoice) error {
	query := `
		INSERT INTO invoices (
			public_id, visit_id, patient_id, invoice_date, due_date, subtotal,
			professional_fee, sundries, tax_amount, discount_amount, total_amount,
			status, notes, created_at, updated_at
		) VALUES (
			:public_id, :visit_id, :patient_id, :invoice_date, :due_date, :subtotal,
			:professional_fee, :sundries, :tax_amount, :discount_amount, :total_amount,
			:status, :notes, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "invoice.create", &invoice.ID, query, invoice)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id int64) (*model.Invoice, error) {
	var inv model.Invoice
	if err := r.get(ctx, "invoice.get", &inv,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) GetByVisit(ctx context.Context, visitID int64) (*model.Invoice, error) {
	var inv model.Invoice
	if err := r.get(ctx, "invoice.get_by_visit", &inv,
		`SELECT `+invoiceColumns+` FROM invoices WHERE visit_id = $1`, visitID); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter model.InvoiceFilter) ([]*model.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE ($1 = 0 OR patient_id = $1)
			AND ($2 = '' OR status = $2)
			AND ($3::timestamptz IS NULL OR invoice_date >= $3)
			AND ($4::timestamptz IS NULL OR invoice_date <= $4)
		ORDER BY id` + pageClause(4)

	invoices := []*model.Invoice{}
	if err := r.selectAll(ctx, "invoice.list", &invoices, query,
		filter.PatientID, string(filter.Status), filter.From, filter.To,
		filter.Limit(), filter.Offset()); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *invoiceRepository) Update(ctx context.Context, invoice *model.Invoice) error {
	query := `
		UPDATE invoices SET
			due_date = :due_date, subtotal = :subtotal, professional_fee = :professional_fee,
			sundries = :sundries, tax_amount = :tax_amount, discount_amount = :discount_amount,
			total_amount = :total_amount, status = :status, notes = :notes,
			updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "invoice.update", query, invoice)
}

func (r *invoiceRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "invoice.delete", `DELETE FROM invoices WHERE id = $1`, id)
}

const itemColumns = `id, public_id, invoice_id, drug_id, prescription_id, item_type, description,
	quantity, unit_price, total_price, created_at, updated_at`

func (r *invoiceRepository) AddItem(ctx context.Context, item *model.InvoiceItem) error {
	item.Recompute()
	query := `
		INSERT INTO invoice_items (
			public_id, invoice_id, drug_id, prescription_id, item_type, description,
			quantity, unit_price, total_price, created_at, updated_at
		) VALUES (
			:public_id, :invoice_id, :drug_id, :prescription_id, :item_type, :description,
			:quantity, :unit_price, :total_price, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "invoice.add_item", &item.ID, query, item)
}

func (r *invoiceRepository) GetItem(ctx context.Context, id int64) (*model.InvoiceItem, error) {
	var it model.InvoiceItem
	if err := r.get(ctx, "invoice.get_item", &it,
		`SELECT `+itemColumns+` FROM invoice_items WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *invoiceRepository) ListItems(ctx context.Context, invoiceID int64) ([]model.InvoiceItem, error) {
	items := []model.InvoiceItem{}
	if err := r.selectAll(ctx, "invoice.list_items", &items,
		`SELECT `+itemColumns+` FROM invoice_items WHERE invoice_id = $1 ORDER BY id`, invoiceID); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *invoiceRepository) UpdateItem(ctx context.Context, item *model.InvoiceItem) error {
	item.Recompute()
	query := `
		UPDATE invoice_items SET
			description = :description, quantity = :quantity, unit_price = :unit_price,
			total_price = :total_price, updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "invoice.update_item", query, item)
}

func (r *invoiceRepository) DeleteItem(ctx context.Context, id int64) error {
	return r.exec(ctx, "invoice.delete_item", `DELETE FROM invoice_items WHERE id = $1`, id)
}

func (r *invoiceRepository) DeleteItems(ctx context.Context, invoiceID int64) error {
	return r.execAny(ctx, "invoice.delete_items", `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID)
}

const paymentColumns = `id, public_id, invoice_id, payment_date, amount, payment_method,
	transaction_reference, notes, deleted_at, created_at, updated_at`

type paymentRepository struct {
	BaseRepository
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (
			public_id, invoice_id, payment_date, amount, payment_method,
			transaction_reference, notes, created_at, updated_at
		) VALUES (
			:public_id, :invoice_id, :payment_date, :amount, :payment_method,
			:transaction_reference, :notes, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "payment.create", &payment.ID, query, payment)
}

func (r *paymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var p model.Payment
	if err := r.get(ctx, "payment.get", &p,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) ListByInvoice(ctx context.Context, invoiceID int64, withVoided bool) ([]model.Payment, error) {
	payments := []model.Payment{}
	if err := r.selectAll(ctx, "payment.list_by_invoice", &payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE invoice_id = $1 AND ($2 OR deleted_at IS NULL)
		ORDER BY id`, invoiceID, withVoided); err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) Void(ctx context.Context, id int64, at time.Time) error {
	return r.exec(ctx, "payment.void",
		`UPDATE payments SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`, at, id)
}

func (r *paymentRepository) DeleteByInvoice(ctx context.Context, invoiceID int64) error {
	return r.execAny(ctx, "payment.delete_by_invoice", `DELETE FROM payments WHERE invoice_id = $1`, invoiceID)
}

const receiptColumns = `id, public_id, payment_id, receipt_date, receipt_number, issued_by, notes,
	created_at, updated_at`

func (r *paymentRepository) CreateReceipt(ctx context.Context, receipt *model.Receipt) error {
	query := `
		INSERT INTO receipts (
			public_id, payment_id, receipt_date, receipt_number, issued_by, notes,
			created_at, updated_at
		) VALUES (
			:public_id, :payment_id, :receipt_date, :receipt_number, :issued_by, :notes,
			:created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "receipt.create", &receipt.ID, query, receipt)
}

func (r *paymentRepository) GetReceiptByPayment(ctx context.Context, paymentID int64) (*model.Receipt, error) {
	var rc model.Receipt
	if err := r.get(ctx, "receipt.get_by_payment", &rc,
		`SELECT `+receiptColumns+` FROM receipts WHERE payment_id = $1`, paymentID); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *paymentRepository) DeleteReceiptsByInvoice(ctx context.Context, invoiceID int64) error {
	return r.execAny(ctx, "receipt.delete_by_invoice", `
		DELETE FROM receipts
		WHERE payment_id IN (SELECT id FROM payments WHERE invoice_id = $1)`, invoiceID)
}

type reportRepository struct {
	BaseRepository
}

type statusRow struct {
	Status model.InvoiceStatus `db:"status"`
	model.StatusTotals
}

func (r *reportRepository) InvoiceTotalsByStatus(ctx context.Context, from, to time.Time) (map[model.InvoiceStatus]model.StatusTotals, error) {
	var rows []statusRow
	if err := r.selectAll(ctx, "report.invoice_totals", &rows, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount
		FROM invoices
		WHERE invoice_date BETWEEN $1 AND $2
		GROUP BY status`, from, to); err != nil {
		return nil, err
	}
	out := make(map[model.InvoiceStatus]model.StatusTotals, len(rows))
	for _, row := range rows {
		out[row.Status] = row.StatusTotals
	}
	return out, nil
}

func (r *reportRepository) PaymentsTotal(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64
	if err := r.get(ctx, "report.payments_total", &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE deleted_at IS NULL AND payment_date BETWEEN $1 AND $2`, from, to); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *reportRepository) MonthlyActivity(ctx context.Context, since time.Time) ([]model.MonthlyTotals, error) {
	rows := []model.MonthlyTotals{}
	if err := r.selectAll(ctx, "report.monthly_activity", &rows, `
		WITH v AS (
			SELECT date_trunc('month', visit_date AT TIME ZONE 'UTC') AS month, COUNT(*) AS n
			FROM visits WHERE visit_date >= $1 GROUP BY 1
		), p AS (
			SELECT date_trunc('month', start_date::timestamp) AS month, COUNT(*) AS n
			FROM prescriptions WHERE start_date >= $1::date GROUP BY 1
		), i AS (
			SELECT date_trunc('month', invoice_date::timestamp) AS month, SUM(total_amount) AS total
			FROM invoices WHERE invoice_date >= $1::date GROUP BY 1
		), months AS (
			SELECT month FROM v UNION SELECT month FROM p UNION SELECT month FROM i
		)
		SELECT to_char(months.month, 'YYYY-MM') AS month,
			COALESCE(v.n, 0) AS visits,
			COALESCE(p.n, 0) AS prescriptions,
			COALESCE(i.total, 0) AS invoiced
		FROM months
		LEFT JOIN v USING (month)
		LEFT JOIN p USING (month)
		LEFT JOIN i USING (month)
		ORDER BY months.month`, since); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reportRepository) ActivePatients(ctx context.Context) (int, error) {
	var n int
	if err := r.get(ctx, "report.active_patients", &n,
		`SELECT COUNT(DISTINCT patient_id) FROM visits`); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *reportRepository) TopPrescribedDrugs(ctx context.Context, from, to time.Time, limit int) ([]model.DrugUsage, error) {
	rows := []model.DrugUsage{}
	if err := r.selectAll(ctx, "report.top_drugs", &rows, `
		SELECT d.id AS drug_id, d.name, COUNT(*) AS prescriptions, COALESCE(SUM(pd.quantity), 0) AS quantity
		FROM prescription_drugs pd
		JOIN prescriptions p ON p.id = pd.prescription_id
		JOIN drugs d ON d.id = pd.drug_id
		WHERE p.start_date BETWEEN $1::date AND $2::date
		GROUP BY d.id, d.name
		ORDER BY prescriptions DESC, d.name ASC
		LIMIT $3`, from, to, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

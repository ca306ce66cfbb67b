package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

const drugColumns = `id, public_id, name, vendor, dosage_form, strength, unit_price, stock,
	expiry_date, is_active, created_at, updated_at`

type drugRepository struct {
	BaseRepository
}

func (r *drugRepository) Create(ctx context.Context, drug *model.Drug) error {
	query := `
		INSERT INTO drugs (
			public_id, name, vendor, dosage_form, strength, unit_price, stock,
			expiry_date, is_active, created_at, updated_at
		) VALUES (
			:public_id, :name, :vendor, :dosage_form, :strength, :unit_price, :stock,
			:expiry_date, :is_active, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "drug.create", &drug.ID, query, drug)
}

func (r *drugRepository) GetByID(ctx context.Context, id int64) (*model.Drug, error) {
	var d model.Drug
	if err := r.get(ctx, "drug.get", &d, `SELECT `+drugColumns+` FROM drugs WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *drugRepository) List(ctx context.Context, filter model.DrugFilter) ([]*model.Drug, error) {
	query := `
		SELECT ` + drugColumns + `
		FROM drugs
		WHERE (NOT $1 OR is_active) AND ($2 = '' OR name ILIKE '%' || $2 || '%')
		ORDER BY id` + pageClause(2)

	drugs := []*model.Drug{}
	if err := r.selectAll(ctx, "drug.list", &drugs, query,
		filter.ActiveOnly, filter.Search, filter.Limit(), filter.Offset()); err != nil {
		return nil, err
	}
	return drugs, nil
}

func (r *drugRepository) ListLowStock(ctx context.Context, threshold int) ([]*model.Drug, error) {
	drugs := []*model.Drug{}
	if err := r.selectAll(ctx, "drug.list_low_stock", &drugs,
		`SELECT `+drugColumns+` FROM drugs WHERE is_active AND stock <= $1 ORDER BY id`, threshold); err != nil {
		return nil, err
	}
	return drugs, nil
}

// Update writes the catalogue fields. Stock is only moved by the
// conditional increment and decrement statements.
func (r *drugRepository) Update(ctx context.Context, drug *model.Drug) error {
	query := `
		UPDATE drugs SET
			name = :name, vendor = :vendor, dosage_form = :dosage_form, strength = :strength,
			unit_price = :unit_price, expiry_date = :expiry_date, is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "drug.update", query, drug)
}

func (r *drugRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "drug.delete", `DELETE FROM drugs WHERE id = $1`, id)
}

func (r *drugRepository) IsReferenced(ctx context.Context, id int64) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM prescription_drugs WHERE drug_id = $1)
			OR EXISTS (SELECT 1 FROM invoice_items WHERE drug_id = $1)`
	var referenced bool
	if err := r.get(ctx, "drug.is_referenced", &referenced, query, id); err != nil {
		return false, err
	}
	return referenced, nil
}

// DecrementStock relies on the row lock taken by the UPDATE: concurrent
// prescriptions for the same drug queue behind it until commit.
func (r *drugRepository) DecrementStock(ctx context.Context, id int64, quantity int) (int, error) {
	var remaining int
	err := r.get(ctx, "drug.decrement_stock", &remaining, `
		UPDATE drugs SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, id, quantity)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return 0, err
	}

	// No row updated: either the drug is gone or there is not enough stock.
	var onHand int
	if err := r.get(ctx, "drug.stock", &onHand, `SELECT stock FROM drugs WHERE id = $1`, id); err != nil {
		return 0, err
	}
	return onHand, fmt.Errorf("drug %d has %d units: %w", id, onHand, repository.ErrInsufficientStock)
}

func (r *drugRepository) IncrementStock(ctx context.Context, id int64, quantity int) (int, error) {
	var stock int
	if err := r.get(ctx, "drug.increment_stock", &stock, `
		UPDATE drugs SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock`, id, quantity); err != nil {
		return 0, err
	}
	return stock, nil
}

const prescriptionColumns = `id, public_id, visit_id, patient_id, doctor_id, dosage, frequency,
	quantity, duration_days, start_date, end_date, instructions, status, created_at, updated_at`

type prescriptionRepository struct {
	BaseRepository
}

func (r *prescriptionRepository) Create(ctx context.Context, rx *model.Prescription) error {
	query := `
		INSERT INTO prescriptions (
			public_id, visit_id, patient_id, doctor_id, dosage, frequency, quantity,
			duration_days, start_date, end_date, instructions, status, created_at, updated_at
		) VALUES (
			:public_id, :visit_id, :patient_id, :doctor_id, :dosage, :frequency, :quantity,
			:duration_days, :start_date, :end_date, :instructions, :status, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "prescription.create", &rx.ID, query, rx)
}

func (r *prescriptionRepository) AddDrug(ctx context.Context, line *model.PrescriptionDrug) error {
	start := time.Now()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO prescription_drugs (prescription_id, drug_id, dosage, frequency, quantity)
		VALUES ($1, $2, $3, $4, $5)`,
		line.PrescriptionID, line.DrugID, line.Dosage, line.Frequency, line.Quantity)
	return r.done("prescription.add_drug", start, err)
}

func (r *prescriptionRepository) ListDrugs(ctx context.Context, prescriptionID int64) ([]model.PrescriptionDrug, error) {
	lines := []model.PrescriptionDrug{}
	if err := r.selectAll(ctx, "prescription.list_drugs", &lines, `
		SELECT prescription_id, drug_id, dosage, frequency, quantity
		FROM prescription_drugs
		WHERE prescription_id = $1
		ORDER BY drug_id`, prescriptionID); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *prescriptionRepository) GetByID(ctx context.Context, id int64) (*model.Prescription, error) {
	return r.getOne(ctx, "prescription.get",
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE id = $1`, id)
}

func (r *prescriptionRepository) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*model.Prescription, error) {
	return r.getOne(ctx, "prescription.get_by_public_id",
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE public_id = $1`, publicID)
}

func (r *prescriptionRepository) GetByVisit(ctx context.Context, visitID int64) (*model.Prescription, error) {
	return r.getOne(ctx, "prescription.get_by_visit",
		`SELECT `+prescriptionColumns+` FROM prescriptions WHERE visit_id = $1`, visitID)
}

// getOne loads a single prescription together with its drug lines.
func (r *prescriptionRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*model.Prescription, error) {
	var p model.Prescription
	if err := r.get(ctx, op, &p, query, arg); err != nil {
		return nil, err
	}
	lines, err := r.ListDrugs(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Drugs = lines
	return &p, nil
}

func (r *prescriptionRepository) List(ctx context.Context, filter model.PrescriptionFilter) ([]*model.Prescription, error) {
	query := `
		SELECT ` + prescriptionColumns + `
		FROM prescriptions
		WHERE ($1 = 0 OR patient_id = $1)
			AND ($2 = 0 OR visit_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY id` + pageClause(3)

	prescriptions := []*model.Prescription{}
	if err := r.selectAll(ctx, "prescription.list", &prescriptions, query,
		filter.PatientID, filter.VisitID, string(filter.Status), filter.Limit(), filter.Offset()); err != nil {
		return nil, err
	}
	if err := r.attachDrugs(ctx, prescriptions); err != nil {
		return nil, err
	}
	return prescriptions, nil
}

// attachDrugs fills the drug lines of a page of prescriptions with one query.
func (r *prescriptionRepository) attachDrugs(ctx context.Context, prescriptions []*model.Prescription) error {
	if len(prescriptions) == 0 {
		return nil
	}
	ids := make([]int64, len(prescriptions))
	byID := make(map[int64]*model.Prescription, len(prescriptions))
	for i, p := range prescriptions {
		ids[i] = p.ID
		p.Drugs = []model.PrescriptionDrug{}
		byID[p.ID] = p
	}

	lines := []model.PrescriptionDrug{}
	if err := r.selectAll(ctx, "prescription.list_drugs_batch", &lines, `
		SELECT prescription_id, drug_id, dosage, frequency, quantity
		FROM prescription_drugs
		WHERE prescription_id = ANY($1)
		ORDER BY prescription_id, drug_id`, pq.Array(ids)); err != nil {
		return err
	}
	for _, l := range lines {
		if p, ok := byID[l.PrescriptionID]; ok {
			p.Drugs = append(p.Drugs, l)
		}
	}
	return nil
}

func (r *prescriptionRepository) UpdateStatus(ctx context.Context, id int64, status model.PrescriptionStatus) error {
	return r.exec(ctx, "prescription.update_status",
		`UPDATE prescriptions SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
}

func (r *prescriptionRepository) DeleteDrugs(ctx context.Context, prescriptionID int64) error {
	return r.execAny(ctx, "prescription.delete_drugs",
		`DELETE FROM prescription_drugs WHERE prescription_id = $1`, prescriptionID)
}

func (r *prescriptionRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "prescription.delete", `DELETE FROM prescriptions WHERE id = $1`, id)
}

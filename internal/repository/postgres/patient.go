package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
)

const patientColumns = `id, public_id, patient_id, first_name, last_name, age, gender, phone,
	email, address, blood_type, allergies, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			public_id, patient_id, first_name, last_name, age, gender, phone,
			email, address, blood_type, allergies, created_at, updated_at
		) VALUES (
			:public_id, :patient_id, :first_name, :last_name, :age, :gender, :phone,
			:email, :address, :blood_type, :allergies, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "patient.create", &patient.ID, query, patient)
}

func (r *patientRepository) GetByID(ctx context.Context, id int64) (*model.Patient, error) {
	var p model.Patient
	if err := r.get(ctx, "patient.get", &p, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepository) GetByPatientID(ctx context.Context, patientID string) (*model.Patient, error) {
	var p model.Patient
	if err := r.get(ctx, "patient.get_by_patient_id", &p,
		`SELECT `+patientColumns+` FROM patients WHERE patient_id = $1`, patientID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepository) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*model.Patient, error) {
	var p model.Patient
	if err := r.get(ctx, "patient.get_by_public_id", &p,
		`SELECT `+patientColumns+` FROM patients WHERE public_id = $1`, publicID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepository) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE $1 = '' OR (first_name || ' ' || last_name || ' ' || patient_id || ' ' || phone) ILIKE '%' || $1 || '%'
		ORDER BY id` + pageClause(1)

	patients := []*model.Patient{}
	if err := r.selectAll(ctx, "patient.list", &patients, query,
		filter.Search, filter.Limit(), filter.Offset()); err != nil {
		return nil, err
	}
	return patients, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `
		UPDATE patients SET
			first_name = :first_name, last_name = :last_name, age = :age, gender = :gender,
			phone = :phone, email = :email, address = :address, blood_type = :blood_type,
			allergies = :allergies, updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "patient.update", query, patient)
}

func (r *patientRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "patient.delete", `DELETE FROM patients WHERE id = $1`, id)
}

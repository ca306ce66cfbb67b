package postgres

import (
	"context"

	"github.com/kmc/ehr-api/internal/model"
)

const doctorColumns = `id, public_id, doctor_id, first_name, last_name, license_number,
	specialty, email, phone, is_active, created_at, updated_at`

type doctorRepository struct {
	BaseRepository
}

func (r *doctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	query := `
		INSERT INTO doctors (
			public_id, doctor_id, first_name, last_name, license_number,
			specialty, email, phone, is_active, created_at, updated_at
		) VALUES (
			:public_id, :doctor_id, :first_name, :last_name, :license_number,
			:specialty, :email, :phone, :is_active, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "doctor.create", &doctor.ID, query, doctor)
}

func (r *doctorRepository) GetByID(ctx context.Context, id int64) (*model.Doctor, error) {
	var d model.Doctor
	if err := r.get(ctx, "doctor.get", &d, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepository) GetByDoctorID(ctx context.Context, doctorID string) (*model.Doctor, error) {
	var d model.Doctor
	if err := r.get(ctx, "doctor.get_by_doctor_id", &d,
		`SELECT `+doctorColumns+` FROM doctors WHERE doctor_id = $1`, doctorID); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepository) List(ctx context.Context, filter model.DoctorFilter) ([]*model.Doctor, error) {
	query := `
		SELECT ` + doctorColumns + `
		FROM doctors
		WHERE (NOT $1 OR is_active) AND ($2 = '' OR specialty = $2)
		ORDER BY id` + pageClause(2)

	doctors := []*model.Doctor{}
	if err := r.selectAll(ctx, "doctor.list", &doctors, query,
		filter.ActiveOnly, filter.Specialty, filter.Limit(), filter.Offset()); err != nil {
		return nil, err
	}
	return doctors, nil
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.Doctor) error {
	query := `
		UPDATE doctors SET
			first_name = :first_name, last_name = :last_name, license_number = :license_number,
			specialty = :specialty, email = :email, phone = :phone, is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "doctor.update", query, doctor)
}

func (r *doctorRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "doctor.delete", `DELETE FROM doctors WHERE id = $1`, id)
}

const visitColumns = `id, public_id, visit_id, patient_id, doctor_id, visit_date, visit_type,
	status, created_at, updated_at`

type visitRepository struct {
	BaseRepository
}

func (r *visitRepository) Create(ctx context.Context, visit *model.Visit) error {
	query := `
		INSERT INTO visits (
			public_id, visit_id, patient_id, doctor_id, visit_date, visit_type,
			status, created_at, updated_at
		) VALUES (
			:public_id, :visit_id, :patient_id, :doctor_id, :visit_date, :visit_type,
			:status, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "visit.create", &visit.ID, query, visit)
}

func (r *visitRepository) GetByID(ctx context.Context, id int64) (*model.Visit, error) {
	var v model.Visit
	if err := r.get(ctx, "visit.get", &v, `SELECT `+visitColumns+` FROM visits WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepository) GetByVisitID(ctx context.Context, visitID string) (*model.Visit, error) {
	var v model.Visit
	if err := r.get(ctx, "visit.get_by_visit_id", &v,
		`SELECT `+visitColumns+` FROM visits WHERE visit_id = $1`, visitID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *visitRepository) List(ctx context.Context, filter model.VisitFilter) ([]*model.Visit, error) {
	query := `
		SELECT ` + visitColumns + `
		FROM visits
		WHERE ($1 = 0 OR patient_id = $1)
			AND ($2 = 0 OR doctor_id = $2)
			AND ($3 = '' OR status = $3)
		ORDER BY id` + pageClause(3)

	visits := []*model.Visit{}
	if err := r.selectAll(ctx, "visit.list", &visits, query,
		filter.PatientID, filter.DoctorID, string(filter.Status), filter.Limit(), filter.Offset()); err != nil {
		return nil, err
	}
	return visits, nil
}

func (r *visitRepository) UpdateStatus(ctx context.Context, id int64, status model.VisitStatus) error {
	return r.exec(ctx, "visit.update_status",
		`UPDATE visits SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
}

func (r *visitRepository) CountByDoctor(ctx context.Context, doctorID int64) (int, error) {
	var n int
	if err := r.get(ctx, "visit.count_by_doctor", &n,
		`SELECT COUNT(*) FROM visits WHERE doctor_id = $1`, doctorID); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *visitRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "visit.delete", `DELETE FROM visits WHERE id = $1`, id)
}

const triageColumns = `id, visit_id, height, weight, temperature, blood_pressure_systolic,
	blood_pressure_diastolic, pulse, oxygen_saturation, notes, created_at, updated_at`

type triageRepository struct {
	BaseRepository
}

func (r *triageRepository) Create(ctx context.Context, triage *model.Triage) error {
	query := `
		INSERT INTO triage (
			visit_id, height, weight, temperature, blood_pressure_systolic,
			blood_pressure_diastolic, pulse, oxygen_saturation, notes, created_at, updated_at
		) VALUES (
			:visit_id, :height, :weight, :temperature, :blood_pressure_systolic,
			:blood_pressure_diastolic, :pulse, :oxygen_saturation, :notes, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "triage.create", &triage.ID, query, triage)
}

func (r *triageRepository) GetByVisit(ctx context.Context, visitID int64) (*model.Triage, error) {
	var t model.Triage
	if err := r.get(ctx, "triage.get_by_visit", &t,
		`SELECT `+triageColumns+` FROM triage WHERE visit_id = $1`, visitID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *triageRepository) Update(ctx context.Context, triage *model.Triage) error {
	query := `
		UPDATE triage SET
			height = :height, weight = :weight, temperature = :temperature,
			blood_pressure_systolic = :blood_pressure_systolic,
			blood_pressure_diastolic = :blood_pressure_diastolic,
			pulse = :pulse, oxygen_saturation = :oxygen_saturation, notes = :notes,
			updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "triage.update", query, triage)
}

func (r *triageRepository) DeleteByVisit(ctx context.Context, visitID int64) error {
	return r.execAny(ctx, "triage.delete_by_visit", `DELETE FROM triage WHERE visit_id = $1`, visitID)
}

const diagnosisColumns = `id, public_id, visit_id, patient_id, doctor_id, icd10_code, condition,
	description, is_primary, created_at, updated_at`

type diagnosisRepository struct {
	BaseRepository
}

func (r *diagnosisRepository) Create(ctx context.Context, diagnosis *model.Diagnosis) error {
	query := `
		INSERT INTO diagnoses (
			public_id, visit_id, patient_id, doctor_id, icd10_code, condition,
			description, is_primary, created_at, updated_at
		) VALUES (
			:public_id, :visit_id, :patient_id, :doctor_id, :icd10_code, :condition,
			:description, :is_primary, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "diagnosis.create", &diagnosis.ID, query, diagnosis)
}

func (r *diagnosisRepository) GetByID(ctx context.Context, id int64) (*model.Diagnosis, error) {
	var d model.Diagnosis
	if err := r.get(ctx, "diagnosis.get", &d,
		`SELECT `+diagnosisColumns+` FROM diagnoses WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *diagnosisRepository) ListByVisit(ctx context.Context, visitID int64) ([]*model.Diagnosis, error) {
	diagnoses := []*model.Diagnosis{}
	if err := r.selectAll(ctx, "diagnosis.list_by_visit", &diagnoses,
		`SELECT `+diagnosisColumns+` FROM diagnoses WHERE visit_id = $1 ORDER BY id`, visitID); err != nil {
		return nil, err
	}
	return diagnoses, nil
}

func (r *diagnosisRepository) ListByPatient(ctx context.Context, patientID int64) ([]*model.Diagnosis, error) {
	diagnoses := []*model.Diagnosis{}
	if err := r.selectAll(ctx, "diagnosis.list_by_patient", &diagnoses,
		`SELECT `+diagnosisColumns+` FROM diagnoses WHERE patient_id = $1 ORDER BY id`, patientID); err != nil {
		return nil, err
	}
	return diagnoses, nil
}

func (r *diagnosisRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, "diagnosis.delete", `DELETE FROM diagnoses WHERE id = $1`, id)
}

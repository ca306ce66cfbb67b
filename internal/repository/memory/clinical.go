package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

type patientRepo struct{ s *Store }

func (r *patientRepo) Create(ctx context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	for _, o := range st.patients {
		if o.PatientID == p.PatientID || o.PublicID == p.PublicID {
			return repository.ErrDuplicate
		}
	}
	p.ID = st.next("patients")
	st.patients[p.ID] = *p
	return nil
}

func (r *patientRepo) GetByID(ctx context.Context, id int64) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *patientRepo) GetByPatientID(ctx context.Context, patientID string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.patients {
		if p.PatientID == patientID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *patientRepo) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.patients {
		if p.PublicID == publicID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *patientRepo) List(ctx context.Context, filter model.PatientFilter) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	search := strings.ToLower(filter.Search)
	var out []*model.Patient
	for _, id := range sortedIDs(r.s.st.patients) {
		p := r.s.st.patients[id]
		if search != "" && !strings.Contains(strings.ToLower(p.FullName()+" "+p.PatientID+" "+p.Phone), search) {
			continue
		}
		out = append(out, &p)
	}
	return paginate(out, filter.Pagination), nil
}

func (r *patientRepo) Update(ctx context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.patients[p.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.st.patients[p.ID] = *p
	return nil
}

func (r *patientRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.patients[id]; !ok {
		return repository.ErrNotFound
	}
	for _, v := range st.visits {
		if v.PatientID == id {
			return repository.ErrReferenced
		}
	}
	for _, p := range st.prescriptions {
		if p.PatientID == id {
			return repository.ErrReferenced
		}
	}
	for _, inv := range st.invoices {
		if inv.PatientID == id {
			return repository.ErrReferenced
		}
	}
	for _, d := range st.diagnoses {
		if d.PatientID == id {
			return repository.ErrReferenced
		}
	}
	delete(st.patients, id)
	return nil
}

type doctorRepo struct{ s *Store }

func (r *doctorRepo) checkUnique(d *model.Doctor) error {
	for _, o := range r.s.st.doctors {
		if o.ID == d.ID {
			continue
		}
		if o.DoctorID == d.DoctorID || o.LicenseNumber == d.LicenseNumber || o.PublicID == d.PublicID {
			return repository.ErrDuplicate
		}
		if o.Email != nil && d.Email != nil && *o.Email == *d.Email {
			return repository.ErrDuplicate
		}
	}
	return nil
}

func (r *doctorRepo) Create(ctx context.Context, d *model.Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.checkUnique(d); err != nil {
		return err
	}
	d.ID = r.s.st.next("doctors")
	r.s.st.doctors[d.ID] = *d
	return nil
}

func (r *doctorRepo) GetByID(ctx context.Context, id int64) (*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.doctors[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *doctorRepo) GetByDoctorID(ctx context.Context, doctorID string) (*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.st.doctors {
		if d.DoctorID == doctorID {
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *doctorRepo) List(ctx context.Context, filter model.DoctorFilter) ([]*model.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Doctor
	for _, id := range sortedIDs(r.s.st.doctors) {
		d := r.s.st.doctors[id]
		if filter.ActiveOnly && !d.IsActive {
			continue
		}
		if filter.Specialty != "" && d.Specialty != filter.Specialty {
			continue
		}
		out = append(out, &d)
	}
	return paginate(out, filter.Pagination), nil
}

func (r *doctorRepo) Update(ctx context.Context, d *model.Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.doctors[d.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.checkUnique(d); err != nil {
		return err
	}
	r.s.st.doctors[d.ID] = *d
	return nil
}

func (r *doctorRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.doctors[id]; !ok {
		return repository.ErrNotFound
	}
	for _, v := range st.visits {
		if v.DoctorID == id {
			return repository.ErrReferenced
		}
	}
	for _, p := range st.prescriptions {
		if p.DoctorID == id {
			return repository.ErrReferenced
		}
	}
	for _, d := range st.diagnoses {
		if d.DoctorID == id {
			return repository.ErrReferenced
		}
	}
	delete(st.doctors, id)
	return nil
}

type visitRepo struct{ s *Store }

func (r *visitRepo) Create(ctx context.Context, v *model.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.patients[v.PatientID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.doctors[v.DoctorID]; !ok {
		return repository.ErrReferenced
	}
	for _, o := range st.visits {
		if o.VisitID == v.VisitID || o.PublicID == v.PublicID {
			return repository.ErrDuplicate
		}
	}
	v.ID = st.next("visits")
	st.visits[v.ID] = *v
	return nil
}

func (r *visitRepo) GetByID(ctx context.Context, id int64) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.st.visits[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *visitRepo) GetByVisitID(ctx context.Context, visitID string) (*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, v := range r.s.st.visits {
		if v.VisitID == visitID {
			return &v, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *visitRepo) List(ctx context.Context, filter model.VisitFilter) ([]*model.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Visit
	for _, id := range sortedIDs(r.s.st.visits) {
		v := r.s.st.visits[id]
		if filter.PatientID != 0 && v.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != 0 && v.DoctorID != filter.DoctorID {
			continue
		}
		if filter.Status != "" && v.Status != filter.Status {
			continue
		}
		out = append(out, &v)
	}
	return paginate(out, filter.Pagination), nil
}

func (r *visitRepo) UpdateStatus(ctx context.Context, id int64, status model.VisitStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.st.visits[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = status
	r.s.st.visits[id] = v
	return nil
}

func (r *visitRepo) CountByDoctor(ctx context.Context, doctorID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, v := range r.s.st.visits {
		if v.DoctorID == doctorID {
			n++
		}
	}
	return n, nil
}

func (r *visitRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.visits[id]; !ok {
		return repository.ErrNotFound
	}
	for _, t := range st.triage {
		if t.VisitID == id {
			return repository.ErrReferenced
		}
	}
	for _, vr := range st.visitReports {
		if vr.VisitID == id {
			return repository.ErrReferenced
		}
	}
	for _, d := range st.diagnoses {
		if d.VisitID != nil && *d.VisitID == id {
			return repository.ErrReferenced
		}
	}
	for _, p := range st.prescriptions {
		if p.VisitID != nil && *p.VisitID == id {
			return repository.ErrReferenced
		}
	}
	for _, inv := range st.invoices {
		if inv.VisitID != nil && *inv.VisitID == id {
			return repository.ErrReferenced
		}
	}
	delete(st.visits, id)
	return nil
}

type triageRepo struct{ s *Store }

func (r *triageRepo) Create(ctx context.Context, t *model.Triage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.visits[t.VisitID]; !ok {
		return repository.ErrReferenced
	}
	for _, o := range st.triage {
		if o.VisitID == t.VisitID {
			return repository.ErrDuplicate
		}
	}
	if err := t.Validate(); err != nil {
		return repository.ErrConstraint
	}
	t.ID = st.next("triage")
	st.triage[t.ID] = *t
	return nil
}

func (r *triageRepo) GetByVisit(ctx context.Context, visitID int64) (*model.Triage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.st.triage {
		if t.VisitID == visitID {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *triageRepo) Update(ctx context.Context, t *model.Triage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.triage[t.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := t.Validate(); err != nil {
		return repository.ErrConstraint
	}
	r.s.st.triage[t.ID] = *t
	return nil
}

func (r *triageRepo) DeleteByVisit(ctx context.Context, visitID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, t := range r.s.st.triage {
		if t.VisitID == visitID {
			delete(r.s.st.triage, id)
		}
	}
	return nil
}

type diagnosisRepo struct{ s *Store }

func (r *diagnosisRepo) Create(ctx context.Context, d *model.Diagnosis) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.patients[d.PatientID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.doctors[d.DoctorID]; !ok {
		return repository.ErrReferenced
	}
	if d.VisitID != nil {
		if _, ok := st.visits[*d.VisitID]; !ok {
			return repository.ErrReferenced
		}
	}
	for _, o := range st.diagnoses {
		if o.PublicID == d.PublicID {
			return repository.ErrDuplicate
		}
		if d.IsPrimary && o.IsPrimary && o.VisitID != nil && d.VisitID != nil && *o.VisitID == *d.VisitID {
			return repository.ErrDuplicate
		}
	}
	d.ID = st.next("diagnoses")
	st.diagnoses[d.ID] = *d
	return nil
}

func (r *diagnosisRepo) GetByID(ctx context.Context, id int64) (*model.Diagnosis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.diagnoses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *diagnosisRepo) ListByVisit(ctx context.Context, visitID int64) ([]*model.Diagnosis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Diagnosis
	for _, id := range sortedIDs(r.s.st.diagnoses) {
		d := r.s.st.diagnoses[id]
		if d.VisitID != nil && *d.VisitID == visitID {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *diagnosisRepo) ListByPatient(ctx context.Context, patientID int64) ([]*model.Diagnosis, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Diagnosis
	for _, id := range sortedIDs(r.s.st.diagnoses) {
		d := r.s.st.diagnoses[id]
		if d.PatientID == patientID {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *diagnosisRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.diagnoses[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.diagnoses, id)
	return nil
}

package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

type drugRepo struct{ s *Store }

func (r *drugRepo) checkUnique(d *model.Drug) error {
	for _, o := range r.s.st.drugs {
		if o.ID != d.ID && (strings.EqualFold(o.Name, d.Name) || o.PublicID == d.PublicID) {
			return repository.ErrDuplicate
		}
	}
	return nil
}

func (r *drugRepo) Create(ctx context.Context, d *model.Drug) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.Stock < 0 || d.UnitPrice < 0 {
		return repository.ErrConstraint
	}
	if err := r.checkUnique(d); err != nil {
		return err
	}
	d.ID = r.s.st.next("drugs")
	r.s.st.drugs[d.ID] = *d
	return nil
}

func (r *drugRepo) GetByID(ctx context.Context, id int64) (*model.Drug, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.drugs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *drugRepo) List(ctx context.Context, filter model.DrugFilter) ([]*model.Drug, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	search := strings.ToLower(filter.Search)
	var out []*model.Drug
	for _, id := range sortedIDs(r.s.st.drugs) {
		d := r.s.st.drugs[id]
		if filter.ActiveOnly && !d.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(d.Name), search) {
			continue
		}
		out = append(out, &d)
	}
	return paginate(out, filter.Pagination), nil
}

func (r *drugRepo) ListLowStock(ctx context.Context, threshold int) ([]*model.Drug, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Drug
	for _, id := range sortedIDs(r.s.st.drugs) {
		d := r.s.st.drugs[id]
		if d.IsActive && d.Stock <= threshold {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *drugRepo) Update(ctx context.Context, d *model.Drug) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.st.drugs[d.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if d.UnitPrice < 0 {
		return repository.ErrConstraint
	}
	if err := r.checkUnique(d); err != nil {
		return err
	}
	// stock is owned by the ledger operations
	d.Stock = cur.Stock
	r.s.st.drugs[d.ID] = *d
	return nil
}

func (r *drugRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.drugs[id]; !ok {
		return repository.ErrNotFound
	}
	if r.referenced(id) {
		return repository.ErrReferenced
	}
	delete(r.s.st.drugs, id)
	return nil
}

func (r *drugRepo) referenced(id int64) bool {
	for k := range r.s.st.rxDrugs {
		if k.drugID == id {
			return true
		}
	}
	for _, it := range r.s.st.items {
		if it.DrugID == id {
			return true
		}
	}
	return false
}

func (r *drugRepo) IsReferenced(ctx context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.referenced(id), nil
}

func (r *drugRepo) DecrementStock(ctx context.Context, id int64, quantity int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.drugs[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if d.Stock < quantity {
		return d.Stock, repository.ErrInsufficientStock
	}
	d.Stock -= quantity
	r.s.st.drugs[id] = d
	return d.Stock, nil
}

func (r *drugRepo) IncrementStock(ctx context.Context, id int64, quantity int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.drugs[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	d.Stock += quantity
	r.s.st.drugs[id] = d
	return d.Stock, nil
}

type prescriptionRepo struct{ s *Store }

func (r *prescriptionRepo) Create(ctx context.Context, p *model.Prescription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.patients[p.PatientID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.doctors[p.DoctorID]; !ok {
		return repository.ErrReferenced
	}
	if p.VisitID != nil {
		if _, ok := st.visits[*p.VisitID]; !ok {
			return repository.ErrReferenced
		}
	}
	for _, o := range st.prescriptions {
		if o.PublicID == p.PublicID {
			return repository.ErrDuplicate
		}
		if p.VisitID != nil && o.VisitID != nil && *o.VisitID == *p.VisitID {
			return repository.ErrDuplicate
		}
	}
	p.ID = st.next("prescriptions")
	stored := *p
	stored.Drugs = nil
	st.prescriptions[p.ID] = stored
	return nil
}

func (r *prescriptionRepo) AddDrug(ctx context.Context, line *model.PrescriptionDrug) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.prescriptions[line.PrescriptionID]; !ok {
		return repository.ErrReferenced
	}
	if _, ok := st.drugs[line.DrugID]; !ok {
		return repository.ErrReferenced
	}
	if line.Quantity <= 0 {
		return repository.ErrConstraint
	}
	key := rxDrugKey{line.PrescriptionID, line.DrugID}
	if _, ok := st.rxDrugs[key]; ok {
		return repository.ErrDuplicate
	}
	st.rxDrugs[key] = *line
	return nil
}

func (r *prescriptionRepo) ListDrugs(ctx context.Context, prescriptionID int64) ([]model.PrescriptionDrug, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.lines(prescriptionID), nil
}

func (r *prescriptionRepo) lines(prescriptionID int64) []model.PrescriptionDrug {
	out := []model.PrescriptionDrug{}
	for k, l := range r.s.st.rxDrugs {
		if k.prescriptionID == prescriptionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DrugID < out[j].DrugID })
	return out
}

func (r *prescriptionRepo) GetByID(ctx context.Context, id int64) (*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.prescriptions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p.Drugs = r.lines(id)
	return &p, nil
}

func (r *prescriptionRepo) GetByPublicID(ctx context.Context, publicID uuid.UUID) (*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.prescriptions {
		if p.PublicID == publicID {
			p.Drugs = r.lines(p.ID)
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *prescriptionRepo) GetByVisit(ctx context.Context, visitID int64) (*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.prescriptions {
		if p.VisitID != nil && *p.VisitID == visitID {
			p.Drugs = r.lines(p.ID)
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *prescriptionRepo) List(ctx context.Context, filter model.PrescriptionFilter) ([]*model.Prescription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Prescription
	for _, id := range sortedIDs(r.s.st.prescriptions) {
		p := r.s.st.prescriptions[id]
		if filter.PatientID != 0 && p.PatientID != filter.PatientID {
			continue
		}
		if filter.VisitID != 0 && (p.VisitID == nil || *p.VisitID != filter.VisitID) {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		p.Drugs = r.lines(id)
		out = append(out, &p)
	}
	return paginate(out, filter.Pagination), nil
}

func (r *prescriptionRepo) UpdateStatus(ctx context.Context, id int64, status model.PrescriptionStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.prescriptions[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.Status = status
	r.s.st.prescriptions[id] = p
	return nil
}

func (r *prescriptionRepo) DeleteDrugs(ctx context.Context, prescriptionID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.st.rxDrugs {
		if k.prescriptionID == prescriptionID {
			delete(r.s.st.rxDrugs, k)
		}
	}
	return nil
}

func (r *prescriptionRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.st
	if _, ok := st.prescriptions[id]; !ok {
		return repository.ErrNotFound
	}
	for k := range st.rxDrugs {
		if k.prescriptionID == id {
			return repository.ErrReferenced
		}
	}
	for itemID, it := range st.items {
		if it.PrescriptionID != nil && *it.PrescriptionID == id {
			// invoice_items.prescription_id is ON DELETE SET NULL
			it.PrescriptionID = nil
			st.items[itemID] = it
		}
	}
	delete(st.prescriptions, id)
	return nil
}

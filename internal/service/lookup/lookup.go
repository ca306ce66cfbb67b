// Package lookup resolves the references clients send (business ids or
// numeric ids) to stored records, caching business id to row id mappings.
package lookup

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
)

const (
	DefaultExpiration = 10 * time.Minute
	cleanupInterval   = 15 * time.Minute
)

type Resolver struct {
	cache *cache.Cache
}

func NewResolver(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &Resolver{cache: cache.New(ttl, cleanupInterval)}
}

func key(kind, ref string) string {
	return kind + ":" + ref
}

func numeric(ref string) (int64, bool) {
	id, err := strconv.ParseInt(ref, 10, 64)
	return id, err == nil && id > 0
}

// resolve loads the record behind ref. Numeric refs are row ids; anything
// else is a business id looked up through byRef and remembered.
func resolve[T any](ctx context.Context, r *Resolver, kind, ref string,
	byID func(context.Context, int64) (*T, error),
	byRef func(context.Context, string) (*T, error),
	idOf func(*T) int64,
) (*T, error) {
	if id, ok := numeric(ref); ok {
		rec, err := byID(ctx, id)
		return rec, service.MapError(err, kind)
	}

	if cached, found := r.cache.Get(key(kind, ref)); found {
		rec, err := byID(ctx, cached.(int64))
		if err == nil {
			return rec, nil
		}
		if !stderrors.Is(err, repository.ErrNotFound) {
			return nil, service.MapError(err, kind)
		}
		r.cache.Delete(key(kind, ref))
	}

	rec, err := byRef(ctx, ref)
	if err != nil {
		return nil, service.MapError(err, kind)
	}
	r.cache.SetDefault(key(kind, ref), idOf(rec))
	return rec, nil
}

func (r *Resolver) Patient(ctx context.Context, repo repository.PatientRepository, ref string) (*model.Patient, error) {
	return resolve(ctx, r, "patient", ref, repo.GetByID, repo.GetByPatientID,
		func(p *model.Patient) int64 { return p.ID })
}

func (r *Resolver) Doctor(ctx context.Context, repo repository.DoctorRepository, ref string) (*model.Doctor, error) {
	return resolve(ctx, r, "doctor", ref, repo.GetByID, repo.GetByDoctorID,
		func(d *model.Doctor) int64 { return d.ID })
}

func (r *Resolver) Visit(ctx context.Context, repo repository.VisitRepository, ref string) (*model.Visit, error) {
	return resolve(ctx, r, "visit", ref, repo.GetByID, repo.GetByVisitID,
		func(v *model.Visit) int64 { return v.ID })
}

// Forget drops a cached mapping, e.g. after the record was deleted.
func (r *Resolver) Forget(kind, ref string) {
	r.cache.Delete(key(kind, ref))
}

// Count reports the number of cached mappings.
func (r *Resolver) Count() int {
	return r.cache.ItemCount()
}

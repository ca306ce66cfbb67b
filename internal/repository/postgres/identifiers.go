package postgres

import (
	"context"
	"fmt"
)

// identifierSources maps an identifier kind onto the table and column it
// is stored in.
var identifierSources = map[string]struct{ table, column string }{
	"patient": {"patients", "patient_id"},
	"doctor":  {"doctors", "doctor_id"},
	"visit":   {"visits", "visit_id"},
	"receipt": {"receipts", "receipt_number"},
}

type identifierRepository struct {
	BaseRepository
}

func (r *identifierRepository) source(kind string) (string, string, error) {
	src, ok := identifierSources[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown identifier kind %q", kind)
	}
	return src.table, src.column, nil
}

// Lock takes a transaction scoped advisory lock keyed by kind. It is
// released on commit or rollback.
func (r *identifierRepository) Lock(ctx context.Context, kind string) error {
	if _, _, err := r.source(kind); err != nil {
		return err
	}
	return r.execAny(ctx, "identifier.lock", `SELECT pg_advisory_xact_lock(hashtext($1))`, "identifier:"+kind)
}

// Last orders by length first so that KMC-05-2024-10000 sorts after
// KMC-05-2024-9999.
func (r *identifierRepository) Last(ctx context.Context, kind, prefix string) (string, error) {
	table, column, err := r.source(kind)
	if err != nil {
		return "", err
	}
	query := fmt.Sprintf(`
		SELECT COALESCE((
			SELECT %[2]s FROM %[1]s
			WHERE starts_with(%[2]s, $1)
			ORDER BY length(%[2]s) DESC, %[2]s DESC
			LIMIT 1
		), '')`, table, column)

	var last string
	if err := r.get(ctx, "identifier.last", &last, query, prefix); err != nil {
		return "", err
	}
	return last, nil
}

func (r *identifierRepository) MaxSequence(ctx context.Context, kind string) (int, error) {
	table, column, err := r.source(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(substring(%[2]s FROM '[0-9]+$')::int), 0)
		FROM %[1]s`, table, column)

	var highest int
	if err := r.get(ctx, "identifier.max_sequence", &highest, query); err != nil {
		return 0, err
	}
	return highest, nil
}

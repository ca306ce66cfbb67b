package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/repository"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", sql.ErrNoRows, repository.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("get: %w", sql.ErrNoRows), repository.ErrNotFound},
		{"unique", &pq.Error{Code: "23505", Constraint: "patients_patient_id_key"}, repository.ErrDuplicate},
		{"foreign key", &pq.Error{Code: "23503", Constraint: "visits_patient_id_fkey"}, repository.ErrReferenced},
		{"check", &pq.Error{Code: "23514", Constraint: "drugs_stock_check"}, repository.ErrConstraint},
		{"not null", &pq.Error{Code: "23502", Column: "phone"}, repository.ErrConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError(tt.in), tt.want)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.Nil(t, mapError(nil))

	serialization := &pq.Error{Code: "40001"}
	assert.Equal(t, error(serialization), mapError(serialization))
}

func TestAffected(t *testing.T) {
	assert.ErrorIs(t, affected(driverResult(0), nil), repository.ErrNotFound)
	assert.NoError(t, affected(driverResult(1), nil))

	boom := errors.New("boom")
	assert.Equal(t, boom, affected(nil, boom))
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	files := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 10;")},
		"002_two.sql":   {Data: []byte("SELECT 2;")},
		"001_one.sql":   {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"draft.sql":     {Data: []byte("SELECT 0;")},
		"x_invalid.sql": {Data: []byte("SELECT 0;")},
	}

	migrations, err := LoadMigrations(files)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "SELECT 2;", migrations[1].SQL)
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	files := fstest.MapFS{
		"001_one.sql":   {Data: []byte("SELECT 1;")},
		"001_again.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := LoadMigrations(files)
	assert.Error(t, err)
}

func TestEmbeddedSchema(t *testing.T) {
	migrations, err := LoadMigrations(NewMigrator(nil).files)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)

	var all string
	for _, m := range migrations {
		all += m.SQL
	}
	for _, table := range []string{
		"patients", "doctors", "visits", "triage", "diagnoses", "drugs", "prescriptions",
		"prescription_drugs", "invoices", "invoice_items", "payments", "receipts", "outbox_events", "visit_reports",
	} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	for _, source := range identifierSources {
		assert.Contains(t, all, source.column)
	}
}

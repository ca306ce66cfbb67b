package lookup

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository/memory"
	"github.com/kmc/ehr-api/pkg/errors"
)

func TestPatientResolution(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	p := &model.Patient{PatientID: "KMC-05-2024-0001", FirstName: "Wanjiru", LastName: "Kamau", Gender: "female", Phone: "0711"}
	p.Touch(time.Now())
	require.NoError(t, s.Patients().Create(ctx, p))

	r := NewResolver(time.Minute)

	got, err := r.Patient(ctx, s.Patients(), "KMC-05-2024-0001")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 1, r.Count())

	got, err = r.Patient(ctx, s.Patients(), strconv.FormatInt(p.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, "KMC-05-2024-0001", got.PatientID)

	_, err = r.Patient(ctx, s.Patients(), "KMC-05-2024-0099")
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
}

func TestStaleCacheEntryFallsBack(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	p := &model.Patient{PatientID: "KMC-05-2024-0001", FirstName: "A", LastName: "B", Gender: "male", Phone: "1"}
	p.Touch(time.Now())
	require.NoError(t, s.Patients().Create(ctx, p))

	r := NewResolver(time.Minute)
	_, err := r.Patient(ctx, s.Patients(), p.PatientID)
	require.NoError(t, err)

	require.NoError(t, s.Patients().Delete(ctx, p.ID))
	_, err = r.Patient(ctx, s.Patients(), p.PatientID)
	assert.True(t, errors.HasCode(err, errors.ErrNotFound))
	assert.Equal(t, 0, r.Count())
}

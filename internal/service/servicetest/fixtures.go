// Package servicetest seeds an in-memory store for service tests.
package servicetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
)

var clock = time.Date(2024, time.May, 14, 9, 30, 0, 0, time.UTC)

// Now is the fixed instant fixtures are stamped with.
func Now() time.Time { return clock }

func Patient(t *testing.T, r repository.Repos, n int) *model.Patient {
	t.Helper()
	p := &model.Patient{
		PatientID: fmt.Sprintf("KMC-05-2024-%04d", n),
		FirstName: "Amina",
		LastName:  fmt.Sprintf("Otieno%d", n),
		Age:       34,
		Gender:    "female",
		Phone:     "0722000000",
		Email:     model.StringPtr(fmt.Sprintf("amina%d@example.com", n)),
	}
	p.Touch(clock)
	require.NoError(t, r.Patients().Create(context.Background(), p))
	return p
}

func Doctor(t *testing.T, r repository.Repos, n int) *model.Doctor {
	t.Helper()
	d := &model.Doctor{
		DoctorID:      fmt.Sprintf("KMC-DOC-05-2024-%04d", n),
		FirstName:     "Joseph",
		LastName:      fmt.Sprintf("Mwangi%d", n),
		LicenseNumber: fmt.Sprintf("LIC-%04d", n),
		Specialty:     "general",
		Phone:         "0733000000",
		IsActive:      true,
	}
	d.Touch(clock)
	require.NoError(t, r.Doctors().Create(context.Background(), d))
	return d
}

func Visit(t *testing.T, r repository.Repos, n int, patient *model.Patient, doctor *model.Doctor) *model.Visit {
	t.Helper()
	v := &model.Visit{
		VisitID:   fmt.Sprintf("KMC-VIS-0524/%04d", n),
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		VisitDate: clock,
		VisitType: "walk-in",
		Status:    model.VisitStatusInProgress,
	}
	v.Touch(clock)
	require.NoError(t, r.Visits().Create(context.Background(), v))
	return v
}

func Drug(t *testing.T, r repository.Repos, name string, price float64, stock int) *model.Drug {
	t.Helper()
	d := &model.Drug{Name: name, UnitPrice: price, Stock: stock, IsActive: true}
	d.Touch(clock)
	require.NoError(t, r.Drugs().Create(context.Background(), d))
	return d
}

// Events returns the outbox event types of s in creation order.
func Events(s interface{ OutboxEvents() []model.OutboxEvent }) []string {
	var types []string
	for _, e := range s.OutboxEvents() {
		types = append(types, e.EventType)
	}
	return types
}

package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

// Accepted vital sign ranges.
const (
	MinTemperature   = 25.0
	MaxTemperature   = 45.0
	MinPulse         = 30
	MaxPulse         = 200
	MinBloodPressure = 40
	MaxBloodPressure = 250
)

type Triage struct {
	ID                     int64     `db:"id" json:"id"`
	VisitID                int64     `db:"visit_id" json:"visit_id"`
	Height                 *float64  `db:"height" json:"height"`
	Weight                 *float64  `db:"weight" json:"weight"`
	Temperature            *float64  `db:"temperature" json:"temperature"`
	BloodPressureSystolic  *int      `db:"blood_pressure_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int      `db:"blood_pressure_diastolic" json:"blood_pressure_diastolic"`
	Pulse                  *int      `db:"pulse" json:"pulse"`
	OxygenSaturation       *float64  `db:"oxygen_saturation" json:"oxygen_saturation"`
	Notes                  *string   `db:"notes" json:"notes"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// BMI returns weight / (height in metres)^2 rounded to one decimal, or nil
// when either measurement is missing.
func (t *Triage) BMI() *float64 {
	return ComputeBMI(t.Height, t.Weight)
}

func ComputeBMI(heightCM, weightKG *float64) *float64 {
	if heightCM == nil || weightKG == nil || *heightCM <= 0 {
		return nil
	}
	m := *heightCM / 100
	bmi := math.Round(*weightKG/(m*m)*10) / 10
	return &bmi
}

// BloodPressure formats the reading as "systolic/diastolic".
func (t *Triage) BloodPressure() *string {
	if t.BloodPressureSystolic == nil || t.BloodPressureDiastolic == nil {
		return nil
	}
	bp := fmt.Sprintf("%d/%d", *t.BloodPressureSystolic, *t.BloodPressureDiastolic)
	return &bp
}

func (t Triage) MarshalJSON() ([]byte, error) {
	type alias Triage
	return json.Marshal(struct {
		alias
		BMI           *float64 `json:"bmi"`
		BloodPressure *string  `json:"blood_pressure"`
	}{alias(t), t.BMI(), t.BloodPressure()})
}

// Recorded reports whether any measurement has been entered.
func (t *Triage) Recorded() bool {
	return t.Height != nil || t.Weight != nil || t.Temperature != nil ||
		t.BloodPressureSystolic != nil || t.BloodPressureDiastolic != nil ||
		t.Pulse != nil || t.OxygenSaturation != nil
}

// Validate checks every vital sign that is present.
func (t *Triage) Validate() error {
	if t.Temperature != nil && (*t.Temperature < MinTemperature || *t.Temperature > MaxTemperature) {
		return errors.BadRequest(fmt.Sprintf("temperature must be between %.0f and %.0f", MinTemperature, MaxTemperature), nil)
	}
	if t.Pulse != nil && (*t.Pulse < MinPulse || *t.Pulse > MaxPulse) {
		return errors.BadRequest(fmt.Sprintf("pulse must be between %d and %d", MinPulse, MaxPulse), nil)
	}
	for _, bp := range []struct {
		name  string
		value *int
	}{
		{"blood_pressure_systolic", t.BloodPressureSystolic},
		{"blood_pressure_diastolic", t.BloodPressureDiastolic},
	} {
		if bp.value != nil && (*bp.value < MinBloodPressure || *bp.value > MaxBloodPressure) {
			return errors.BadRequest(fmt.Sprintf("%s must be between %d and %d", bp.name, MinBloodPressure, MaxBloodPressure), nil)
		}
	}
	if t.OxygenSaturation != nil && (*t.OxygenSaturation < 0 || *t.OxygenSaturation > 100) {
		return errors.BadRequest("oxygen_saturation must be between 0 and 100", nil)
	}
	if t.Height != nil && *t.Height <= 0 {
		return errors.BadRequest("height must be positive", nil)
	}
	if t.Weight != nil && *t.Weight <= 0 {
		return errors.BadRequest("weight must be positive", nil)
	}
	return nil
}

// TriageUpdate is a partial update: nil fields keep their current value.
type TriageUpdate struct {
	Height                 *float64 `json:"height"`
	Weight                 *float64 `json:"weight"`
	Temperature            *float64 `json:"temperature"`
	BloodPressureSystolic  *int     `json:"blood_pressure_systolic"`
	BloodPressureDiastolic *int     `json:"blood_pressure_diastolic"`
	Pulse                  *int     `json:"pulse"`
	OxygenSaturation       *float64 `json:"oxygen_saturation"`
	Notes                  *string  `json:"notes"`
}

// Apply validates the merged result first and only then assigns it to t,
// so a rejected update leaves t untouched.
func (u *TriageUpdate) Apply(t *Triage) error {
	merged := *t
	if u.Height != nil {
		merged.Height = u.Height
	}
	if u.Weight != nil {
		merged.Weight = u.Weight
	}
	if u.Temperature != nil {
		merged.Temperature = u.Temperature
	}
	if u.BloodPressureSystolic != nil {
		merged.BloodPressureSystolic = u.BloodPressureSystolic
	}
	if u.BloodPressureDiastolic != nil {
		merged.BloodPressureDiastolic = u.BloodPressureDiastolic
	}
	if u.Pulse != nil {
		merged.Pulse = u.Pulse
	}
	if u.OxygenSaturation != nil {
		merged.OxygenSaturation = u.OxygenSaturation
	}
	if u.Notes != nil {
		merged.Notes = u.Notes
	}
	if err := merged.Validate(); err != nil {
		return err
	}
	*t = merged
	return nil
}

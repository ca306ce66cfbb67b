package model

import (
	"strings"
	"time"

	"github.com/kmc/ehr-api/pkg/errors"
)

// VisitReport is the doctor's narrative form for one visit. A visit has at
// most one.
type VisitReport struct {
	Base
	VisitID                      int64      `db:"visit_id" json:"visit_id"`
	PatientID                    int64      `db:"patient_id" json:"patient_id"`
	DoctorID                     int64      `db:"doctor_id" json:"doctor_id"`
	PresentingComplaint          *string    `db:"presenting_complaint" json:"presenting_complaint"`
	HistoryOfPresentingComplaint *string    `db:"history_of_presenting_complaint" json:"history_of_presenting_complaint"`
	MedicalHistory               *string    `db:"medical_history" json:"medical_history"`
	PhysicalExamination          *string    `db:"physical_examination" json:"physical_examination"`
	Investigations               *string    `db:"investigations" json:"investigations"`
	PreliminaryDiagnosis         *string    `db:"preliminary_diagnosis" json:"preliminary_diagnosis"`
	FinalDiagnosis               *string    `db:"final_diagnosis" json:"final_diagnosis"`
	ManagementPlan               *string    `db:"management_plan" json:"management_plan"`
	Recommendations              *string    `db:"recommendations" json:"recommendations"`
	ReviewDate                   *time.Time `db:"review_date" json:"review_date"`
	RecordedBy                   string     `db:"recorded_by" json:"recorded_by"`
}

// VisitReportUpdate carries the sections to change. Absent sections keep
// their value and an empty string clears one.
type VisitReportUpdate struct {
	PresentingComplaint          *string    `json:"presenting_complaint"`
	HistoryOfPresentingComplaint *string    `json:"history_of_presenting_complaint"`
	MedicalHistory               *string    `json:"medical_history"`
	PhysicalExamination          *string    `json:"physical_examination"`
	Investigations               *string    `json:"investigations"`
	PreliminaryDiagnosis         *string    `json:"preliminary_diagnosis"`
	FinalDiagnosis               *string    `json:"final_diagnosis"`
	ManagementPlan               *string    `json:"management_plan"`
	Recommendations              *string    `json:"recommendations"`
	ReviewDate                   *time.Time `json:"review_date"`
}

// Apply merges u into r. The review date may not fall before visitDay.
func (u *VisitReportUpdate) Apply(r *VisitReport, visitDay time.Time) error {
	if u.ReviewDate != nil {
		day := Today(*u.ReviewDate)
		if day.Before(Today(visitDay)) {
			return errors.BadRequest("review date cannot be before the visit", nil)
		}
		r.ReviewDate = &day
	}
	for _, f := range []struct {
		dst **string
		src *string
	}{
		{&r.PresentingComplaint, u.PresentingComplaint},
		{&r.HistoryOfPresentingComplaint, u.HistoryOfPresentingComplaint},
		{&r.MedicalHistory, u.MedicalHistory},
		{&r.PhysicalExamination, u.PhysicalExamination},
		{&r.Investigations, u.Investigations},
		{&r.PreliminaryDiagnosis, u.PreliminaryDiagnosis},
		{&r.FinalDiagnosis, u.FinalDiagnosis},
		{&r.ManagementPlan, u.ManagementPlan},
		{&r.Recommendations, u.Recommendations},
	} {
		if f.src == nil {
			continue
		}
		if v := strings.TrimSpace(*f.src); v != "" {
			*f.dst = &v
		} else {
			*f.dst = nil
		}
	}
	return nil
}

// Empty reports whether the update names no section at all.
func (u *VisitReportUpdate) Empty() bool {
	return u.PresentingComplaint == nil && u.HistoryOfPresentingComplaint == nil &&
		u.MedicalHistory == nil && u.PhysicalExamination == nil && u.Investigations == nil &&
		u.PreliminaryDiagnosis == nil && u.FinalDiagnosis == nil && u.ManagementPlan == nil &&
		u.Recommendations == nil && u.ReviewDate == nil
}

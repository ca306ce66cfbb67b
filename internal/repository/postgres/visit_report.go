package postgres

import (
	"context"
	"fmt"

	"github.com/kmc/ehr-api/internal/model"
)

const visitReportColumns = `id, public_id, visit_id, patient_id, doctor_id, presenting_complaint,
	history_of_presenting_complaint, medical_history, physical_examination, investigations,
	preliminary_diagnosis, final_diagnosis, management_plan, recommendations, review_date,
	recorded_by, created_at, updated_at`

type visitReportRepository struct {
	BaseRepository
}

func (r *visitReportRepository) Create(ctx context.Context, report *model.VisitReport) error {
	if report == nil {
		return fmt.Errorf("visit report cannot be nil")
	}
	query := `
		INSERT INTO visit_reports (
			public_id, visit_id, patient_id, doctor_id, presenting_complaint,
			history_of_presenting_complaint, medical_history, physical_examination, investigations,
			preliminary_diagnosis, final_diagnosis, management_plan, recommendations, review_date,
			recorded_by, created_at, updated_at
		) VALUES (
			:public_id, :visit_id, :patient_id, :doctor_id, :presenting_complaint,
			:history_of_presenting_complaint, :medical_history, :physical_examination, :investigations,
			:preliminary_diagnosis, :final_diagnosis, :management_plan, :recommendations, :review_date,
			:recorded_by, :created_at, :updated_at
		) RETURNING id`
	return r.insert(ctx, "visit_report.create", &report.ID, query, report)
}

func (r *visitReportRepository) GetByVisit(ctx context.Context, visitID int64) (*model.VisitReport, error) {
	var report model.VisitReport
	if err := r.get(ctx, "visit_report.get_by_visit", &report,
		`SELECT `+visitReportColumns+` FROM visit_reports WHERE visit_id = $1`, visitID); err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *visitReportRepository) Update(ctx context.Context, report *model.VisitReport) error {
	query := `
		UPDATE visit_reports SET
			presenting_complaint = :presenting_complaint,
			history_of_presenting_complaint = :history_of_presenting_complaint,
			medical_history = :medical_history,
			physical_examination = :physical_examination,
			investigations = :investigations,
			preliminary_diagnosis = :preliminary_diagnosis,
			final_diagnosis = :final_diagnosis,
			management_plan = :management_plan,
			recommendations = :recommendations,
			review_date = :review_date,
			recorded_by = :recorded_by,
			updated_at = :updated_at
		WHERE id = :id`
	return r.execNamed(ctx, "visit_report.update", query, report)
}

func (r *visitReportRepository) DeleteByVisit(ctx context.Context, visitID int64) error {
	return r.execAny(ctx, "visit_report.delete_by_visit", `DELETE FROM visit_reports WHERE visit_id = $1`, visitID)
}

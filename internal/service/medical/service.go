// Package medical keeps the doctor's narrative report for a visit.
package medical

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/internal/service/lookup"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
)

const unknownAuthor = "system"

type ReportService interface {
	GetReport(ctx context.Context, visitRef string) (*model.VisitReport, error)
	SaveReport(ctx context.Context, visitRef string, update *model.VisitReportUpdate, recordedBy string) (*model.VisitReport, error)
	DeleteReport(ctx context.Context, visitRef string) error
}

type Service struct {
	store    repository.Store
	resolver *lookup.Resolver
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(store repository.Store, resolver *lookup.Resolver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   log,
		now:      time.Now,
	}
}

func (s *Service) GetReport(ctx context.Context, visitRef string) (*model.VisitReport, error) {
	v, err := s.resolver.Visit(ctx, s.store.Visits(), visitRef)
	if err != nil {
		return nil, err
	}
	report, err := s.store.VisitReports().GetByVisit(ctx, v.ID)
	if err != nil {
		return nil, service.MapError(err, "visit report")
	}
	return report, nil
}

// SaveReport merges update into the visit's report, writing a new one for
// the visit's patient and doctor when none exists yet. The last writer is
// recorded as the author.
func (s *Service) SaveReport(ctx context.Context, visitRef string, update *model.VisitReportUpdate, recordedBy string) (*model.VisitReport, error) {
	if update == nil || update.Empty() {
		return nil, errors.BadRequest("report has no sections to save", nil)
	}
	recordedBy = strings.TrimSpace(recordedBy)
	if recordedBy == "" {
		recordedBy = unknownAuthor
	}

	var report *model.VisitReport
	created := false
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		v, err := s.resolver.Visit(ctx, r.Visits(), visitRef)
		if err != nil {
			return err
		}
		if v.Status == model.VisitStatusCancelled {
			return errors.BadRequest("cannot write a report for a cancelled visit", nil)
		}

		now := s.now()
		report, err = r.VisitReports().GetByVisit(ctx, v.ID)
		switch {
		case stderrors.Is(err, repository.ErrNotFound):
			report = &model.VisitReport{VisitID: v.ID, PatientID: v.PatientID, DoctorID: v.DoctorID}
			if err := update.Apply(report, v.VisitDate); err != nil {
				return err
			}
			report.RecordedBy = recordedBy
			report.Touch(now)
			created = true
			return service.MapError(r.VisitReports().Create(ctx, report), "visit report")
		case err != nil:
			return service.MapError(err, "visit report")
		}

		if err := update.Apply(report, v.VisitDate); err != nil {
			return err
		}
		report.RecordedBy = recordedBy
		report.UpdatedAt = now
		return service.MapError(r.VisitReports().Update(ctx, report), "visit report")
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).Info("visit report saved",
		"visit_id", report.VisitID, "recorded_by", recordedBy, "created", created)
	return report, nil
}

func (s *Service) DeleteReport(ctx context.Context, visitRef string) error {
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		v, err := s.resolver.Visit(ctx, r.Visits(), visitRef)
		if err != nil {
			return err
		}
		if _, err := r.VisitReports().GetByVisit(ctx, v.ID); err != nil {
			return service.MapError(err, "visit report")
		}
		return service.MapError(r.VisitReports().DeleteByVisit(ctx, v.ID), "visit report")
	})
}

package inventory

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/internal/repository"
	"github.com/kmc/ehr-api/internal/service"
	"github.com/kmc/ehr-api/pkg/errors"
	"github.com/kmc/ehr-api/pkg/logger"
	"github.com/kmc/ehr-api/pkg/metrics"
)

// ErrInsufficientStock is wrapped by the error returned when a drug has
// fewer units on hand than a prescription asks for.
var ErrInsufficientStock = stderrors.New("insufficient drug stock")

const DefaultLowStockThreshold = 10

// Ledger applies the stock effects of prescriptions. Every method runs
// against the Repos of the caller's transaction.
type Ledger struct {
	threshold int
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewLedger(lowStockThreshold int, log *logger.Logger, m *metrics.Metrics) *Ledger {
	if lowStockThreshold < 0 {
		lowStockThreshold = DefaultLowStockThreshold
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ledger{threshold: lowStockThreshold, logger: log, metrics: m}
}

func (l *Ledger) Threshold() int {
	return l.threshold
}

// Decrement takes quantity units of a drug out of stock. The update is
// conditional on enough units being on hand; otherwise nothing changes and
// a bad request error wrapping ErrInsufficientStock is returned.
func (l *Ledger) Decrement(ctx context.Context, r repository.Repos, drugID int64, quantity int) error {
	if quantity <= 0 {
		return errors.BadRequest("quantity must be positive", nil)
	}
	remaining, err := r.Drugs().DecrementStock(ctx, drugID, quantity)
	if stderrors.Is(err, repository.ErrInsufficientStock) {
		l.metrics.StockRejected()
		return errors.BadRequest(
			fmt.Sprintf("insufficient stock for drug %d: %d available, %d requested", drugID, remaining, quantity),
			ErrInsufficientStock)
	}
	if err != nil {
		return service.MapError(err, "drug")
	}
	l.metrics.StockDecremented(quantity)

	if remaining <= l.threshold {
		drug, err := r.Drugs().GetByID(ctx, drugID)
		if err != nil {
			return service.MapError(err, "drug")
		}
		l.logger.WithContext(ctx).Warn("drug stock low",
			"drug_id", drugID, "name", drug.Name, "stock", remaining, "threshold", l.threshold)
		if err := service.Emit(ctx, r, model.EventDrugStockLow, model.StockLowPayload{
			DrugID:    drugID,
			Name:      drug.Name,
			Stock:     remaining,
			Threshold: l.threshold,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Restore puts quantity units back into stock.
func (l *Ledger) Restore(ctx context.Context, r repository.Repos, drugID int64, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	if _, err := r.Drugs().IncrementStock(ctx, drugID, quantity); err != nil {
		return service.MapError(err, "drug")
	}
	l.metrics.StockRestored(quantity)
	return nil
}

// RemovePrescription deletes a prescription with its drug lines and returns
// every dispensed unit to stock.
func (l *Ledger) RemovePrescription(ctx context.Context, r repository.Repos, prescriptionID int64) error {
	lines, err := r.Prescriptions().ListDrugs(ctx, prescriptionID)
	if err != nil {
		return service.MapError(err, "prescription")
	}
	if err := r.Prescriptions().DeleteDrugs(ctx, prescriptionID); err != nil {
		return service.MapError(err, "prescription")
	}
	if err := r.Prescriptions().Delete(ctx, prescriptionID); err != nil {
		return service.MapError(err, "prescription")
	}
	for _, line := range lines {
		if err := l.Restore(ctx, r, line.DrugID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

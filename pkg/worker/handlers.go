package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kmc/ehr-api/internal/email"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/logger"
)

// MailReceipts returns the RECEIPT_ISSUED handler that e-mails the
// receipt to the patient.
func MailReceipts(mailer email.Service) EventHandler {
	return func(ctx context.Context, event *model.OutboxEvent) error {
		var receipt model.ReceiptPayload
		if err := json.Unmarshal(event.Payload, &receipt); err != nil {
			return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
		}
		return mailer.SendReceipt(ctx, receipt)
	}
}

// WarnLowStock returns the DRUG_STOCK_LOW handler that logs a reorder
// warning.
func WarnLowStock(log *logger.Logger) EventHandler {
	return func(ctx context.Context, event *model.OutboxEvent) error {
		var p model.StockLowPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", event.EventType, err)
		}
		log.Warn("drug needs reordering",
			"drug_id", p.DrugID, "name", p.Name, "stock", p.Stock, "threshold", p.Threshold)
		return nil
	}
}

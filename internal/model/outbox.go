package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
	OutboxStatusRetry     OutboxStatus = "retry"
)

// Event types written by the clinic services.
const (
	EventDrugStockLow    = "DRUG_STOCK_LOW"
	EventPaymentRecorded = "PAYMENT_RECORDED"
	EventReceiptIssued   = "RECEIPT_ISSUED"
	EventPaymentVoided   = "PAYMENT_VOIDED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// NewOutboxEvent marshals payload into a pending event.
func NewOutboxEvent(eventType string, payload interface{}) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		EventType: eventType,
		Payload:   data,
		Status:    OutboxStatusPending,
	}, nil
}

type StockLowPayload struct {
	DrugID    int64  `json:"drug_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type PaymentPayload struct {
	PaymentID  int64   `json:"payment_id"`
	InvoiceID  int64   `json:"invoice_id"`
	PatientID  int64   `json:"patient_id"`
	Amount     float64 `json:"amount"`
	BalanceDue float64 `json:"balance_due"`
	Status     string  `json:"status"`
}

type ReceiptPayload struct {
	ReceiptNumber string    `json:"receipt_number"`
	PaymentID     int64     `json:"payment_id"`
	InvoiceID     int64     `json:"invoice_id"`
	Amount        float64   `json:"amount"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"patient_email,omitempty"`
	IssuedBy      string    `json:"issued_by"`
	ReceiptDate   time.Time `json:"receipt_date"`
}

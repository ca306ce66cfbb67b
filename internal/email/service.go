// Package email sends patient receipts.
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"github.com/kmc/ehr-api/internal/config"
	"github.com/kmc/ehr-api/internal/model"
	"github.com/kmc/ehr-api/pkg/logger"
)

type Service interface {
	SendReceipt(ctx context.Context, receipt model.ReceiptPayload) error
}

// Sender delivers a composed message. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

var receiptTemplate = template.Must(template.New("receipt").Parse(`<p>Dear {{.PatientName}},</p>
<p>We have received your payment of <strong>{{printf "%.2f" .Amount}}</strong>
on {{.ReceiptDate.Format "02 Jan 2006"}}.</p>
<table>
<tr><td>Receipt number</td><td>{{.ReceiptNumber}}</td></tr>
<tr><td>Invoice</td><td>#{{.InvoiceID}}</td></tr>
<tr><td>Issued by</td><td>{{.IssuedBy}}</td></tr>
</table>
<p>Thank you.</p>`))

type SMTPService struct {
	sender Sender
	from   string
	logger *logger.Logger
}

func NewSMTPService(cfg config.SMTPConfig, log *logger.Logger) *SMTPService {
	return NewService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password), cfg.From, log)
}

func NewService(sender Sender, from string, log *logger.Logger) *SMTPService {
	if log == nil {
		log = logger.Nop()
	}
	return &SMTPService{sender: sender, from: from, logger: log}
}

// SendReceipt mails the receipt to the patient. Patients without an
// address on file are skipped.
func (s *SMTPService) SendReceipt(ctx context.Context, receipt model.ReceiptPayload) error {
	if receipt.PatientEmail == "" {
		s.logger.Debug("receipt not mailed, patient has no email", "receipt_number", receipt.ReceiptNumber)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := receiptTemplate.Execute(&body, receipt); err != nil {
		return fmt.Errorf("failed to render receipt: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", receipt.PatientEmail)
	m.SetHeader("Subject", "Payment receipt "+receipt.ReceiptNumber)
	m.SetBody("text/html", body.String())

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send receipt %s: %w", receipt.ReceiptNumber, err)
	}
	s.logger.Info("receipt mailed", "receipt_number", receipt.ReceiptNumber)
	return nil
}

// Noop drops every message. Used when SMTP is disabled.
type Noop struct{}

func (Noop) SendReceipt(context.Context, model.ReceiptPayload) error { return nil }

package documents

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joseph3559/letrents-backend/pkg/logger"
)

// ReceiptRequest identifies the artifacts a receipt render needs.
type ReceiptRequest struct {
	PaymentID     uuid.UUID
	InvoiceID     uuid.UUID
	ReceiptNumber string
}

// Service renders receipts and related documents. It is invoked after the
// settlement transaction commits; failures are logged by the caller and never
// block settlement.
type Service interface {
	RenderReceipt(ctx context.Context, req ReceiptRequest) error
}

// LogService is the default no-op renderer: it records the render request and
// leaves actual PDF/email generation to the external document pipeline.
type LogService struct {
	logg *logger.Logger
}

// NewLogService builds the logging document service.
func NewLogService(logg *logger.Logger) (*LogService, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &LogService{logg: logg}, nil
}

func (s *LogService) RenderReceipt(ctx context.Context, req ReceiptRequest) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"payment_id":     req.PaymentID.String(),
		"invoice_id":     req.InvoiceID.String(),
		"receipt_number": req.ReceiptNumber,
	})
	s.logg.Info(ctx, "receipt render requested")
	return nil
}

package controller

import (
	"context"

	"github.com/gartstein/worklog/internal/worklog/events"
	"github.com/gartstein/worklog/internal/worklog/models"
	"go.uber.org/zap"
)

// PreviewInvoice builds the invoice for the given ids, or for every approved
// non-archived entry when ids is empty. Ids that are not invoiceable within
// the tenant are left out.
func (s *WorkLogService) PreviewInvoice(ctx context.Context, companyID uint, ids []uint) (*models.Invoice, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	logs, err := s.repo.ListInvoiceable(ctx, companyID, ids)
	if err != nil {
		return nil, s.storageFailure("preview invoice", companyID, 0, err)
	}
	return models.NewInvoice(companyID, logs), nil
}

// ConfirmInvoice archives exactly the set PreviewInvoice would bill for the
// same arguments, atomically, and returns the resulting invoice.
func (s *WorkLogService) ConfirmInvoice(ctx context.Context, companyID uint, ids []uint) (*models.Invoice, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	var logs []*models.WorkLog
	err := s.retryOnConflict(ctx, func() error {
		var err error
		logs, err = s.repo.InvoiceWorkLogs(ctx, companyID, ids, s.now())
		return err
	})
	if err != nil {
		return nil, s.storageFailure("confirm invoice", companyID, 0, err)
	}

	invoice := models.NewInvoice(companyID, logs)
	if len(invoice.Lines) > 0 {
		s.publish(events.NewBatchEvent(events.WorkLogsInvoiced, companyID, invoice.IDs()))
	}
	s.logger.Info("Invoice confirmed",
		zap.Uint("company_id", companyID),
		zap.Int("lines", len(invoice.Lines)),
		zap.String("grand_total", invoice.GrandTotal.StringFixed(2)),
	)
	return invoice, nil
}

package handlers

import (
	"context"
	"time"

	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
)

// mockController is a func-field implementation of WorkLogController.
// Unset operations echo a canned work log.
type mockController struct {
	submitFunc      func(ctx context.Context, sub *models.Submission) (*models.WorkLog, error)
	recordFunc      func(ctx context.Context, sub *models.Submission) (*models.WorkLog, error)
	editFunc        func(ctx context.Context, companyID, id uint, editor string, update models.AmountUpdate) (*models.WorkLog, error)
	transitionFunc  func(op string, companyID, id uint) (*models.WorkLog, error)
	respondFunc     func(op string, companyID, userID, id uint) (*models.WorkLog, error)
	archiveBulkFunc func(ctx context.Context, companyID uint, ids []uint) (int, error)
	listFunc        func(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error)
	listMineFunc    func(ctx context.Context, companyID, userID uint) ([]*models.WorkLog, error)
	workersFunc     func(ctx context.Context, companyID uint) ([]string, error)
	costsFunc       func(ctx context.Context, companyID uint) (*models.CostSummary, error)
	invoiceFunc     func(op string, companyID uint, ids []uint) (*models.Invoice, error)
}

func sampleWorkLog(companyID, id uint) *models.WorkLog {
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return &models.WorkLog{
		ID:                id,
		JobDisplayID:      models.FormatDisplayID(int64(id)),
		CompanyID:         companyID,
		SubmittedByUserID: 10,
		ProjectID:         7,
		WorkerName:        "Ana Petrova",
		Project:           "Riverside",
		Block:             "B",
		Floor:             "3",
		WorkType:          "Plastering",
		Quantity:          decimal.NewNullDecimal(decimal.RequireFromString("10")),
		UnitPrice:         decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
		Total:             decimal.NewNullDecimal(decimal.RequireFromString("25")),
		PhotoURLs:         []string{"https://cdn.example.com/a.jpg"},
		Status:            models.StatusPending,
		Version:           1,
		SubmittedAt:       at,
		UpdatedAt:         at,
	}
}

func (m *mockController) Submit(ctx context.Context, sub *models.Submission) (*models.WorkLog, error) {
	return m.submitFunc(ctx, sub)
}

func (m *mockController) Record(ctx context.Context, sub *models.Submission) (*models.WorkLog, error) {
	return m.recordFunc(ctx, sub)
}

func (m *mockController) Edit(ctx context.Context, companyID, id uint, editor string, update models.AmountUpdate) (*models.WorkLog, error) {
	return m.editFunc(ctx, companyID, id, editor, update)
}

func (m *mockController) transition(op string, companyID, id uint) (*models.WorkLog, error) {
	if m.transitionFunc == nil {
		return sampleWorkLog(companyID, id), nil
	}
	return m.transitionFunc(op, companyID, id)
}

func (m *mockController) Approve(_ context.Context, companyID, id uint) (*models.WorkLog, error) {
	return m.transition("approve", companyID, id)
}

func (m *mockController) Reject(_ context.Context, companyID, id uint) (*models.WorkLog, error) {
	return m.transition("reject", companyID, id)
}

func (m *mockController) Complete(_ context.Context, companyID, id uint) (*models.WorkLog, error) {
	return m.transition("complete", companyID, id)
}

func (m *mockController) Archive(_ context.Context, companyID, id uint) (*models.WorkLog, error) {
	return m.transition("archive", companyID, id)
}

func (m *mockController) GetWorkLog(_ context.Context, companyID, id uint) (*models.WorkLog, error) {
	return m.transition("get", companyID, id)
}

func (m *mockController) respond(op string, companyID, userID, id uint) (*models.WorkLog, error) {
	if m.respondFunc == nil {
		return sampleWorkLog(companyID, id), nil
	}
	return m.respondFunc(op, companyID, userID, id)
}

func (m *mockController) ConfirmEdit(_ context.Context, companyID, userID, id uint) (*models.WorkLog, error) {
	return m.respond("confirm", companyID, userID, id)
}

func (m *mockController) ContestEdit(_ context.Context, companyID, userID, id uint) (*models.WorkLog, error) {
	return m.respond("contest", companyID, userID, id)
}

func (m *mockController) ArchiveBulk(ctx context.Context, companyID uint, ids []uint) (int, error) {
	return m.archiveBulkFunc(ctx, companyID, ids)
}

func (m *mockController) ListWorkLogs(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error) {
	return m.listFunc(ctx, companyID, f)
}

func (m *mockController) ListMyWorkLogs(ctx context.Context, companyID, userID uint) ([]*models.WorkLog, error) {
	return m.listMineFunc(ctx, companyID, userID)
}

func (m *mockController) ListWorkers(ctx context.Context, companyID uint) ([]string, error) {
	return m.workersFunc(ctx, companyID)
}

func (m *mockController) CostSummary(ctx context.Context, companyID uint) (*models.CostSummary, error) {
	return m.costsFunc(ctx, companyID)
}

func (m *mockController) invoice(op string, companyID uint, ids []uint) (*models.Invoice, error) {
	if m.invoiceFunc == nil {
		return models.NewInvoice(companyID, []*models.WorkLog{sampleWorkLog(companyID, 1)}), nil
	}
	return m.invoiceFunc(op, companyID, ids)
}

func (m *mockController) PreviewInvoice(_ context.Context, companyID uint, ids []uint) (*models.Invoice, error) {
	return m.invoice("preview", companyID, ids)
}

func (m *mockController) ConfirmInvoice(_ context.Context, companyID uint, ids []uint) (*models.Invoice, error) {
	return m.invoice("confirm", companyID, ids)
}

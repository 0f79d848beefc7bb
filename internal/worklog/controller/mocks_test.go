package controller

import (
	"context"
	"sync"
	"time"

	"github.com/gartstein/worklog/internal/worklog/db"
	"github.com/gartstein/worklog/internal/worklog/events"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
)

// MockRepository implements the Repository interface for testing
type MockRepository struct {
	createWorkLog    func(context.Context, *models.WorkLog) error
	getWorkLog       func(context.Context, uint, uint) (*models.WorkLog, error)
	updateWorkLog    func(context.Context, uint, uint, db.Mutator) (*models.WorkLog, error)
	listWorkLogs     func(context.Context, uint, models.Filter) ([]*models.WorkLog, error)
	listBySubmitter  func(context.Context, uint, uint, int) ([]*models.WorkLog, error)
	listWorkers      func(context.Context, uint) ([]string, error)
	sumTotals        func(context.Context, uint, time.Time) (decimal.Decimal, error)
	archiveWorkLogs  func(context.Context, uint, []uint, time.Time) ([]uint, error)
	listInvoiceable  func(context.Context, uint, []uint) ([]*models.WorkLog, error)
	invoiceWorkLogs  func(context.Context, uint, []uint, time.Time) ([]*models.WorkLog, error)
	activeAssignment func(context.Context, uint, uint) (*models.ProjectAssignment, error)
}

func (m *MockRepository) CreateWorkLog(ctx context.Context, wl *models.WorkLog) error {
	return m.createWorkLog(ctx, wl)
}

func (m *MockRepository) GetWorkLog(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	return m.getWorkLog(ctx, companyID, id)
}

func (m *MockRepository) UpdateWorkLog(ctx context.Context, companyID, id uint, mutate db.Mutator) (*models.WorkLog, error) {
	return m.updateWorkLog(ctx, companyID, id, mutate)
}

func (m *MockRepository) ListWorkLogs(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error) {
	return m.listWorkLogs(ctx, companyID, f)
}

func (m *MockRepository) ListBySubmitter(ctx context.Context, companyID, userID uint, limit int) ([]*models.WorkLog, error) {
	return m.listBySubmitter(ctx, companyID, userID, limit)
}

func (m *MockRepository) ListWorkers(ctx context.Context, companyID uint) ([]string, error) {
	return m.listWorkers(ctx, companyID)
}

func (m *MockRepository) SumTotals(ctx context.Context, companyID uint, since time.Time) (decimal.Decimal, error) {
	return m.sumTotals(ctx, companyID, since)
}

func (m *MockRepository) ArchiveWorkLogs(ctx context.Context, companyID uint, ids []uint, at time.Time) ([]uint, error) {
	return m.archiveWorkLogs(ctx, companyID, ids, at)
}

func (m *MockRepository) ListInvoiceable(ctx context.Context, companyID uint, ids []uint) ([]*models.WorkLog, error) {
	return m.listInvoiceable(ctx, companyID, ids)
}

func (m *MockRepository) InvoiceWorkLogs(ctx context.Context, companyID uint, ids []uint, at time.Time) ([]*models.WorkLog, error) {
	return m.invoiceWorkLogs(ctx, companyID, ids, at)
}

func (m *MockRepository) ActiveAssignment(ctx context.Context, companyID, userID uint) (*models.ProjectAssignment, error) {
	return m.activeAssignment(ctx, companyID, userID)
}

func (m *MockRepository) Close() error {
	return nil
}

// MockProducer is a test double for the Kafka producer.
type MockProducer struct {
	mu             sync.Mutex
	producedEvents []events.Event
	wg             *sync.WaitGroup
}

// Produce records the event and signals the wait group.
func (m *MockProducer) Produce(event events.Event) {
	m.mu.Lock()
	m.producedEvents = append(m.producedEvents, event)
	m.mu.Unlock()
	if m.wg != nil {
		m.wg.Done()
	}
}

// Events returns a copy of the events produced so far.
func (m *MockProducer) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.producedEvents))
	copy(out, m.producedEvents)
	return out
}

// Types returns the produced event types in arrival order.
func (m *MockProducer) Types() []events.EventType {
	var out []events.EventType
	for _, ev := range m.Events() {
		out = append(out, ev.Type)
	}
	return out
}

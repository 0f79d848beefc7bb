// Package controller implements the work-log service layer: the lifecycle
// engine, the query service and the invoice coordinator. It orchestrates
// repository operations and publishes lifecycle events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/worklog/internal/worklog/db"
	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/events"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(event events.Event)
}

// Repository defines the storage interface for work logs.
type Repository interface {
	CreateWorkLog(ctx context.Context, wl *models.WorkLog) error
	GetWorkLog(ctx context.Context, companyID, id uint) (*models.WorkLog, error)
	UpdateWorkLog(ctx context.Context, companyID, id uint, mutate db.Mutator) (*models.WorkLog, error)
	ListWorkLogs(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error)
	ListBySubmitter(ctx context.Context, companyID, userID uint, limit int) ([]*models.WorkLog, error)
	ListWorkers(ctx context.Context, companyID uint) ([]string, error)
	SumTotals(ctx context.Context, companyID uint, since time.Time) (decimal.Decimal, error)
	ArchiveWorkLogs(ctx context.Context, companyID uint, ids []uint, at time.Time) ([]uint, error)
	ListInvoiceable(ctx context.Context, companyID uint, ids []uint) ([]*models.WorkLog, error)
	InvoiceWorkLogs(ctx context.Context, companyID uint, ids []uint, at time.Time) ([]*models.WorkLog, error)
	ActiveAssignment(ctx context.Context, companyID, userID uint) (*models.ProjectAssignment, error)
	Close() error
}

// Option configures a WorkLogService.
type Option func(*WorkLogService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *WorkLogService) { s.now = now }
}

// WithWorkerConfirmation controls whether an edited entry must be confirmed
// or contested by its worker before a manager can approve or reject it.
func WithWorkerConfirmation(required bool) Option {
	return func(s *WorkLogService) { s.requireWorkerConfirmation = required }
}

// WithConflictBackOff sets the wait before the single retry that follows a
// write conflict.
func WithConflictBackOff(d time.Duration) Option {
	return func(s *WorkLogService) { s.conflictBackOff = d }
}

// WorkLogService provides the work-log operations on top of a repository,
// producing an event after every successful state change.
type WorkLogService struct {
	repo     Repository
	producer EventProducer
	logger   *zap.Logger

	now                       func() time.Time
	requireWorkerConfirmation bool
	conflictBackOff           time.Duration
}

// NewWorkLogService constructs a WorkLogService with a repository,
// an event producer, and a logger.
func NewWorkLogService(repo Repository, producer EventProducer, logger *zap.Logger, opts ...Option) *WorkLogService {
	s := &WorkLogService{
		repo:                      repo,
		producer:                  producer,
		logger:                    logger.Named("worklog_service"),
		now:                       time.Now,
		requireWorkerConfirmation: true,
		conflictBackOff:           20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WorkLogService) publish(event events.Event) {
	go func() {
		s.producer.Produce(event)
	}()
}

// retryOnConflict runs op and retries it exactly once when it fails with ErrConflict.
func (s *WorkLogService) retryOnConflict(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.conflictBackOff), 1),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !errors.Is(err, e.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

// storageFailure logs storage errors with their context and wraps err for the caller.
func (s *WorkLogService) storageFailure(op string, companyID, id uint, err error) error {
	if errors.Is(err, e.ErrStorageUnavailable) || errors.Is(err, e.ErrConflict) {
		fields := []zap.Field{
			zap.Error(err),
			zap.String("operation", op),
			zap.Uint("company_id", companyID),
		}
		if id != 0 {
			fields = append(fields, zap.Uint("worklog_id", id))
		}
		s.logger.Error("Storage operation failed", fields...)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// degraded reports whether a read failure should be served as an empty result.
func (s *WorkLogService) degraded(op string, companyID uint, err error) bool {
	if !errors.Is(err, e.ErrStorageUnavailable) {
		return false
	}
	s.logger.Warn("Serving empty result, storage unavailable",
		zap.Error(err),
		zap.String("operation", op),
		zap.Uint("company_id", companyID),
	)
	return true
}

func requireTenant(companyID uint) error {
	if companyID == 0 {
		return fmt.Errorf("%w: missing company", e.ErrInvalidInput)
	}
	return nil
}

package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
)

// MyWorkLogsLimit caps the operative's own listing.
const MyWorkLogsLimit = 100

// GetWorkLog returns a tenant's work log with its edit history.
func (s *WorkLogService) GetWorkLog(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	wl, err := s.repo.GetWorkLog(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, err
		}
		return nil, s.storageFailure("get work log", companyID, id, err)
	}
	return wl, nil
}

// ListWorkLogs returns the tenant's non-archived work logs matching f, newest first.
func (s *WorkLogService) ListWorkLogs(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: dateTo is before dateFrom", e.ErrInvalidInput)
	}
	logs, err := s.repo.ListWorkLogs(ctx, companyID, f)
	if err != nil {
		if s.degraded("list work logs", companyID, err) {
			return []*models.WorkLog{}, nil
		}
		return nil, fmt.Errorf("failed to list work logs: %w", err)
	}
	return logs, nil
}

// ListMyWorkLogs returns the latest entries submitted by userID, archived included.
func (s *WorkLogService) ListMyWorkLogs(ctx context.Context, companyID, userID uint) ([]*models.WorkLog, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, fmt.Errorf("%w: missing user", e.ErrInvalidInput)
	}
	logs, err := s.repo.ListBySubmitter(ctx, companyID, userID, MyWorkLogsLimit)
	if err != nil {
		if s.degraded("list own work logs", companyID, err) {
			return []*models.WorkLog{}, nil
		}
		return nil, fmt.Errorf("failed to list own work logs: %w", err)
	}
	return logs, nil
}

// ListWorkers returns the distinct worker names with non-archived entries.
func (s *WorkLogService) ListWorkers(ctx context.Context, companyID uint) ([]string, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	workers, err := s.repo.ListWorkers(ctx, companyID)
	if err != nil {
		if s.degraded("list workers", companyID, err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return workers, nil
}

// CostSummary totals the tenant's non-archived entries overall, over the
// trailing seven days and over the current calendar month.
func (s *WorkLogService) CostSummary(ctx context.Context, companyID uint) (*models.CostSummary, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	weekStart, monthStart := models.CostWindows(s.now())

	summary := &models.CostSummary{Total: decimal.Zero, LastSevenDays: decimal.Zero, ThisMonth: decimal.Zero}
	for _, w := range []struct {
		since time.Time
		into  *decimal.Decimal
	}{
		{time.Time{}, &summary.Total},
		{weekStart, &summary.LastSevenDays},
		{monthStart, &summary.ThisMonth},
	} {
		sum, err := s.repo.SumTotals(ctx, companyID, w.since)
		if err != nil {
			if s.degraded("cost summary", companyID, err) {
				return &models.CostSummary{Total: decimal.Zero, LastSevenDays: decimal.Zero, ThisMonth: decimal.Zero}, nil
			}
			return nil, fmt.Errorf("failed to compute cost summary: %w", err)
		}
		*w.into = sum.Round(2)
	}
	return summary, nil
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Filter narrows a work log listing. Zero values disable a criterion.
type Filter struct {
	// Worker matches the worker name exactly.
	Worker string
	// Status matches the lifecycle status exactly.
	Status Status
	// From and To bound the submission date, both inclusive at day granularity.
	From *time.Time
	To   *time.Time
	// Location is matched case-insensitively against the joined location fields.
	Location string
	// Search is matched case-insensitively against display id and description.
	Search string
}

// CostSummary aggregates the totals of non-archived entries.
type CostSummary struct {
	Total         decimal.Decimal
	LastSevenDays decimal.Decimal
	ThisMonth     decimal.Decimal
}

// CostWindows returns the start of the trailing seven days and of the
// calendar month containing now.
func CostWindows(now time.Time) (weekStart, monthStart time.Time) {
	weekStart = now.AddDate(0, 0, -7)
	monthStart = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return weekStart, monthStart
}

// Package models defines the domain model for work logs: entries, their
// edit history, submissions, query filters, cost summaries and invoices.
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DisplayIDPrefix prefixes every tenant-scoped display identifier.
const DisplayIDPrefix = "WL-"

// Edit history field names.
const (
	FieldQuantity  = "quantity"
	FieldUnitPrice = "unitPrice"
	FieldTotal     = "total"
)

// WorkLog is one unit of field work submitted for billing.
type WorkLog struct {
	// ID is the store-assigned identifier.
	ID uint
	// JobDisplayID is the tenant-scoped human readable identifier, e.g. WL-003.
	JobDisplayID string
	// CompanyID is the owning tenant. It never changes after creation.
	CompanyID         uint
	SubmittedByUserID uint
	ProjectID         uint
	// WorkerName is the display name of the submitting operative.
	WorkerName string

	Project   string
	Block     string
	Floor     string
	Apartment string
	Zone      string

	WorkType    string
	Quantity    decimal.NullDecimal
	UnitPrice   decimal.NullDecimal
	Total       decimal.NullDecimal
	Description string

	PhotoURLs       []string
	InvoiceFilePath string

	Status        Status
	WorkWasEdited bool
	Archived      bool
	// Version is bumped on every mutation and guards against lost updates.
	Version int

	SubmittedAt time.Time
	UpdatedAt   time.Time

	// History is the ordered edit ledger. Only populated on single-entry reads.
	History []EditRecord
}

// EditRecord is one field-level change made by a manager edit.
type EditRecord struct {
	Field      string
	OldValue   string
	NewValue   string
	EditorName string
	Timestamp  time.Time
}

// Amounts are stored exactly. These bounds keep them within what the store
// and the edit ledger columns accept.
const (
	MaxAmountIntegerDigits  = 18
	MaxAmountFractionDigits = 10
)

// AmountInRange reports whether d fits the amount bounds.
func AmountInRange(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	if int(d.NumDigits())+int(d.Exponent()) > MaxAmountIntegerDigits {
		return false
	}
	return d.Truncate(MaxAmountFractionDigits).Equal(d)
}

// AmountUpdate is a partial edit of the monetary fields. Nil fields are left untouched.
type AmountUpdate struct {
	Quantity  *decimal.Decimal
	UnitPrice *decimal.Decimal
	Total     *decimal.Decimal
}

// Empty reports whether the update names no field at all.
func (u AmountUpdate) Empty() bool {
	return u.Quantity == nil && u.UnitPrice == nil && u.Total == nil
}

// ApplyAmounts applies every field of u whose value differs numerically from
// the stored one and returns one EditRecord per applied field. When nothing
// differs the entry is left untouched and the result is empty.
func (w *WorkLog) ApplyAmounts(u AmountUpdate, editor string, at time.Time) []EditRecord {
	var records []EditRecord
	apply := func(field string, current *decimal.NullDecimal, next *decimal.Decimal) {
		if next == nil {
			return
		}
		if current.Valid && current.Decimal.Equal(*next) {
			return
		}
		records = append(records, EditRecord{
			Field:      field,
			OldValue:   FormatAmount(*current),
			NewValue:   next.String(),
			EditorName: editor,
			Timestamp:  at,
		})
		*current = decimal.NewNullDecimal(*next)
	}

	apply(FieldQuantity, &w.Quantity, u.Quantity)
	apply(FieldUnitPrice, &w.UnitPrice, u.UnitPrice)
	apply(FieldTotal, &w.Total, u.Total)

	if len(records) > 0 {
		w.WorkWasEdited = true
		w.Status = StatusWaitingWorker
		w.UpdatedAt = at
	}
	return records
}

// Location joins the non-empty location descriptors.
func (w *WorkLog) Location() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{w.Project, w.Block, w.Floor, w.Apartment, w.Zone} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// LineTotal is the billable amount of the entry: the stored total, or
// quantity × unit price when no total was recorded.
func (w *WorkLog) LineTotal() decimal.Decimal {
	if w.Total.Valid {
		return w.Total.Decimal
	}
	return DeriveTotal(w.Quantity, w.UnitPrice, decimal.NullDecimal{}).Decimal
}

// DeriveTotal returns total when present, otherwise quantity × unitPrice
// rounded to two places when both are present.
func DeriveTotal(quantity, unitPrice, total decimal.NullDecimal) decimal.NullDecimal {
	if total.Valid {
		return total
	}
	if quantity.Valid && unitPrice.Valid {
		return decimal.NewNullDecimal(quantity.Decimal.Mul(unitPrice.Decimal).Round(2))
	}
	return decimal.NullDecimal{}
}

// FormatAmount renders an optional amount, empty when absent.
func FormatAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// FormatDisplayID renders the n-th display identifier: WL-001 .. WL-999, WL-1000 ..
func FormatDisplayID(n int64) string {
	return fmt.Sprintf("%s%03d", DisplayIDPrefix, n)
}

// ParseDisplayID extracts the numeric suffix of a display identifier.
func ParseDisplayID(s string) (int64, bool) {
	if !strings.HasPrefix(s, DisplayIDPrefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(s, DisplayIDPrefix), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

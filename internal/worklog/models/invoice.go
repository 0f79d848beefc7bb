package models

import (
	"github.com/shopspring/decimal"
)

// InvoiceLine is one billed work log.
type InvoiceLine struct {
	WorkLogID    uint
	JobDisplayID string
	WorkerName   string
	Location     string
	WorkType     string
	Quantity     decimal.NullDecimal
	UnitPrice    decimal.NullDecimal
	Total        decimal.Decimal
}

// Invoice groups approved work logs for billing.
type Invoice struct {
	CompanyID  uint
	Lines      []InvoiceLine
	GrandTotal decimal.Decimal
}

// NewInvoice builds an invoice with one line per work log, in the given order.
func NewInvoice(companyID uint, logs []*WorkLog) *Invoice {
	inv := &Invoice{
		CompanyID:  companyID,
		Lines:      make([]InvoiceLine, 0, len(logs)),
		GrandTotal: decimal.Zero,
	}
	for _, wl := range logs {
		line := InvoiceLine{
			WorkLogID:    wl.ID,
			JobDisplayID: wl.JobDisplayID,
			WorkerName:   wl.WorkerName,
			Location:     wl.Location(),
			WorkType:     wl.WorkType,
			Quantity:     wl.Quantity,
			UnitPrice:    wl.UnitPrice,
			Total:        wl.LineTotal(),
		}
		inv.Lines = append(inv.Lines, line)
		inv.GrandTotal = inv.GrandTotal.Add(line.Total)
	}
	return inv
}

// IDs returns the work log ids billed by the invoice.
func (inv *Invoice) IDs() []uint {
	ids := make([]uint, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		ids = append(ids, l.WorkLogID)
	}
	return ids
}

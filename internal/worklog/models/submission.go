package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Submission carries an operative's new work log before it is stored.
type Submission struct {
	CompanyID  uint
	UserID     uint
	WorkerName string
	// Project names the site of a manager-recorded entry. Operative
	// submissions take it from the active assignment instead.
	Project string

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
}

// ProjectAssignment links an operative to the project they currently work on.
type ProjectAssignment struct {
	UserID      uint
	CompanyID   uint
	ProjectID   uint
	ProjectName string
	Active      bool
	AssignedAt  time.Time
}

// NewWorkLog builds the pending entry for s on the assigned project.
// The display identifier is left for the store to allocate.
func NewWorkLog(s *Submission, assignment *ProjectAssignment, now time.Time) *WorkLog {
	photos := make([]string, 0, len(s.PhotoURLs))
	for _, p := range s.PhotoURLs {
		if p = strings.TrimSpace(p); p != "" {
			photos = append(photos, p)
		}
	}
	workerName := strings.TrimSpace(s.WorkerName)
	if workerName == "" {
		workerName = "Operative"
	}
	return &WorkLog{
		CompanyID:         s.CompanyID,
		SubmittedByUserID: s.UserID,
		ProjectID:         assignment.ProjectID,
		WorkerName:        workerName,
		Project:           assignment.ProjectName,
		Block:             strings.TrimSpace(s.Block),
		Floor:             strings.TrimSpace(s.Floor),
		Apartment:         strings.TrimSpace(s.Apartment),
		Zone:              strings.TrimSpace(s.Zone),
		WorkType:          strings.TrimSpace(s.WorkType),
		Quantity:          s.Quantity,
		UnitPrice:         s.UnitPrice,
		Total:             DeriveTotal(s.Quantity, s.UnitPrice, s.Total),
		Description:       strings.TrimSpace(s.Description),
		PhotoURLs:         photos,
		InvoiceFilePath:   strings.TrimSpace(s.InvoiceFilePath),
		Status:            StatusPending,
		SubmittedAt:       now,
		UpdatedAt:         now,
	}
}

// Package models contains the persistence models of the work-log store,
// mapped with GORM.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// WorkLog is a row of the work_logs table.
// (company_id, job_display_id) is unique: display ids never repeat within a tenant.
type WorkLog struct {
	ID                uint   `gorm:"primaryKey"`
	CompanyID         uint   `gorm:"not null;uniqueIndex:idx_work_logs_company_job,priority:1;index:idx_work_logs_company_submitted,priority:1"`
	JobDisplayID      string `gorm:"size:32;not null;uniqueIndex:idx_work_logs_company_job,priority:2"`
	SubmittedByUserID uint   `gorm:"index"`
	ProjectID         uint
	WorkerName        string `gorm:"size:255;not null"`

	Project   *string `gorm:"size:255"`
	Block     *string `gorm:"size:100"`
	Floor     *string `gorm:"size:100"`
	Apartment *string `gorm:"size:100"`
	Zone      *string `gorm:"size:100"`

	WorkType    string `gorm:"size:255;not null"`
	Quantity    Amount
	UnitPrice   Amount
	Total       Amount
	Description *string `gorm:"size:3000"`

	PhotoURLs       datatypes.JSON `gorm:"column:photo_urls"`
	InvoiceFilePath *string        `gorm:"size:500"`

	Status        string `gorm:"size:32;not null;default:pending;index"`
	WorkWasEdited bool   `gorm:"not null;default:false"`
	Archived      bool   `gorm:"not null;default:false;index"`
	Version       int    `gorm:"not null;default:1"`

	SubmittedAt time.Time `gorm:"not null;index:idx_work_logs_company_submitted,priority:2"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// WorkLogEdit is a row of the append-only edit ledger.
type WorkLogEdit struct {
	ID         uint      `gorm:"primaryKey"`
	WorkLogID  uint      `gorm:"not null;index"`
	CompanyID  uint      `gorm:"not null"`
	Field      string    `gorm:"size:32;not null"`
	OldValue   string    `gorm:"size:64"`
	NewValue   string    `gorm:"size:64"`
	EditorName string    `gorm:"size:255;not null"`
	EditedAt   time.Time `gorm:"not null"`
}

// WorkLogSequence holds the last display number issued to a tenant.
// Its row is the serialization point for concurrent submissions.
type WorkLogSequence struct {
	CompanyID uint  `gorm:"primaryKey;autoIncrement:false"`
	LastValue int64 `gorm:"not null"`
}

// ProjectAssignment is a row of project_assignments, maintained by the
// personnel collaborator.
type ProjectAssignment struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index"`
	CompanyID   uint   `gorm:"not null;index"`
	ProjectID   uint   `gorm:"not null"`
	ProjectName string `gorm:"size:255"`
	Active      bool   `gorm:"not null"`
	AssignedAt  time.Time
}

// All lists every persistence model, in migration order.
func All() []interface{} {
	return []interface{}{
		&WorkLog{},
		&WorkLogEdit{},
		&WorkLogSequence{},
		&ProjectAssignment{},
	}
}

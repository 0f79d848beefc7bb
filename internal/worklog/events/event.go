// Package events publishes work-log lifecycle events to Kafka and consumes them back.
package events

import (
	"strconv"
	"time"

	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	WorkLogSubmitted EventType = "worklog_submitted"
	WorkLogEdited    EventType = "worklog_edited"
	WorkLogApproved  EventType = "worklog_approved"
	WorkLogRejected  EventType = "worklog_rejected"
	WorkLogConfirmed EventType = "worklog_confirmed"
	WorkLogContested EventType = "worklog_contested"
	WorkLogCompleted EventType = "worklog_completed"
	WorkLogArchived  EventType = "worklog_archived"
	WorkLogsInvoiced EventType = "worklogs_invoiced"
)

// Event is the message published for every state change. Single-entry events
// carry a WorkLog snapshot; batch events carry the affected ids.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	CompanyID  uint            `json:"company_id"`
	WorkLog    *WorkLogPayload `json:"work_log,omitempty"`
	WorkLogIDs []uint          `json:"work_log_ids,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// WorkLogPayload is the wire snapshot of a work log.
type WorkLogPayload struct {
	ID            uint     `json:"id"`
	JobDisplayID  string   `json:"job_display_id"`
	SubmittedBy   uint     `json:"submitted_by_user_id"`
	ProjectID     uint     `json:"project_id"`
	WorkerName    string   `json:"worker_name"`
	Location      string   `json:"location"`
	WorkType      string   `json:"work_type"`
	Quantity      *string  `json:"quantity,omitempty"`
	UnitPrice     *string  `json:"unit_price,omitempty"`
	Total         *string  `json:"total,omitempty"`
	Status        string   `json:"status"`
	WorkWasEdited bool     `json:"work_was_edited"`
	Archived      bool     `json:"archived"`
	Version       int      `json:"version"`
	PhotoURLs     []string `json:"photo_urls,omitempty"`
}

// NewWorkLogEvent builds an event for a single work log.
func NewWorkLogEvent(eventType EventType, wl *models.WorkLog) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		CompanyID:  wl.CompanyID,
		WorkLog:    newPayload(wl),
		OccurredAt: time.Now().UTC(),
	}
}

// NewBatchEvent builds an event covering several work logs of one tenant.
func NewBatchEvent(eventType EventType, companyID uint, ids []uint) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		CompanyID:  companyID,
		WorkLogIDs: ids,
		OccurredAt: time.Now().UTC(),
	}
}

// Key partitions events by tenant so one tenant's events stay ordered.
func (ev Event) Key() []byte {
	return []byte(strconv.FormatUint(uint64(ev.CompanyID), 10))
}

func newPayload(wl *models.WorkLog) *WorkLogPayload {
	return &WorkLogPayload{
		ID:            wl.ID,
		JobDisplayID:  wl.JobDisplayID,
		SubmittedBy:   wl.SubmittedByUserID,
		ProjectID:     wl.ProjectID,
		WorkerName:    wl.WorkerName,
		Location:      wl.Location(),
		WorkType:      wl.WorkType,
		Quantity:      amount(wl.Quantity),
		UnitPrice:     amount(wl.UnitPrice),
		Total:         amount(wl.Total),
		Status:        string(wl.Status),
		WorkWasEdited: wl.WorkWasEdited,
		Archived:      wl.Archived,
		Version:       wl.Version,
		PhotoURLs:     wl.PhotoURLs,
	}
}

func amount(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

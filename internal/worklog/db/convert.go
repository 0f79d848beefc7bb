package db

import (
	"encoding/json"
	"strings"

	dbmodels "github.com/gartstein/worklog/internal/worklog/db/models"
	"github.com/gartstein/worklog/internal/worklog/models"
	"gorm.io/datatypes"
)

func toRow(wl *models.WorkLog) (*dbmodels.WorkLog, error) {
	photos := wl.PhotoURLs
	if photos == nil {
		photos = []string{}
	}
	raw, err := json.Marshal(photos)
	if err != nil {
		return nil, err
	}
	return &dbmodels.WorkLog{
		ID:                wl.ID,
		CompanyID:         wl.CompanyID,
		JobDisplayID:      wl.JobDisplayID,
		SubmittedByUserID: wl.SubmittedByUserID,
		ProjectID:         wl.ProjectID,
		WorkerName:        wl.WorkerName,
		Project:           optional(wl.Project),
		Block:             optional(wl.Block),
		Floor:             optional(wl.Floor),
		Apartment:         optional(wl.Apartment),
		Zone:              optional(wl.Zone),
		WorkType:          wl.WorkType,
		Quantity:          dbmodels.NewAmount(wl.Quantity),
		UnitPrice:         dbmodels.NewAmount(wl.UnitPrice),
		Total:             dbmodels.NewAmount(wl.Total),
		Description:       optional(wl.Description),
		PhotoURLs:         datatypes.JSON(raw),
		InvoiceFilePath:   optional(wl.InvoiceFilePath),
		Status:            string(wl.Status),
		WorkWasEdited:     wl.WorkWasEdited,
		Archived:          wl.Archived,
		Version:           wl.Version,
		SubmittedAt:       wl.SubmittedAt.UTC(),
		UpdatedAt:         wl.UpdatedAt.UTC(),
	}, nil
}

func toDomain(row *dbmodels.WorkLog) *models.WorkLog {
	var photos []string
	if len(row.PhotoURLs) > 0 {
		// A malformed list is reported as empty rather than failing the read.
		_ = json.Unmarshal(row.PhotoURLs, &photos)
	}
	if photos == nil {
		photos = []string{}
	}
	return &models.WorkLog{
		ID:                row.ID,
		JobDisplayID:      row.JobDisplayID,
		CompanyID:         row.CompanyID,
		SubmittedByUserID: row.SubmittedByUserID,
		ProjectID:         row.ProjectID,
		WorkerName:        row.WorkerName,
		Project:           deref(row.Project),
		Block:             deref(row.Block),
		Floor:             deref(row.Floor),
		Apartment:         deref(row.Apartment),
		Zone:              deref(row.Zone),
		WorkType:          row.WorkType,
		Quantity:          row.Quantity.NullDecimal,
		UnitPrice:         row.UnitPrice.NullDecimal,
		Total:             row.Total.NullDecimal,
		Description:       deref(row.Description),
		PhotoURLs:         photos,
		InvoiceFilePath:   deref(row.InvoiceFilePath),
		Status:            models.Status(row.Status),
		WorkWasEdited:     row.WorkWasEdited,
		Archived:          row.Archived,
		Version:           row.Version,
		SubmittedAt:       row.SubmittedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

func editToDomain(row *dbmodels.WorkLogEdit) models.EditRecord {
	return models.EditRecord{
		Field:      row.Field,
		OldValue:   row.OldValue,
		NewValue:   row.NewValue,
		EditorName: row.EditorName,
		Timestamp:  row.EditedAt,
	}
}

func assignmentToDomain(row *dbmodels.ProjectAssignment) *models.ProjectAssignment {
	return &models.ProjectAssignment{
		UserID:      row.UserID,
		CompanyID:   row.CompanyID,
		ProjectID:   row.ProjectID,
		ProjectName: row.ProjectName,
		Active:      row.Active,
		AssignedAt:  row.AssignedAt,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

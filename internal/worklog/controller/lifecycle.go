package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/events"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/shopspring/decimal"
)

const (
	maxDescriptionLength = 3000
	maxTextFieldLength   = 255
	maxPhotos            = 20
	defaultEditorName    = "Manager"
)

// Submit validates an operative's submission, places it on the operative's
// active project and stores it as a new pending work log.
func (s *WorkLogService) Submit(ctx context.Context, sub *models.Submission) (*models.WorkLog, error) {
	if err := validateSubmission(sub); err != nil {
		return nil, err
	}

	assignment, err := s.repo.ActiveAssignment(ctx, sub.CompanyID, sub.UserID)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d has no active project", e.ErrNoProjectAssigned, sub.UserID)
		}
		return nil, s.storageFailure("resolve project assignment", sub.CompanyID, 0, err)
	}
	if assignment.ProjectID == 0 {
		return nil, fmt.Errorf("%w: user %d has no active project", e.ErrNoProjectAssigned, sub.UserID)
	}

	var wl *models.WorkLog
	err = s.retryOnConflict(ctx, func() error {
		wl = models.NewWorkLog(sub, assignment, s.now())
		return s.repo.CreateWorkLog(ctx, wl)
	})
	if err != nil {
		return nil, s.storageFailure("create work log", sub.CompanyID, 0, err)
	}

	s.publish(events.NewWorkLogEvent(events.WorkLogSubmitted, wl))
	return wl, nil
}

// Record stores an entry on behalf of a named worker, for work a manager
// logs directly rather than through an operative's submission. The project
// comes from the request and no assignment is consulted. The entry has no
// submitting user, so no operative can confirm or contest its edits.
func (s *WorkLogService) Record(ctx context.Context, sub *models.Submission) (*models.WorkLog, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: empty submission", e.ErrInvalidInput)
	}
	if strings.TrimSpace(sub.WorkerName) == "" {
		return nil, fmt.Errorf("%w: worker name is required", e.ErrInvalidInput)
	}
	if utf8.RuneCountInString(sub.Project) > maxTextFieldLength {
		return nil, fmt.Errorf("%w: project too long", e.ErrInvalidInput)
	}
	if err := validateFields(sub); err != nil {
		return nil, err
	}

	project := &models.ProjectAssignment{ProjectName: strings.TrimSpace(sub.Project)}
	var wl *models.WorkLog
	err := s.retryOnConflict(ctx, func() error {
		wl = models.NewWorkLog(sub, project, s.now())
		wl.SubmittedByUserID = 0
		return s.repo.CreateWorkLog(ctx, wl)
	})
	if err != nil {
		return nil, s.storageFailure("record work log", sub.CompanyID, 0, err)
	}

	s.publish(events.NewWorkLogEvent(events.WorkLogSubmitted, wl))
	return wl, nil
}

func validateSubmission(sub *models.Submission) error {
	if sub == nil {
		return fmt.Errorf("%w: empty submission", e.ErrInvalidInput)
	}
	if err := validateFields(sub); err != nil {
		return err
	}
	if sub.UserID == 0 {
		return fmt.Errorf("%w: missing submitter", e.ErrInvalidInput)
	}
	return nil
}

func validateFields(sub *models.Submission) error {
	if err := requireTenant(sub.CompanyID); err != nil {
		return err
	}
	if strings.TrimSpace(sub.WorkType) == "" {
		return fmt.Errorf("%w: work type is required", e.ErrInvalidInput)
	}
	for name, v := range map[string]string{
		"work type":  sub.WorkType,
		"block":      sub.Block,
		"floor":      sub.Floor,
		"apartment":  sub.Apartment,
		"zone":       sub.Zone,
		"workerName": sub.WorkerName,
	} {
		if utf8.RuneCountInString(v) > maxTextFieldLength {
			return fmt.Errorf("%w: %s too long", e.ErrInvalidInput, name)
		}
	}
	if utf8.RuneCountInString(sub.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: description too long", e.ErrInvalidInput)
	}
	if len(sub.PhotoURLs) > maxPhotos {
		return fmt.Errorf("%w: at most %d photos", e.ErrInvalidInput, maxPhotos)
	}
	for name, v := range map[string]decimal.NullDecimal{
		"quantity":  sub.Quantity,
		"unitPrice": sub.UnitPrice,
		"total":     sub.Total,
	} {
		if v.Valid {
			if err := validateAmount(name, v.Decimal); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateAmount(name string, d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s must not be negative", e.ErrInvalidInput, name)
	}
	if !models.AmountInRange(d) {
		return fmt.Errorf("%w: %s allows at most %d integer and %d decimal digits",
			e.ErrInvalidInput, name, models.MaxAmountIntegerDigits, models.MaxAmountFractionDigits)
	}
	return nil
}

// Edit applies a manager's partial amount update. Each field whose value
// differs numerically is recorded in the entry's history and moves the entry
// to waiting_worker; an update that changes nothing leaves the entry untouched.
func (s *WorkLogService) Edit(ctx context.Context, companyID, id uint, editor string, update models.AmountUpdate) (*models.WorkLog, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}
	for name, v := range map[string]*decimal.Decimal{
		"quantity":  update.Quantity,
		"unitPrice": update.UnitPrice,
		"total":     update.Total,
	} {
		if v == nil {
			continue
		}
		if err := validateAmount(name, *v); err != nil {
			return nil, err
		}
	}
	if update.Empty() {
		wl, err := s.repo.GetWorkLog(ctx, companyID, id)
		if err != nil {
			return nil, s.storageFailure("edit work log", companyID, id, err)
		}
		if wl.Archived {
			return nil, fmt.Errorf("%w: work log %s is archived", e.ErrInvalidTransition, wl.JobDisplayID)
		}
		return wl, nil
	}
	editor = strings.TrimSpace(editor)
	if editor == "" {
		editor = defaultEditorName
	}

	var changed bool
	var wl *models.WorkLog
	err := s.retryOnConflict(ctx, func() error {
		changed = false
		var err error
		wl, err = s.repo.UpdateWorkLog(ctx, companyID, id, func(w *models.WorkLog) ([]models.EditRecord, error) {
			if w.Archived {
				return nil, fmt.Errorf("%w: work log %s is archived", e.ErrInvalidTransition, w.JobDisplayID)
			}
			records := w.ApplyAmounts(update, editor, s.now())
			changed = len(records) > 0
			return records, nil
		})
		return err
	})
	if err != nil {
		return nil, s.storageFailure("edit work log", companyID, id, err)
	}

	if changed {
		s.publish(events.NewWorkLogEvent(events.WorkLogEdited, wl))
	}
	return wl, nil
}

// Approve records a manager's approval.
func (s *WorkLogService) Approve(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	return s.decide(ctx, "approve work log", companyID, id, models.StatusApproved, events.WorkLogApproved)
}

// Reject records a manager's rejection.
func (s *WorkLogService) Reject(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	return s.decide(ctx, "reject work log", companyID, id, models.StatusRejected, events.WorkLogRejected)
}

// decide overwrites the status unconditionally, except for entries still
// waiting on their worker when confirmation is required.
func (s *WorkLogService) decide(ctx context.Context, op string, companyID, id uint, target models.Status, eventType events.EventType) (*models.WorkLog, error) {
	return s.transition(ctx, op, companyID, id, eventType, func(w *models.WorkLog) error {
		if s.requireWorkerConfirmation && w.Status == models.StatusWaitingWorker {
			return fmt.Errorf("%w: work log %s is waiting for worker confirmation", e.ErrInvalidTransition, w.JobDisplayID)
		}
		w.Status = target
		return nil
	})
}

// Complete moves an approved entry to completed. Completing a completed entry is a no-op.
func (s *WorkLogService) Complete(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	return s.transition(ctx, "complete work log", companyID, id, events.WorkLogCompleted, func(w *models.WorkLog) error {
		switch w.Status {
		case models.StatusApproved:
			w.Status = models.StatusCompleted
		case models.StatusCompleted:
		default:
			return fmt.Errorf("%w: only approved work logs can be completed, %s is %s", e.ErrInvalidTransition, w.JobDisplayID, w.Status)
		}
		return nil
	})
}

// ConfirmEdit lets the submitting operative accept a manager's edit.
func (s *WorkLogService) ConfirmEdit(ctx context.Context, companyID, userID, id uint) (*models.WorkLog, error) {
	return s.respondToEdit(ctx, "confirm edit", companyID, userID, id, models.StatusEdited, events.WorkLogConfirmed)
}

// ContestEdit lets the submitting operative dispute a manager's edit,
// sending the entry back to pending review.
func (s *WorkLogService) ContestEdit(ctx context.Context, companyID, userID, id uint) (*models.WorkLog, error) {
	return s.respondToEdit(ctx, "contest edit", companyID, userID, id, models.StatusPending, events.WorkLogContested)
}

func (s *WorkLogService) respondToEdit(ctx context.Context, op string, companyID, userID, id uint, target models.Status, eventType events.EventType) (*models.WorkLog, error) {
	if userID == 0 {
		return nil, fmt.Errorf("%w: missing user", e.ErrInvalidInput)
	}
	return s.transition(ctx, op, companyID, id, eventType, func(w *models.WorkLog) error {
		if w.SubmittedByUserID != userID {
			return e.ErrNotFound
		}
		if w.Archived || w.Status != models.StatusWaitingWorker {
			return fmt.Errorf("%w: work log %s has no edit awaiting confirmation", e.ErrInvalidTransition, w.JobDisplayID)
		}
		w.Status = target
		return nil
	})
}

// Archive retires a single entry. Archiving an archived entry is a no-op success.
func (s *WorkLogService) Archive(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	return s.transition(ctx, "archive work log", companyID, id, events.WorkLogArchived, func(w *models.WorkLog) error {
		w.Archived = true
		return nil
	})
}

// ArchiveBulk archives the given entries and returns how many belonged to the
// tenant. Unknown and foreign ids are skipped without failing the batch.
func (s *WorkLogService) ArchiveBulk(ctx context.Context, companyID uint, ids []uint) (int, error) {
	if err := requireTenant(companyID); err != nil {
		return 0, err
	}
	valid := ids[:0:0]
	for _, id := range ids {
		if id != 0 {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, fmt.Errorf("%w: no valid work log ids", e.ErrInvalidInput)
	}

	archived, err := s.repo.ArchiveWorkLogs(ctx, companyID, valid, s.now())
	if err != nil {
		return 0, s.storageFailure("archive work logs", companyID, 0, err)
	}
	if len(archived) > 0 {
		s.publish(events.NewBatchEvent(events.WorkLogArchived, companyID, archived))
	}
	return len(archived), nil
}

// transition runs a status or flag change under the repository's row lock and
// publishes eventType when the entry actually changed.
func (s *WorkLogService) transition(ctx context.Context, op string, companyID, id uint, eventType events.EventType, apply func(*models.WorkLog) error) (*models.WorkLog, error) {
	if err := requireTenant(companyID); err != nil {
		return nil, err
	}

	var changed bool
	var wl *models.WorkLog
	err := s.retryOnConflict(ctx, func() error {
		changed = false
		var err error
		wl, err = s.repo.UpdateWorkLog(ctx, companyID, id, func(w *models.WorkLog) ([]models.EditRecord, error) {
			status, archived := w.Status, w.Archived
			if err := apply(w); err != nil {
				return nil, err
			}
			if w.Status != status || w.Archived != archived {
				changed = true
				w.UpdatedAt = s.now()
			}
			return nil, nil
		})
		return err
	})
	if err != nil {
		return nil, s.storageFailure(op, companyID, id, err)
	}

	if changed {
		s.publish(events.NewWorkLogEvent(eventType, wl))
	}
	return wl, nil
}

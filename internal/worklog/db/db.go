// Package db implements the work-log store on top of GORM: entries, the
// append-only edit ledger, the per-tenant display id sequence and the
// read-side queries.
package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbmodels "github.com/gartstein/worklog/internal/worklog/db/models"
	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite database file, or ":memory:".
	Path string
}

// Mutator changes a locked work log in place and returns the edit records to
// append to its ledger. Returning an error aborts the transaction.
type Mutator func(wl *models.WorkLog) ([]models.EditRecord, error)

func NewRepository(cfg *Config) (*Repository, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}
	if cfg.Driver == DriverPostgres {
		if err := repo.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		return repo, nil
	}

	if cfg.Path == ":memory:" {
		// Every pooled connection would otherwise open its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(dbmodels.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return repo, nil
}

func (c *Config) dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
		return postgres.Open(dsn), nil
	case DriverSQLite:
		if c.Path == "" || c.Path == ":memory:" {
			return sqlite.Open(":memory:"), nil
		}
		// Immediate transactions take the write lock up front, which serializes
		// sequence allocation across connections.
		return sqlite.Open("file:" + c.Path + "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", e.ErrInvalidInput, c.Driver)
	}
}

// CreateWorkLog allocates the next display id for the tenant and inserts wl
// in the same transaction. On success wl carries its id, display id and version.
func (r *Repository) CreateWorkLog(ctx context.Context, wl *models.WorkLog) error {
	var created *dbmodels.WorkLog
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := nextSequence(tx, wl.CompanyID)
		if err != nil {
			return err
		}
		row, err := toRow(wl)
		if err != nil {
			return err
		}
		row.ID = 0
		row.JobDisplayID = models.FormatDisplayID(n)
		row.Version = 1
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		return translate(err)
	}

	wl.ID = created.ID
	wl.JobDisplayID = created.JobDisplayID
	wl.Version = created.Version
	return nil
}

// nextSequence bumps the tenant's sequence row, creating it on first use from
// the highest display number already stored for the tenant.
func nextSequence(tx *gorm.DB, companyID uint) (int64, error) {
	res := tx.Model(&dbmodels.WorkLogSequence{}).
		Where("company_id = ?", companyID).
		Update("last_value", gorm.Expr("last_value + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		highest, err := highestDisplayNumber(tx, companyID)
		if err != nil {
			return 0, err
		}
		seq := dbmodels.WorkLogSequence{CompanyID: companyID, LastValue: highest + 1}
		// A concurrent first submission surfaces here as a duplicate key.
		if err := tx.Create(&seq).Error; err != nil {
			return 0, err
		}
		return seq.LastValue, nil
	}

	var seq dbmodels.WorkLogSequence
	if err := tx.Where("company_id = ?", companyID).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.LastValue, nil
}

func highestDisplayNumber(tx *gorm.DB, companyID uint) (int64, error) {
	var ids []string
	if err := tx.Model(&dbmodels.WorkLog{}).
		Where("company_id = ?", companyID).
		Pluck("job_display_id", &ids).Error; err != nil {
		return 0, err
	}
	var highest int64
	for _, id := range ids {
		if n, ok := models.ParseDisplayID(id); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// GetWorkLog returns the tenant's work log with its full edit history.
func (r *Repository) GetWorkLog(ctx context.Context, companyID, id uint) (*models.WorkLog, error) {
	var row dbmodels.WorkLog
	if err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", id, companyID).
		First(&row).Error; err != nil {
		return nil, translate(err)
	}
	wl := toDomain(&row)
	history, err := loadHistory(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, translate(err)
	}
	wl.History = history
	return wl, nil
}

// UpdateWorkLog locks the tenant's work log, lets mutate change it, then
// writes the new state and appends the returned edit records atomically.
// The write is conditional on the version read under the lock; a mismatch is
// reported as ErrConflict. When mutate changes nothing no write happens.
func (r *Repository) UpdateWorkLog(ctx context.Context, companyID, id uint, mutate Mutator) (*models.WorkLog, error) {
	var out *models.WorkLog
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row dbmodels.WorkLog
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND company_id = ?", id, companyID).
			First(&row).Error; err != nil {
			return err
		}

		wl := toDomain(&row)
		before := *wl
		records, err := mutate(wl)
		if err != nil {
			return err
		}

		if len(records) > 0 || wl.Status != before.Status || wl.Archived != before.Archived {
			if wl.UpdatedAt.Equal(before.UpdatedAt) {
				wl.UpdatedAt = time.Now()
			}
			res := tx.Model(&dbmodels.WorkLog{}).
				Where("id = ? AND company_id = ? AND version = ?", id, companyID, row.Version).
				Updates(map[string]interface{}{
					"quantity":        wl.Quantity,
					"unit_price":      wl.UnitPrice,
					"total":           wl.Total,
					"status":          string(wl.Status),
					"work_was_edited": wl.WorkWasEdited,
					"archived":        wl.Archived,
					"version":         row.Version + 1,
					"updated_at":      wl.UpdatedAt.UTC(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return e.ErrConflict
			}

			if len(records) > 0 {
				edits := make([]dbmodels.WorkLogEdit, 0, len(records))
				for _, rec := range records {
					edits = append(edits, dbmodels.WorkLogEdit{
						WorkLogID:  id,
						CompanyID:  companyID,
						Field:      rec.Field,
						OldValue:   rec.OldValue,
						NewValue:   rec.NewValue,
						EditorName: rec.EditorName,
						EditedAt:   rec.Timestamp.UTC(),
					})
				}
				if err := tx.Create(&edits).Error; err != nil {
					return err
				}
			}

			// Answer with what was stored, not with the caller's values.
			var stored dbmodels.WorkLog
			if err := tx.Where("id = ? AND company_id = ?", id, companyID).First(&stored).Error; err != nil {
				return err
			}
			wl = toDomain(&stored)
		}

		history, err := loadHistory(tx, id)
		if err != nil {
			return err
		}
		wl.History = history
		out = wl
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func loadHistory(tx *gorm.DB, workLogID uint) ([]models.EditRecord, error) {
	var edits []dbmodels.WorkLogEdit
	if err := tx.Where("work_log_id = ?", workLogID).Order("id").Find(&edits).Error; err != nil {
		return nil, err
	}
	history := make([]models.EditRecord, 0, len(edits))
	for i := range edits {
		history = append(history, editToDomain(&edits[i]))
	}
	return history, nil
}

// ListWorkLogs returns the tenant's non-archived work logs matching f, newest first.
func (r *Repository) ListWorkLogs(ctx context.Context, companyID uint, f models.Filter) ([]*models.WorkLog, error) {
	q := r.db.WithContext(ctx).Where("company_id = ? AND archived = ?", companyID, false)

	if f.Worker != "" {
		q = q.Where("worker_name = ?", f.Worker)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.From != nil {
		q = q.Where("submitted_at >= ?", startOfDay(*f.From))
	}
	if f.To != nil {
		q = q.Where("submitted_at < ?", startOfDay(*f.To).AddDate(0, 0, 1))
	}
	if f.Location != "" {
		q = q.Where("LOWER(COALESCE(project,'') || ' ' || COALESCE(block,'') || ' ' || COALESCE(floor,'') || ' ' || "+
			"COALESCE(apartment,'') || ' ' || COALESCE(zone,'')) LIKE ? ESCAPE '\\'", contains(f.Location))
	}
	if f.Search != "" {
		pattern := contains(f.Search)
		q = q.Where("(LOWER(job_display_id) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(description,'')) LIKE ? ESCAPE '\\')", pattern, pattern)
	}

	var rows []dbmodels.WorkLog
	if err := q.Order("submitted_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rowsToDomain(rows), nil
}

// ListBySubmitter returns the most recent work logs submitted by a user, archived included.
func (r *Repository) ListBySubmitter(ctx context.Context, companyID, userID uint, limit int) ([]*models.WorkLog, error) {
	var rows []dbmodels.WorkLog
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND submitted_by_user_id = ?", companyID, userID).
		Order("submitted_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rowsToDomain(rows), nil
}

// ListWorkers returns the distinct worker names of the tenant's non-archived work logs.
func (r *Repository) ListWorkers(ctx context.Context, companyID uint) ([]string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(&dbmodels.WorkLog{}).
		Where("company_id = ? AND archived = ?", companyID, false).
		Distinct("worker_name").
		Order("worker_name").
		Pluck("worker_name", &names).Error; err != nil {
		return nil, translate(err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out, nil
}

// SumTotals adds up the totals of the tenant's non-archived work logs
// submitted at or after since. A zero since sums everything.
func (r *Repository) SumTotals(ctx context.Context, companyID uint, since time.Time) (decimal.Decimal, error) {
	q := r.db.WithContext(ctx).Model(&dbmodels.WorkLog{}).
		Where("company_id = ? AND archived = ? AND total IS NOT NULL", companyID, false)
	if !since.IsZero() {
		q = q.Where("submitted_at >= ?", since.UTC())
	}

	// Summed here rather than with SUM(), which SQLite evaluates in floating point.
	var rows []struct {
		Total dbmodels.Amount
	}
	if err := q.Select("total").Scan(&rows).Error; err != nil {
		return decimal.Zero, translate(err)
	}
	sum := decimal.Zero
	for _, row := range rows {
		if row.Total.Valid {
			sum = sum.Add(row.Total.Decimal)
		}
	}
	return sum, nil
}

// ArchiveWorkLogs archives the given work logs within the tenant in one
// transaction and returns the ids that belong to the tenant. Ids of other
// tenants and unknown ids are skipped.
func (r *Repository) ArchiveWorkLogs(ctx context.Context, companyID uint, ids []uint, at time.Time) ([]uint, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []uint{}, nil
	}
	var owned []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&dbmodels.WorkLog{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("company_id = ? AND id IN ?", companyID, ids).
			Order("id").
			Pluck("id", &owned).Error; err != nil {
			return err
		}
		if len(owned) == 0 {
			return nil
		}
		return tx.Model(&dbmodels.WorkLog{}).
			Where("company_id = ? AND id IN ?", companyID, owned).
			Updates(map[string]interface{}{
				"archived":   true,
				"version":    gorm.Expr("version + 1"),
				"updated_at": at.UTC(),
			}).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	if owned == nil {
		owned = []uint{}
	}
	return owned, nil
}

// ListInvoiceable returns the tenant's approved, non-archived work logs,
// restricted to ids when any are given.
func (r *Repository) ListInvoiceable(ctx context.Context, companyID uint, ids []uint) ([]*models.WorkLog, error) {
	rows, err := invoiceable(r.db.WithContext(ctx), companyID, ids, false)
	if err != nil {
		return nil, translate(err)
	}
	return rowsToDomain(rows), nil
}

// InvoiceWorkLogs locks the invoiceable set selected by ids, archives exactly
// that set and returns it as it was before archival.
func (r *Repository) InvoiceWorkLogs(ctx context.Context, companyID uint, ids []uint, at time.Time) ([]*models.WorkLog, error) {
	var out []*models.WorkLog
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := invoiceable(tx, companyID, ids, true)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			out = []*models.WorkLog{}
			return nil
		}
		selected := make([]uint, 0, len(rows))
		for _, row := range rows {
			selected = append(selected, row.ID)
		}
		res := tx.Model(&dbmodels.WorkLog{}).
			Where("company_id = ? AND id IN ?", companyID, selected).
			Updates(map[string]interface{}{
				"archived":   true,
				"version":    gorm.Expr("version + 1"),
				"updated_at": at.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(selected)) {
			return e.ErrConflict
		}
		out = rowsToDomain(rows)
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func invoiceable(tx *gorm.DB, companyID uint, ids []uint, lock bool) ([]dbmodels.WorkLog, error) {
	q := tx.Where("company_id = ? AND archived = ? AND status = ?", companyID, false, string(models.StatusApproved))
	if ids = uniqueIDs(ids); len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rows []dbmodels.WorkLog
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ActiveAssignment returns the user's most recent active project assignment.
func (r *Repository) ActiveAssignment(ctx context.Context, companyID, userID uint) (*models.ProjectAssignment, error) {
	var row dbmodels.ProjectAssignment
	if err := r.db.WithContext(ctx).
		Where("company_id = ? AND user_id = ? AND active = ?", companyID, userID, true).
		Order("assigned_at DESC, id DESC").
		First(&row).Error; err != nil {
		return nil, translate(err)
	}
	return assignmentToDomain(&row), nil
}

// AssignProject deactivates the user's current assignments and makes a the active one.
func (r *Repository) AssignProject(ctx context.Context, a *models.ProjectAssignment) error {
	return translate(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&dbmodels.ProjectAssignment{}).
			Where("company_id = ? AND user_id = ? AND active = ?", a.CompanyID, a.UserID, true).
			Update("active", false).Error; err != nil {
			return err
		}
		assignedAt := a.AssignedAt
		if assignedAt.IsZero() {
			assignedAt = time.Now()
		}
		return tx.Create(&dbmodels.ProjectAssignment{
			UserID:      a.UserID,
			CompanyID:   a.CompanyID,
			ProjectID:   a.ProjectID,
			ProjectName: a.ProjectName,
			Active:      true,
			AssignedAt:  assignedAt.UTC(),
		}).Error
	}))
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// translate maps GORM errors onto the service's sentinel errors. Sentinels
// raised inside transactions pass through unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return e.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", e.ErrConflict, err)
	case errors.Is(err, e.ErrNotFound),
		errors.Is(err, e.ErrConflict),
		errors.Is(err, e.ErrInvalidInput),
		errors.Is(err, e.ErrInvalidTransition),
		errors.Is(err, e.ErrStorageUnavailable):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case isDataException(err):
		return fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	default:
		return fmt.Errorf("%w: %v", e.ErrStorageUnavailable, err)
	}
}

// isDataException reports a postgres rejection of a value, such as a
// numeric overflow, as opposed to an unavailable store.
func isDataException(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgerrcode.IsDataException(pgErr.Code)
}

func rowsToDomain(rows []dbmodels.WorkLog) []*models.WorkLog {
	out := make([]*models.WorkLog, 0, len(rows))
	for i := range rows {
		out = append(out, toDomain(&rows[i]))
	}
	return out
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// contains builds a case-insensitive substring pattern matching s literally.
func contains(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

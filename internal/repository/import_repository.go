package repository

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImportRepository handles import runs, their row results and report lines
type ImportRepository struct {
	db *gorm.DB
}

// NewImportRepository creates a new ImportRepository
func NewImportRepository(db *gorm.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

// --- Run Methods ---

// CreateRun stores a new run in status new
func (r *ImportRepository) CreateRun(ctx context.Context, run *models.ImportRun) error {
	if run.Status == "" {
		run.Status = models.ImportStatusNew
	}
	return translateError(r.db.WithContext(ctx).Create(run).Error)
}

// GetRun retrieves a run owned by a seller
func (r *ImportRepository) GetRun(ctx context.Context, sellerID int64, id uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.WithContext(ctx).
		Where("id = ? AND seller_id = ?", id, sellerID).
		First(&run).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &run, nil
}

// GetRunByID retrieves a run regardless of its owner
func (r *ImportRepository) GetRunByID(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		return nil, translateError(err)
	}
	return &run, nil
}

// ClaimRun moves a run from new to processing. Only one caller wins; the others
// get ErrRunNotClaimable.
func (r *ImportRepository) ClaimRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", id, models.ImportStatusNew).
		Updates(map[string]interface{}{
			"status":     models.ImportStatusProcessing,
			"started_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim import run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("import run %s: %w", id, importer.ErrRunNotClaimable)
	}
	return r.GetRunByID(ctx, id)
}

// IsCancelRequested reports whether cancellation was requested for a run
func (r *ImportRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var run models.ImportRun
	err := r.db.WithContext(ctx).
		Select("cancel_requested").
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		return false, translateError(err)
	}
	return run.CancelRequested, nil
}

// RequestCancel flags a pending or running run for cancellation
func (r *ImportRepository) RequestCancel(ctx context.Context, sellerID int64, id uuid.UUID) (*models.ImportRun, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ? AND seller_id = ? AND status IN ?", id, sellerID,
			[]models.ImportStatus{models.ImportStatusNew, models.ImportStatusProcessing}).
		Update("cancel_requested", true)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to request cancellation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		run, err := r.GetRun(ctx, sellerID, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("import run is %s: %w", run.Status, importer.ErrRunNotClaimable)
	}
	return r.GetRun(ctx, sellerID, id)
}

// CompleteRun finishes a processing run with its final counts
func (r *ImportRepository) CompleteRun(ctx context.Context, id uuid.UUID, totalRows, totalRowSuccess int) error {
	result := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", id, models.ImportStatusProcessing).
		Updates(map[string]interface{}{
			"status":            models.ImportStatusDone,
			"total_rows":        totalRows,
			"total_row_success": totalRowSuccess,
			"finished_at":       time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete import run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("import run %s: %w", id, importer.ErrRunNotClaimable)
	}
	return nil
}

// AbortRun finishes a processing run without row outcomes
func (r *ImportRepository) AbortRun(ctx context.Context, id uuid.UUID, status models.ImportStatus, message string) error {
	err := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ? AND status = ?", id, models.ImportStatusProcessing).
		Updates(map[string]interface{}{
			"status":      status,
			"message":     message,
			"finished_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to abort import run: %w", err)
	}
	return nil
}

// SetReportPath records where the rendered report of a run was stored
func (r *ImportRepository) SetReportPath(ctx context.Context, id uuid.UUID, path string) error {
	err := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ?", id).
		Update("report_path", path).Error
	if err != nil {
		return fmt.Errorf("failed to set report path: %w", err)
	}
	return nil
}

// --- Result Methods ---

// CreateResult stores the outcome of one row
func (r *ImportRepository) CreateResult(ctx context.Context, result *models.ImportResult) error {
	return translateError(r.db.WithContext(ctx).Create(result).Error)
}

// ListResults returns a page of a run's results in row order
func (r *ImportRepository) ListResults(ctx context.Context, importID uuid.UUID, status models.ResultStatus, page, limit int) ([]models.ImportResult, int64, error) {
	var results []models.ImportResult
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ImportResult{}).Where("import_id = ?", importID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("row_index ASC").Offset(offset).Limit(limit).Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

// GetResultByTag retrieves a result by its report tag
func (r *ImportRepository) GetResultByTag(ctx context.Context, tag string) (*models.ImportResult, error) {
	var result models.ImportResult
	if err := r.db.WithContext(ctx).Where("tag = ?", tag).First(&result).Error; err != nil {
		return nil, translateError(err)
	}
	return &result, nil
}

// ListUnreportedResults returns the results of a run that have no report line yet
func (r *ImportRepository) ListUnreportedResults(ctx context.Context, importID uuid.UUID) ([]models.ImportResult, error) {
	var results []models.ImportResult
	err := r.db.WithContext(ctx).
		Where("import_id = ? AND reported_at IS NULL", importID).
		Order("row_index ASC").
		Find(&results).Error
	return results, err
}

// --- Report Methods ---

// AttachReportLine inserts the report line of a result and marks the result
// reported. Attaching the same tag twice leaves a single line.
func (r *ImportRepository) AttachReportLine(ctx context.Context, line *models.ImportReportLine) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tag"}},
			DoNothing: true,
		}).Create(line).Error
		if err != nil {
			return fmt.Errorf("failed to insert report line: %w", err)
		}

		err = tx.Model(&models.ImportResult{}).
			Where("tag = ? AND reported_at IS NULL", line.Tag).
			Update("reported_at", time.Now()).Error
		if err != nil {
			return fmt.Errorf("failed to mark result reported: %w", err)
		}
		return nil
	})
}

// ListReportLines returns every report line of a run in row order
func (r *ImportRepository) ListReportLines(ctx context.Context, importID uuid.UUID) ([]models.ImportReportLine, error) {
	var lines []models.ImportReportLine
	err := r.db.WithContext(ctx).
		Where("import_id = ?", importID).
		Order("row_index ASC").
		Find(&lines).Error
	return lines, err
}

package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"catalog-service/internal/report"
	"catalog-service/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ReportStore is the persistence the report jobs need
type ReportStore interface {
	GetRunByID(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
	GetResultByTag(ctx context.Context, tag string) (*models.ImportResult, error)
	ListUnreportedResults(ctx context.Context, importID uuid.UUID) ([]models.ImportResult, error)
	AttachReportLine(ctx context.Context, line *models.ImportReportLine) error
	ListReportLines(ctx context.Context, importID uuid.UUID) ([]models.ImportReportLine, error)
	SetReportPath(ctx context.Context, id uuid.UUID, path string) error
}

// ReportAttacher appends row results to their run's report and renders the
// final report file. Both operations are safe to repeat.
type ReportAttacher struct {
	store  ReportStore
	files  storage.FileStore
	logger *logrus.Entry
}

func NewReportAttacher(store ReportStore, files storage.FileStore, logger *logrus.Logger) *ReportAttacher {
	return &ReportAttacher{
		store:  store,
		files:  files,
		logger: logger.WithField("component", "import-report"),
	}
}

// Attach adds the report line of one result. Results already reported are skipped.
func (a *ReportAttacher) Attach(ctx context.Context, job importer.ReportJob) error {
	result, err := a.store.GetResultByTag(ctx, job.Tag)
	if err != nil {
		if errors.Is(err, importer.ErrNotFound) {
			a.logger.WithField("tag", job.Tag).Warn("Report job references an unknown result")
			return nil
		}
		return fmt.Errorf("failed to load result %s: %w", job.Tag, err)
	}
	if result.ReportedAt != nil {
		return nil
	}
	return a.store.AttachReportLine(ctx, reportLine(result))
}

// Finalize attaches every result still missing from the report, renders the
// report workbook and stores it
func (a *ReportAttacher) Finalize(ctx context.Context, importID uuid.UUID) error {
	run, err := a.store.GetRunByID(ctx, importID)
	if err != nil {
		return fmt.Errorf("failed to load import run: %w", err)
	}

	pending, err := a.store.ListUnreportedResults(ctx, importID)
	if err != nil {
		return fmt.Errorf("failed to list unreported results: %w", err)
	}
	for i := range pending {
		if err := a.store.AttachReportLine(ctx, reportLine(&pending[i])); err != nil {
			return err
		}
	}

	lines, err := a.store.ListReportLines(ctx, importID)
	if err != nil {
		return fmt.Errorf("failed to list report lines: %w", err)
	}

	var buf bytes.Buffer
	if err := report.RenderXLSX(&buf, run, lines); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	key := storage.ReportKey(run.SellerID, run.ID)
	if err := a.files.Save(ctx, key, &buf, report.ContentTypeXLSX); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}
	if err := a.store.SetReportPath(ctx, run.ID, key); err != nil {
		return err
	}

	a.logger.WithFields(logrus.Fields{
		"importID": run.ID,
		"lines":    len(lines),
		"attached": len(pending),
	}).Info("Import report finalized")
	return nil
}

func reportLine(result *models.ImportResult) *models.ImportReportLine {
	line := &models.ImportReportLine{
		ImportID:  result.ImportID,
		Tag:       result.Tag,
		RowIndex:  result.RowIndex,
		Status:    result.Status,
		Message:   result.Message,
		ProductID: result.ProductID,
	}
	if result.SKU != nil {
		line.SKU = *result.SKU
	}
	if v, ok := result.Data[models.ColumnSellerSKU].(string); ok {
		line.SellerSKU = v
	}
	return line
}

// DirectReportQueue runs report jobs in the calling goroutine. It serves the
// operator CLI and deployments without NATS.
type DirectReportQueue struct {
	attacher *ReportAttacher
}

func NewDirectReportQueue(attacher *ReportAttacher) *DirectReportQueue {
	return &DirectReportQueue{attacher: attacher}
}

func (q *DirectReportQueue) EnqueueRowReport(ctx context.Context, job importer.ReportJob) error {
	return q.attacher.Attach(ctx, job)
}

func (q *DirectReportQueue) EnqueueFinalize(ctx context.Context, importID uuid.UUID) error {
	return q.attacher.Finalize(ctx, importID)
}

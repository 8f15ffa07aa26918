package importer

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"catalog-service/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ResultStore persists result records outside of any group transaction
type ResultStore interface {
	CreateResult(ctx context.Context, result *models.ImportResult) error
}

// ReportJob asks for one result to be appended to its run's report
type ReportJob struct {
	ImportID uuid.UUID `json:"importId"`
	Tag      string    `json:"tag"`
}

// ReportQueue schedules asynchronous report work
type ReportQueue interface {
	EnqueueRowReport(ctx context.Context, job ReportJob) error
	EnqueueFinalize(ctx context.Context, importID uuid.UUID) error
}

// PanicError is a panic recovered while processing a group
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Value)
}

// GroupRolledBackError is recorded for the rows of a group that were discarded
// because another row of the group failed
type GroupRolledBackError struct {
	FailedRow int
	Cause     string
}

func (e *GroupRolledBackError) Error() string {
	return fmt.Sprintf("not created because row %d of the same product failed: %s", e.FailedRow, e.Cause)
}

func (e *GroupRolledBackError) Code() string { return CodeGroupRolledBack }

// NotProcessedError is recorded for rows the run never reached
type NotProcessedError struct {
	Reason string
}

func (e *NotProcessedError) Error() string {
	return "row not processed: " + e.Reason
}

func (e *NotProcessedError) Code() string { return CodeNotProcessed }

// Capturer records one result per row and schedules its report line
type Capturer struct {
	results  ResultStore
	queue    ReportQueue
	logger   *logrus.Entry
	importID uuid.UUID

	recorded  atomic.Int64
	successes atomic.Int64
}

// NewCapturer creates a result capturer for a run
func NewCapturer(results ResultStore, queue ReportQueue, run *models.ImportRun, logger *logrus.Logger) *Capturer {
	return &Capturer{
		results:  results,
		queue:    queue,
		importID: run.ID,
		logger: logger.WithFields(logrus.Fields{
			"import_id": run.ID.String(),
			"seller_id": run.SellerID,
		}),
	}
}

// Success records a created row
func (c *Capturer) Success(ctx context.Context, raw RawRow, outcome *GroupOutcome, created CreatedRow) error {
	result := &models.ImportResult{
		RowIndex: raw.Index,
		GroupKey: outcome.Key,
		Data:     raw.Snapshot(),
		Status:   models.ResultStatusSuccess,
		Message:  "created",
	}
	if outcome.Kind.IsUpdate() {
		result.Message = "updated"
	}
	if outcome.Product != nil {
		id := outcome.Product.ID
		result.ProductID = &id
	}
	if created.Variant != nil {
		id := created.Variant.ID
		result.VariantID = &id
	}
	if created.Sellable != nil {
		id := created.Sellable.ID
		sku := created.Sellable.SKU
		result.SellableProductID = &id
		result.SKU = &sku
	}
	if err := c.record(ctx, result); err != nil {
		return err
	}
	c.successes.Add(1)
	return nil
}

// Failure records a row that did not produce catalog entities
func (c *Capturer) Failure(ctx context.Context, raw RawRow, groupKey int, cause error) error {
	status, code, message := Classify(cause)
	entry := c.logger.WithFields(logrus.Fields{
		"row":       raw.Index,
		"group_key": groupKey,
		"code":      code,
	})
	if status == models.ResultStatusFatal {
		entry.WithError(cause).Error("Import row failed with an unexpected error")
	} else {
		entry.Debugf("Import row rejected: %s", message)
	}

	return c.record(ctx, &models.ImportResult{
		RowIndex: raw.Index,
		GroupKey: groupKey,
		Data:     raw.Snapshot(),
		Status:   status,
		Code:     code,
		Message:  message,
	})
}

// Guard runs fn and converts a panic into a *PanicError logged with its stack trace
func (c *Capturer) Guard(groupKey int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			c.logger.WithFields(logrus.Fields{
				"group_key": groupKey,
				"panic":     fmt.Sprint(r),
				"stack":     string(stack),
			}).Error("Recovered panic while processing import group")
			err = &PanicError{Value: r, Stack: stack}
		}
	}()
	return fn()
}

// Recorded returns the number of result records written
func (c *Capturer) Recorded() int { return int(c.recorded.Load()) }

// Successes returns the number of success records written
func (c *Capturer) Successes() int { return int(c.successes.Load()) }

func (c *Capturer) record(ctx context.Context, result *models.ImportResult) error {
	result.ImportID = c.importID
	result.Tag = uuid.NewString()
	if err := c.results.CreateResult(ctx, result); err != nil {
		return fmt.Errorf("failed to store result of row %d: %w", result.RowIndex, err)
	}
	c.recorded.Add(1)

	if c.queue != nil {
		enqueueCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := c.queue.EnqueueRowReport(enqueueCtx, ReportJob{ImportID: c.importID, Tag: result.Tag}); err != nil {
			// the finalize job picks up rows whose report line is missing
			c.logger.WithError(err).WithField("tag", result.Tag).Warn("Failed to enqueue report job")
		}
	}
	return nil
}

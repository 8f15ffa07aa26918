package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"catalog-service/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrRunNotClaimable is returned when a run is not in state new
var ErrRunNotClaimable = errors.New("import run is not in state new")

// ErrRunInterrupted is returned when the caller's context ends before every group was scheduled
var ErrRunInterrupted = errors.New("import run was interrupted")

const reasonInterrupted = "import run was interrupted"

// RunStore persists the lifecycle of import runs
type RunStore interface {
	// ClaimRun moves a run from new to processing atomically
	ClaimRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	CompleteRun(ctx context.Context, id uuid.UUID, totalRows, totalRowSuccess int) error
	AbortRun(ctx context.Context, id uuid.UUID, status models.ImportStatus, message string) error
}

// FileSource opens uploaded files. Missing files are reported with an error wrapping ErrNotFound.
type FileSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// CategoryResolver maps a category name to its id. Unknown names wrap ErrNotFound.
type CategoryResolver interface {
	ResolveCategory(ctx context.Context, sellerID int64, name string) (string, error)
}

// SellerVerifier checks that a seller exists. Unknown sellers wrap ErrNotFound.
type SellerVerifier interface {
	VerifySeller(ctx context.Context, sellerID int64) error
}

// Dependencies are the collaborators of the orchestrator. Categories, Sellers,
// Reports and Hooks are optional.
type Dependencies struct {
	Runs       RunStore
	Results    ResultStore
	Catalog    CatalogStore
	Schemas    SchemaSource
	Files      FileSource
	Reports    ReportQueue
	Claims     func(runID uuid.UUID) ClaimSet
	Categories CategoryResolver
	Sellers    SellerVerifier
	Hooks      []PostCommitHook
}

// Options tune run processing
type Options struct {
	GroupWorkers    int
	RunTimeout      time.Duration
	MaxVariants     int
	BarcodePolicies map[models.ImportKind]BarcodePolicy
}

// RunSummary is the final state of a processed run
type RunSummary struct {
	ImportID        uuid.UUID
	Status          models.ImportStatus
	TotalRows       int
	TotalRowSuccess int
	Message         string
}

// Orchestrator drives import runs from new to done
type Orchestrator struct {
	deps    Dependencies
	opts    Options
	schemas *SchemaResolver
	logger  *logrus.Logger
}

// NewOrchestrator creates a new import orchestrator
func NewOrchestrator(deps Dependencies, opts Options, logger *logrus.Logger) *Orchestrator {
	if opts.GroupWorkers < 1 {
		opts.GroupWorkers = 1
	}
	if deps.Claims == nil {
		deps.Claims = func(uuid.UUID) ClaimSet { return NewMemoryClaimSet() }
	}
	return &Orchestrator{
		deps:    deps,
		opts:    opts,
		schemas: NewSchemaResolver(deps.Schemas),
		logger:  logger,
	}
}

// Run claims and processes one import run. Row-level problems end up in result
// records; the returned error is only set when the run could not be processed.
func (o *Orchestrator) Run(ctx context.Context, runID uuid.UUID) (*RunSummary, error) {
	run, err := o.deps.Runs.ClaimRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	logger := o.logger.WithFields(logrus.Fields{
		"import_id": run.ID.String(),
		"seller_id": run.SellerID,
		"type":      run.Type,
	})
	logger.Info("Import run started")

	runCtx := ctx
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}
	// results and in-flight groups must outlive the run deadline
	storeCtx := context.WithoutCancel(ctx)

	schema, rows, err := o.prepare(runCtx, run)
	if err != nil {
		if IsRunLevel(err) {
			logger.WithError(err).Warn("Import run aborted")
			return o.abort(storeCtx, run, err.Error())
		}
		return o.fail(storeCtx, run, err, logger)
	}

	p := &runProcess{
		run:        run,
		normalizer: NewNormalizer(schema, run.Type),
		dedup:      NewDedupValidator(o.deps.Catalog, o.deps.Claims(run.ID), o.opts.BarcodePolicies[run.Type], run.Type, run.SellerID),
		creator:    NewCreator(o.deps.Catalog, run),
		capturer:   NewCapturer(o.deps.Results, o.deps.Reports, run, o.logger),
		categories: o.deps.Categories,
		hooks:      o.deps.Hooks,
		logger:     logger,
	}

	groups, rejected := BuildGroups(run.Type, schema, o.opts.MaxVariants, rows)
	for _, r := range rejected {
		if err := p.capturer.Failure(storeCtx, r.Row, r.GroupKey, r.Err); err != nil {
			return o.fail(storeCtx, run, err, logger)
		}
	}

	queue := make(chan ImportGroup)
	var wg sync.WaitGroup
	for i := 0; i < o.opts.GroupWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range queue {
				p.processGroup(storeCtx, group)
			}
		}()
	}

	next := 0
	stopReason := ""
schedule:
	for ; next < len(groups); next++ {
		if p.err() != nil {
			break
		}
		if reason, stop := o.shouldStop(runCtx, run.ID, logger); stop {
			stopReason = reason
			break
		}
		select {
		case queue <- groups[next]:
		case <-runCtx.Done():
			stopReason, _ = o.shouldStop(runCtx, run.ID, logger)
			break schedule
		}
	}
	close(queue)
	wg.Wait()

	if err := p.err(); err != nil {
		return o.fail(storeCtx, run, err, logger)
	}

	if next < len(groups) {
		logger.WithField("remaining_groups", len(groups)-next).Warnf("Import run stopped early: %s", stopReason)
		for _, group := range groups[next:] {
			for _, raw := range group.Rows {
				if err := p.capturer.Failure(storeCtx, raw, group.Key, &NotProcessedError{Reason: stopReason}); err != nil {
					return o.fail(storeCtx, run, err, logger)
				}
			}
		}
	}

	// a stopped process leaves the run failed so the file can be submitted again
	if stopReason == reasonInterrupted {
		return o.fail(storeCtx, run, ErrRunInterrupted, logger)
	}

	successes := p.capturer.Successes()
	if err := o.deps.Runs.CompleteRun(storeCtx, run.ID, len(rows), successes); err != nil {
		return o.fail(storeCtx, run, fmt.Errorf("failed to complete import run: %w", err), logger)
	}
	if o.deps.Reports != nil {
		if err := o.deps.Reports.EnqueueFinalize(storeCtx, run.ID); err != nil {
			logger.WithError(err).Error("Failed to enqueue report finalization")
		}
	}

	logger.WithFields(logrus.Fields{
		"total_rows":        len(rows),
		"total_row_success": successes,
	}).Info("Import run finished")

	summary := &RunSummary{
		ImportID:        run.ID,
		Status:          models.ImportStatusDone,
		TotalRows:       len(rows),
		TotalRowSuccess: successes,
	}
	if stopReason != "" {
		summary.Message = stopReason
	}
	return summary, nil
}

func (o *Orchestrator) prepare(ctx context.Context, run *models.ImportRun) (*Schema, []RawRow, error) {
	if o.deps.Sellers != nil {
		if err := o.deps.Sellers.VerifySeller(ctx, run.SellerID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil, &SellerNotFoundError{SellerID: run.SellerID}
			}
			return nil, nil, fmt.Errorf("failed to verify seller: %w", err)
		}
	}

	schema, err := o.schemas.Resolve(ctx, run.SellerID, run.AttributeSetID)
	if err != nil {
		return nil, nil, err
	}

	file, err := o.deps.Files.Open(ctx, run.FilePath)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, &FileFormatError{Reason: "uploaded file no longer exists"}
		}
		return nil, nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()

	rows, err := DecodeFile(run.FileFormat, file, run.Type)
	if err != nil {
		return nil, nil, err
	}
	return schema, rows, nil
}

func (o *Orchestrator) shouldStop(ctx context.Context, runID uuid.UUID, logger *logrus.Entry) (string, bool) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "import run timed out", true
		}
		return reasonInterrupted, true
	}
	cancelled, err := o.deps.Runs.IsCancelRequested(ctx, runID)
	if err != nil {
		logger.WithError(err).Warn("Failed to check cancellation flag")
		return "", false
	}
	if cancelled {
		return "import run was cancelled", true
	}
	return "", false
}

func (o *Orchestrator) abort(ctx context.Context, run *models.ImportRun, message string) (*RunSummary, error) {
	if err := o.deps.Runs.AbortRun(ctx, run.ID, models.ImportStatusDone, message); err != nil {
		return nil, fmt.Errorf("failed to record run-level error: %w", err)
	}
	return &RunSummary{ImportID: run.ID, Status: models.ImportStatusDone, Message: message}, nil
}

func (o *Orchestrator) fail(ctx context.Context, run *models.ImportRun, cause error, logger *logrus.Entry) (*RunSummary, error) {
	logger.WithError(cause).Error("Import run failed")
	if err := o.deps.Runs.AbortRun(ctx, run.ID, models.ImportStatusFailed, cause.Error()); err != nil {
		logger.WithError(err).Error("Failed to mark import run as failed")
	}
	return &RunSummary{ImportID: run.ID, Status: models.ImportStatusFailed, Message: cause.Error()}, cause
}

// runProcess is the per-run state shared by group workers
type runProcess struct {
	run        *models.ImportRun
	normalizer *Normalizer
	dedup      *DedupValidator
	creator    *Creator
	capturer   *Capturer
	categories CategoryResolver
	hooks      []PostCommitHook
	logger     *logrus.Entry

	mu       sync.Mutex
	storeErr error
}

func (p *runProcess) processGroup(ctx context.Context, group ImportGroup) {
	var (
		outcome *GroupOutcome
		claims  Claims
	)
	err := p.capturer.Guard(group.Key, func() error {
		var err error
		outcome, err = p.persistGroup(ctx, group, &claims)
		return err
	})
	if err != nil {
		if releaseErr := p.dedup.Release(ctx, claims); releaseErr != nil {
			p.logger.WithError(releaseErr).WithField("group_key", group.Key).Warn("Failed to release claimed keys")
		}
		p.recordGroupFailure(ctx, group, err)
		return
	}

	byRow := make(map[int]CreatedRow, len(outcome.Rows))
	for _, created := range outcome.Rows {
		byRow[created.RowIndex] = created
	}
	for _, raw := range group.Rows {
		if err := p.capturer.Success(ctx, raw, outcome, byRow[raw.Index]); err != nil {
			p.setErr(err)
			return
		}
	}

	runHooks(ctx, p.hooks, p.run, outcome, p.logger)
}

func (p *runProcess) persistGroup(ctx context.Context, group ImportGroup, claims *Claims) (*GroupOutcome, error) {
	rows, err := p.normalizer.NormalizeGroup(group.Rows)
	if err != nil {
		return nil, err
	}

	categoryID := ""
	if !p.run.Type.IsUpdate() {
		categoryID, err = p.resolveCategory(ctx, rows[0].Category())
		if err != nil {
			return nil, &RowError{Row: rows[0].Index(), Err: err}
		}
	}

	validated := make([]ImportRow, 0, len(rows))
	for _, row := range rows {
		checked, rowClaims, err := p.dedup.Validate(ctx, row)
		if err != nil {
			return nil, &RowError{Row: row.Index(), Err: err}
		}
		*claims = append(*claims, rowClaims...)
		validated = append(validated, checked)
	}

	return p.creator.Persist(ctx, ValidatedGroup{Key: group.Key, Rows: validated, CategoryID: categoryID})
}

func (p *runProcess) resolveCategory(ctx context.Context, name string) (string, error) {
	if p.categories == nil {
		return name, nil
	}
	id, err := p.categories.ResolveCategory(ctx, p.run.SellerID, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", &CategoryNotFoundError{Name: name}
		}
		return "", fmt.Errorf("failed to resolve category %q: %w", name, err)
	}
	return id, nil
}

func (p *runProcess) recordGroupFailure(ctx context.Context, group ImportGroup, cause error) {
	failedRow := rowIndexOf(cause)
	_, _, message := Classify(cause)
	for _, raw := range group.Rows {
		rowErr := cause
		if failedRow != 0 && raw.Index != failedRow {
			rowErr = &GroupRolledBackError{FailedRow: failedRow, Cause: message}
		}
		if err := p.capturer.Failure(ctx, raw, group.Key, rowErr); err != nil {
			p.setErr(err)
			return
		}
	}
}

func (p *runProcess) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.storeErr == nil {
		p.storeErr = err
	}
}

func (p *runProcess) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storeErr
}

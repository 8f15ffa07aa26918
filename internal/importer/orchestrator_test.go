package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"catalog-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	runs         *fakeRuns
	results      *fakeResults
	catalog      *fakeCatalog
	reports      *fakeReports
	files        *fakeFiles
	orchestrator *Orchestrator
}

func newHarness(t *testing.T, opts Options, hooks ...PostCommitHook) *harness {
	t.Helper()
	h := &harness{
		runs:    newFakeRuns(),
		results: &fakeResults{},
		catalog: newFakeCatalog(),
		reports: &fakeReports{},
		files:   &fakeFiles{files: make(map[string][]byte)},
	}
	h.orchestrator = NewOrchestrator(Dependencies{
		Runs:    h.runs,
		Results: h.results,
		Catalog: h.catalog,
		Schemas: &fakeSchemas{sets: map[uint]*models.AttributeSet{3: testAttributeSet(), 4: testFlatAttributeSet()}},
		Files:   h.files,
		Reports: h.reports,
		Hooks:   hooks,
	}, opts, quietLogger())
	return h
}

func (h *harness) submit(kind models.ImportKind, data []byte) *models.ImportRun {
	path := fmt.Sprintf("imports/%d/%s.csv", testSellerID, uuid.NewString())
	h.files.files[path] = data
	return h.runs.add(&models.ImportRun{
		SellerID:       testSellerID,
		Type:           kind,
		AttributeSetID: 3,
		FilePath:       path,
		FileFormat:     models.ImportFormatCSV,
		CreatedBy:      "user-1",
	})
}

func (h *harness) run(t *testing.T, run *models.ImportRun) *RunSummary {
	t.Helper()
	summary, err := h.orchestrator.Run(context.Background(), run.ID)
	require.NoError(t, err)
	return summary
}

// line builds a CSV row matching fullHeaders
func line(name, sellerSKU, uom, parent, color, size, barcode string) []string {
	category := ""
	if name != "" {
		category = "Apparel"
	}
	return []string{name, sellerSKU, "", uom, category, barcode, parent, "", "", color, size, "", ""}
}

func TestOrchestrator_InvalidUnitRollsBackWholeGroup(t *testing.T) {
	h := newHarness(t, Options{})
	run := h.submit(models.ImportKindCreateFull, csvFile(
		line("Tee", "TEE-1", "pc", "", "Red", "M", ""),
		line("", "TEE-2", "pc", "2", "Blue", "M", ""),
		line("", "TEE-3", "", "2", "Green", "M", ""),
	))

	summary := h.run(t, run)

	assert.Equal(t, models.ImportStatusDone, summary.Status)
	assert.Equal(t, 0, summary.TotalRowSuccess)
	assert.Equal(t, 0, h.catalog.productCount())

	stored := h.runs.get(run.ID)
	assert.Equal(t, models.ImportStatusDone, stored.Status)
	assert.Equal(t, 3, stored.TotalRows)
	assert.Equal(t, 0, stored.TotalRowSuccess)

	results := h.results.byRow()
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotEqual(t, models.ResultStatusSuccess, r.Status)
		assert.Nil(t, r.ProductID)
		assert.Equal(t, 2, r.GroupKey)
	}
	assert.Equal(t, CodeInvalidUnitOfMeasure, results[4].Code)
	assert.Equal(t, CodeGroupRolledBack, results[2].Code)
	assert.Equal(t, CodeGroupRolledBack, results[3].Code)
	assert.Contains(t, results[3].Message, "row 4")
}

func TestOrchestrator_StandaloneGroupsAreIndependent(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.seedSellable("S7-DUP", "OTHER")
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("Mug", "MUG", "pc", "", "", "", ""),
		line("Dup", "DUP", "pc", "", "", "", ""),
	))

	summary := h.run(t, run)

	assert.Equal(t, 1, summary.TotalRowSuccess)
	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, 2, h.catalog.productCount(), "seeded product plus one created")

	results := h.results.byRow()
	require.Len(t, results, 2)
	assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
	require.NotNil(t, results[2].ProductID)
	assert.Equal(t, "S7-MUG", *results[2].SKU)
	assert.Equal(t, models.ResultStatusFailure, results[3].Status)
	assert.Equal(t, CodeDuplicateSKU, results[3].Code)
}

func TestOrchestrator_FailingGroupDoesNotAffectOthers(t *testing.T) {
	h := newHarness(t, Options{})
	run := h.submit(models.ImportKindCreateFull, csvFile(
		line("A", "A-1", "pc", "", "Red", "S", ""),
		line("", "A-2", "pc", "2", "Red", "M", ""),
		line("B", "B-1", "pc", "", "Purple", "S", ""),
		line("", "B-2", "pc", "4", "Red", "M", ""),
		line("C", "C-1", "pc", "", "Blue", "L", ""),
	))

	summary := h.run(t, run)

	assert.Equal(t, 3, summary.TotalRowSuccess)
	assert.Equal(t, 2, h.catalog.productCount())
	results := h.results.byRow()
	assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
	assert.Equal(t, models.ResultStatusSuccess, results[3].Status)
	assert.Equal(t, CodeInvalidAttributeValue, results[4].Code)
	assert.Equal(t, CodeGroupRolledBack, results[5].Code)
	assert.Equal(t, models.ResultStatusSuccess, results[6].Status)
	assert.Equal(t, results[2].ProductID, results[3].ProductID)
}

func TestOrchestrator_ResubmittingSameFileFailsEveryRow(t *testing.T) {
	h := newHarness(t, Options{})
	file := csvFile(
		line("A", "A-1", "pc", "", "Red", "S", "100"),
		line("", "A-2", "pc", "2", "Red", "M", "101"),
		line("B", "B-1", "pc", "", "Blue", "S", "102"),
	)

	first := h.run(t, h.submit(models.ImportKindCreateFull, file))
	assert.Equal(t, 3, first.TotalRowSuccess)

	h.results = &fakeResults{}
	h.orchestrator.deps.Results = h.results
	second := h.run(t, h.submit(models.ImportKindCreateFull, file))

	assert.Equal(t, 0, second.TotalRowSuccess)
	assert.Equal(t, 2, h.catalog.productCount())
	assert.Equal(t, 3, h.catalog.sellableCount())
	for _, r := range h.results.byRow() {
		assert.Equal(t, models.ResultStatusFailure, r.Status)
	}
	assert.Equal(t, CodeDuplicateSKU, h.results.byRow()[4].Code)
}

func TestOrchestrator_BarcodePolicies(t *testing.T) {
	file := csvFile(
		line("A", "A-1", "pc", "", "Red", "S", "555"),
		line("B", "B-1", "pc", "", "Red", "S", "555"),
	)

	t.Run("reject", func(t *testing.T) {
		h := newHarness(t, Options{BarcodePolicies: map[models.ImportKind]BarcodePolicy{
			models.ImportKindCreateFull: BarcodePolicyReject,
		}})
		summary := h.run(t, h.submit(models.ImportKindCreateFull, file))

		assert.Equal(t, 1, summary.TotalRowSuccess)
		results := h.results.byRow()
		assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
		assert.Equal(t, CodeDuplicateSKU, results[3].Code)
		assert.Contains(t, results[3].Message, "barcode")
	})

	t.Run("suffix", func(t *testing.T) {
		h := newHarness(t, Options{BarcodePolicies: map[models.ImportKind]BarcodePolicy{
			models.ImportKindCreateFull: BarcodePolicySuffix,
		}})
		summary := h.run(t, h.submit(models.ImportKindCreateFull, file))

		assert.Equal(t, 2, summary.TotalRowSuccess)
		assert.Contains(t, h.catalog.barcodes, "555")
		assert.Contains(t, h.catalog.barcodes, "555-1")
	})
}

func TestOrchestrator_Timeout(t *testing.T) {
	h := newHarness(t, Options{})
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("A", "A", "pc", "", "", "", ""),
		line("B", "B", "pc", "", "", "", ""),
	))

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	summary, err := h.orchestrator.Run(ctx, run.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ImportStatusDone, summary.Status)
	assert.Equal(t, "import run timed out", summary.Message)
	assert.Equal(t, 0, h.catalog.productCount())
	for _, r := range h.results.byRow() {
		assert.Equal(t, CodeNotProcessed, r.Code)
		assert.Equal(t, models.ResultStatusFailure, r.Status)
	}
	assert.Equal(t, 2, h.results.count())
}

// stallingHook holds the only group worker after the first commit
type stallingHook struct {
	once    sync.Once
	onFirst func()
	stall   time.Duration
}

func (h *stallingHook) Name() string { return "stalling" }

func (h *stallingHook) AfterCommit(context.Context, *models.ImportRun, *GroupOutcome) error {
	h.once.Do(func() {
		if h.onFirst != nil {
			h.onFirst()
		}
		time.Sleep(h.stall)
	})
	return nil
}

func TestOrchestrator_TimeoutWhileWaitingForWorker(t *testing.T) {
	h := newHarness(t, Options{GroupWorkers: 1, RunTimeout: 50 * time.Millisecond}, &stallingHook{stall: 300 * time.Millisecond})
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("A", "A", "pc", "", "", "", ""),
		line("B", "B", "pc", "", "", "", ""),
		line("C", "C", "pc", "", "", "", ""),
	))

	summary := h.run(t, run)

	assert.Equal(t, models.ImportStatusDone, summary.Status)
	assert.Equal(t, "import run timed out", summary.Message)
	assert.Equal(t, 1, summary.TotalRowSuccess)
	assert.Equal(t, 1, h.catalog.productCount())
	results := h.results.byRow()
	assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
	assert.Equal(t, CodeNotProcessed, results[3].Code)
	assert.Equal(t, CodeNotProcessed, results[4].Code)
}

func TestOrchestrator_InterruptedRunIsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, Options{GroupWorkers: 1}, &stallingHook{onFirst: cancel, stall: 100 * time.Millisecond})
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("A", "A", "pc", "", "", "", ""),
		line("B", "B", "pc", "", "", "", ""),
		line("C", "C", "pc", "", "", "", ""),
	))

	summary, err := h.orchestrator.Run(ctx, run.ID)
	require.ErrorIs(t, err, ErrRunInterrupted)

	assert.Equal(t, models.ImportStatusFailed, summary.Status)
	stored := h.runs.get(run.ID)
	assert.Equal(t, models.ImportStatusFailed, stored.Status)
	require.NotNil(t, stored.Message)
	assert.Equal(t, "import run was interrupted", *stored.Message)
	assert.Empty(t, h.reports.finalized)

	results := h.results.byRow()
	assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
	assert.Equal(t, CodeNotProcessed, results[3].Code)
	assert.Equal(t, CodeNotProcessed, results[4].Code)
}

func TestOrchestrator_CancellationBetweenGroups(t *testing.T) {
	h := newHarness(t, Options{})
	h.runs.cancelAt = 2
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("A", "A", "pc", "", "", "", ""),
		line("B", "B", "pc", "", "", "", ""),
		line("C", "C", "pc", "", "", "", ""),
	))

	summary := h.run(t, run)

	assert.Equal(t, 1, summary.TotalRowSuccess)
	assert.Equal(t, "import run was cancelled", summary.Message)
	results := h.results.byRow()
	assert.Equal(t, models.ResultStatusSuccess, results[2].Status)
	assert.Equal(t, CodeNotProcessed, results[3].Code)
	assert.Equal(t, CodeNotProcessed, results[4].Code)
	assert.Equal(t, 3, h.runs.get(run.ID).TotalRows)
}

func TestOrchestrator_RunLevelErrors(t *testing.T) {
	t.Run("wrong template", func(t *testing.T) {
		h := newHarness(t, Options{})
		run := h.submit(models.ImportKindCreateFull, []byte("name,price\nTee,10\n"))

		summary := h.run(t, run)
		assert.Equal(t, models.ImportStatusDone, summary.Status)
		assert.Contains(t, summary.Message, "missing required columns")
		assert.Equal(t, 0, h.results.count())
		assert.Empty(t, h.reports.finalized)

		stored := h.runs.get(run.ID)
		require.NotNil(t, stored.Message)
		assert.Equal(t, 0, stored.TotalRows)
	})

	t.Run("unknown attribute set", func(t *testing.T) {
		h := newHarness(t, Options{})
		run := h.submit(models.ImportKindCreateFull, csvFile(line("A", "A", "pc", "", "", "", "")))
		run.AttributeSetID = 42

		summary := h.run(t, run)
		assert.Equal(t, models.ImportStatusDone, summary.Status)
		assert.Contains(t, summary.Message, "attribute set 42")
		assert.Equal(t, 0, h.results.count())
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t, Options{})
		run := h.submit(models.ImportKindCreateFull, nil)
		delete(h.files.files, run.FilePath)

		summary := h.run(t, run)
		assert.Equal(t, models.ImportStatusDone, summary.Status)
		assert.Contains(t, summary.Message, "no longer exists")
	})

	t.Run("header only", func(t *testing.T) {
		h := newHarness(t, Options{})
		summary := h.run(t, h.submit(models.ImportKindCreateFull, csvFile()))
		assert.Contains(t, summary.Message, "at least one data row")
	})
}

func TestOrchestrator_PanicBecomesFatalAndRunContinues(t *testing.T) {
	h := newHarness(t, Options{})
	h.catalog.panicSKU = "S7-B"
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("A", "A", "pc", "", "", "", ""),
		line("B", "B", "pc", "", "", "", ""),
		line("C", "C", "pc", "", "", "", ""),
	))

	summary := h.run(t, run)

	assert.Equal(t, 2, summary.TotalRowSuccess)
	results := h.results.byRow()
	assert.Equal(t, models.ResultStatusFatal, results[3].Status)
	assert.Equal(t, CodeFatal, results[3].Code)
	assert.Equal(t, models.ResultStatusSuccess, results[4].Status)
	assert.Nil(t, h.catalog.sellableBySellerSKU("B"))
}

func TestOrchestrator_InfrastructureFailureFailsRun(t *testing.T) {
	h := newHarness(t, Options{})
	h.results.failErr = errors.New("connection refused")
	run := h.submit(models.ImportKindCreateBasic, csvFile(line("A", "A", "pc", "", "", "", "")))

	summary, err := h.orchestrator.Run(context.Background(), run.ID)
	require.Error(t, err)
	assert.Equal(t, models.ImportStatusFailed, summary.Status)
	assert.Equal(t, models.ImportStatusFailed, h.runs.get(run.ID).Status)
}

func TestOrchestrator_HooksRunInOrderAfterCommit(t *testing.T) {
	var sequence []string
	events := &recordingHook{name: "events", err: errors.New("broker down"), sequence: &sequence}
	inventory := &recordingHook{name: "inventory", sequence: &sequence}
	h := newHarness(t, Options{}, events, inventory)

	run := h.submit(models.ImportKindCreateFull, csvFile(
		line("A", "A-1", "pc", "", "Red", "S", ""),
		line("", "A-2", "pc", "2", "Red", "M", ""),
		line("B", "B-1", "pc", "", "Purple", "S", ""),
	))
	summary := h.run(t, run)

	assert.Equal(t, 2, summary.TotalRowSuccess)
	assert.Equal(t, []int{2}, events.calls)
	assert.Equal(t, []int{2}, inventory.calls)
	assert.Equal(t, []string{"events", "inventory"}, sequence)
}

func TestOrchestrator_ReportJobs(t *testing.T) {
	h := newHarness(t, Options{})
	run := h.submit(models.ImportKindCreateBasic, csvFile(
		line("A", "A", "pc", "", "", "", ""),
		line("B", "B", "", "", "", "", ""),
	))
	h.run(t, run)

	require.Len(t, h.reports.rowJobs, 2)
	tags := map[string]bool{}
	for _, job := range h.reports.rowJobs {
		assert.Equal(t, run.ID, job.ImportID)
		tags[job.Tag] = true
	}
	assert.Len(t, tags, 2)
	assert.Equal(t, []uuid.UUID{run.ID}, h.reports.finalized)
}

func TestOrchestrator_ParallelGroupsKeepUniqueness(t *testing.T) {
	h := newHarness(t, Options{GroupWorkers: 4})
	var rows [][]string
	for i := 0; i < 20; i++ {
		rows = append(rows, line(fmt.Sprintf("P%d", i), fmt.Sprintf("SKU-%d", i/2), "pc", "", "", "", ""))
	}
	run := h.submit(models.ImportKindCreateBasic, csvFile(rows...))

	summary := h.run(t, run)

	assert.Equal(t, 10, summary.TotalRowSuccess)
	assert.Equal(t, 10, h.catalog.sellableCount())
	assert.Equal(t, 20, h.results.count())
}

func TestOrchestrator_RunIsClaimedOnce(t *testing.T) {
	h := newHarness(t, Options{})
	run := h.submit(models.ImportKindCreateBasic, csvFile(line("A", "A", "pc", "", "", "", "")))
	h.run(t, run)

	_, err := h.orchestrator.Run(context.Background(), run.ID)
	assert.ErrorIs(t, err, ErrRunNotClaimable)
}

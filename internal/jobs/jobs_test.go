package jobs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"catalog-service/internal/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fakeReportStore struct {
	mu         sync.Mutex
	run        *models.ImportRun
	results    map[string]*models.ImportResult
	lines      map[string]models.ImportReportLine
	reportPath string
}

func newFakeReportStore(run *models.ImportRun) *fakeReportStore {
	return &fakeReportStore{run: run, results: map[string]*models.ImportResult{}, lines: map[string]models.ImportReportLine{}}
}

func (s *fakeReportStore) add(result models.ImportResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := result
	s.results[r.Tag] = &r
}

func (s *fakeReportStore) GetRunByID(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	if s.run == nil || s.run.ID != id {
		return nil, importer.ErrNotFound
	}
	return s.run, nil
}

func (s *fakeReportStore) GetResultByTag(ctx context.Context, tag string) (*models.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[tag]
	if !ok {
		return nil, importer.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeReportStore) ListUnreportedResults(ctx context.Context, importID uuid.UUID) ([]models.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportResult
	for _, r := range s.results {
		if r.ImportID == importID && r.ReportedAt == nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}

func (s *fakeReportStore) AttachReportLine(ctx context.Context, line *models.ImportReportLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lines[line.Tag]; !exists {
		s.lines[line.Tag] = *line
	}
	if r, ok := s.results[line.Tag]; ok && r.ReportedAt == nil {
		now := time.Now()
		r.ReportedAt = &now
	}
	return nil
}

func (s *fakeReportStore) ListReportLines(ctx context.Context, importID uuid.UUID) ([]models.ImportReportLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ImportReportLine
	for _, l := range s.lines {
		if l.ImportID == importID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowIndex < out[j].RowIndex })
	return out, nil
}

func (s *fakeReportStore) SetReportPath(ctx context.Context, id uuid.UUID, path string) error {
	s.reportPath = path
	return nil
}

func (s *fakeReportStore) lineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

func testRunWithResults(t *testing.T) (*fakeReportStore, *models.ImportRun, []string) {
	t.Helper()
	run := &models.ImportRun{ID: uuid.New(), SellerID: 7, Type: models.ImportKindCreateFull, Status: models.ImportStatusDone, TotalRows: 3, TotalRowSuccess: 2}
	store := newFakeReportStore(run)
	sku := "S7-TEE-1"
	var tags []string
	for i, status := range []models.ResultStatus{models.ResultStatusSuccess, models.ResultStatusSuccess, models.ResultStatusFailure} {
		tag := uuid.NewString()
		tags = append(tags, tag)
		store.add(models.ImportResult{
			ImportID: run.ID, Tag: tag, RowIndex: i + 2, Status: status, SKU: &sku,
			Data: map[string]interface{}{models.ColumnSellerSKU: "TEE-1"},
		})
	}
	return store, run, tags
}

func TestReportAttacher_AttachIsIdempotent(t *testing.T) {
	store, run, tags := testRunWithResults(t)
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	attacher := NewReportAttacher(store, files, quietLogger())
	ctx := context.Background()

	job := importer.ReportJob{ImportID: run.ID, Tag: tags[0]}
	require.NoError(t, attacher.Attach(ctx, job))
	require.NoError(t, attacher.Attach(ctx, job))

	assert.Equal(t, 1, store.lineCount())
	line := store.lines[tags[0]]
	assert.Equal(t, "TEE-1", line.SellerSKU)
	assert.Equal(t, "S7-TEE-1", line.SKU)
}

func TestReportAttacher_UnknownTagIsDropped(t *testing.T) {
	store, _, _ := testRunWithResults(t)
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = NewReportAttacher(store, files, quietLogger()).Attach(context.Background(), importer.ReportJob{Tag: "missing"})
	assert.NoError(t, err)
	assert.Equal(t, 0, store.lineCount())
}

func TestReportAttacher_FinalizeAttachesMissingLinesAndStoresReport(t *testing.T) {
	store, run, tags := testRunWithResults(t)
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	attacher := NewReportAttacher(store, files, quietLogger())
	ctx := context.Background()

	// only the first row was reported before the finalize job ran
	require.NoError(t, attacher.Attach(ctx, importer.ReportJob{ImportID: run.ID, Tag: tags[0]}))
	require.NoError(t, attacher.Finalize(ctx, run.ID))

	assert.Equal(t, 3, store.lineCount())
	assert.Equal(t, storage.ReportKey(7, run.ID), store.reportPath)

	f, err := files.Open(ctx, store.reportPath)
	require.NoError(t, err)
	defer f.Close()
	book, err := excelize.OpenReader(f)
	require.NoError(t, err)
	rows, err := book.GetRows("Results")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	// late row jobs after finalize change nothing
	require.NoError(t, attacher.Attach(ctx, importer.ReportJob{ImportID: run.ID, Tag: tags[2]}))
	assert.Equal(t, 3, store.lineCount())
}

func TestDirectReportQueue(t *testing.T) {
	store, run, tags := testRunWithResults(t)
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	queue := NewDirectReportQueue(NewReportAttacher(store, files, quietLogger()))
	ctx := context.Background()

	require.NoError(t, queue.EnqueueRowReport(ctx, importer.ReportJob{ImportID: run.ID, Tag: tags[1]}))
	assert.Equal(t, 1, store.lineCount())
	require.NoError(t, queue.EnqueueFinalize(ctx, run.ID))
	assert.NotEmpty(t, store.reportPath)
}

func TestReportWorker_HandleDispatchesBySubject(t *testing.T) {
	store, run, tags := testRunWithResults(t)
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	w := &ReportWorker{attacher: NewReportAttacher(store, files, quietLogger()), logger: logrus.NewEntry(quietLogger())}
	ctx := context.Background()

	require.NoError(t, w.handle(ctx, subjectRowReport, []byte(`{"importId":"`+run.ID.String()+`","tag":"`+tags[0]+`"}`)))
	assert.Equal(t, 1, store.lineCount())

	assert.NoError(t, w.handle(ctx, subjectRowReport, []byte(`not json`)))
	assert.NoError(t, w.handle(ctx, "catalog.import.report.unknown", nil))

	require.NoError(t, w.handle(ctx, subjectFinalize, []byte(`{"importId":"`+run.ID.String()+`"}`)))
	assert.Equal(t, 3, store.lineCount())
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Run(ctx context.Context, runID uuid.UUID) (*importer.RunSummary, error) {
	args := m.Called(ctx, runID)
	summary, _ := args.Get(0).(*importer.RunSummary)
	return summary, args.Error(1)
}

func newQueue(t *testing.T) *ImportQueue {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewImportQueue(client, "")
}

func TestImportQueue_FIFO(t *testing.T) {
	queue := newQueue(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	require.NoError(t, queue.Enqueue(ctx, first))
	require.NoError(t, queue.Enqueue(ctx, second))

	id, ok, err := queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, id)

	id, ok, err = queue.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second, id)
}

func TestImportWorker_ProcessesQueuedRuns(t *testing.T) {
	queue := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claimed, skipped := uuid.New(), uuid.New()
	processed := make(chan uuid.UUID, 2)

	processor := &mockProcessor{}
	processor.On("Run", mock.Anything, claimed).
		Run(func(args mock.Arguments) { processed <- claimed }).
		Return(&importer.RunSummary{ImportID: claimed, Status: models.ImportStatusDone, TotalRows: 2, TotalRowSuccess: 2}, nil)
	processor.On("Run", mock.Anything, skipped).
		Run(func(args mock.Arguments) { processed <- skipped }).
		Return(nil, fmt.Errorf("import run %s: %w", skipped, importer.ErrRunNotClaimable))

	require.NoError(t, queue.Enqueue(ctx, claimed))
	require.NoError(t, queue.Enqueue(ctx, skipped))

	worker := NewImportWorker(queue, processor, quietLogger())
	worker.pollTimeout = 100 * time.Millisecond
	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	for _, want := range []uuid.UUID{claimed, skipped} {
		select {
		case got := <-processed:
			assert.Equal(t, want, got)
		case <-time.After(3 * time.Second):
			t.Fatal("queued run was not processed")
		}
	}

	worker.Stop()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop")
	}
	processor.AssertExpectations(t)
}

package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"testing"

	"catalog-service/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const testSellerID int64 = 7

func strPtr(s string) *string { return &s }

// testAttributeSet has two variation attributes (color, size) and two detail
// attributes (weight with a weight unit, material as text)
func testAttributeSet() *models.AttributeSet {
	return &models.AttributeSet{
		ID:       3,
		SellerID: models.GlobalSellerID,
		Name:     "Apparel",
		Groups: []models.AttributeGroup{
			{
				ID: 11, AttributeSetID: 3, Name: "Specs", Priority: 2,
				Members: []models.AttributeGroupAttribute{
					{ID: 21, AttributeGroupID: 11, AttributeID: 103, Priority: 1, Attribute: models.Attribute{ID: 103, Code: "Weight", Name: "Weight", ValueType: models.AttributeValueNumber, UnitFamily: strPtr("weight")}},
					{ID: 22, AttributeGroupID: 11, AttributeID: 104, Priority: 2, Attribute: models.Attribute{ID: 104, Code: "material", Name: "Material", ValueType: models.AttributeValueText}},
					{ID: 23, AttributeGroupID: 11, AttributeID: 105, Priority: 3, Attribute: models.Attribute{ID: 105, Code: "care", Name: "Care", ValueType: models.AttributeValueMultipleSelect, Options: []models.AttributeOption{
						{ID: 501, AttributeID: 105, SellerID: 0, Value: "Hand wash"},
						{ID: 502, AttributeID: 105, SellerID: 0, Value: "Dry clean"},
					}}},
				},
			},
			{
				ID: 10, AttributeSetID: 3, Name: "Appearance", Priority: 1,
				Members: []models.AttributeGroupAttribute{
					{ID: 20, AttributeGroupID: 10, AttributeID: 102, IsVariation: true, Priority: 2, Attribute: models.Attribute{ID: 102, Code: "size", Name: "Size", ValueType: models.AttributeValueSelection, Options: []models.AttributeOption{
						{ID: 401, AttributeID: 102, SellerID: 0, Value: "S"},
						{ID: 402, AttributeID: 102, SellerID: 0, Value: "M"},
						{ID: 403, AttributeID: 102, SellerID: 0, Value: "L"},
					}}},
					{ID: 19, AttributeGroupID: 10, AttributeID: 101, IsVariation: true, Priority: 1, Attribute: models.Attribute{ID: 101, Code: "color", Name: "Color", ValueType: models.AttributeValueSelection, Options: []models.AttributeOption{
						{ID: 301, AttributeID: 101, SellerID: 0, Value: "Red"},
						{ID: 302, AttributeID: 101, SellerID: 0, Value: "Blue"},
						{ID: 303, AttributeID: 101, SellerID: 0, Value: "Green"},
						{ID: 304, AttributeID: 101, SellerID: testSellerID, Value: "Teal"},
						{ID: 305, AttributeID: 101, SellerID: 99, Value: "Magenta"},
					}}},
				},
			},
		},
	}
}

// testFlatAttributeSet has no variation attribute
func testFlatAttributeSet() *models.AttributeSet {
	return &models.AttributeSet{
		ID:       4,
		SellerID: testSellerID,
		Name:     "Groceries",
		Groups: []models.AttributeGroup{{
			ID: 12, AttributeSetID: 4, Name: "Basics", Priority: 1,
			Members: []models.AttributeGroupAttribute{
				{ID: 30, AttributeGroupID: 12, AttributeID: 104, Priority: 1, Attribute: models.Attribute{ID: 104, Code: "material", Name: "Material", ValueType: models.AttributeValueText}},
			},
		}},
	}
}

func testUoms() []models.UomOption {
	return []models.UomOption{
		{ID: 1, SellerID: 0, Family: "count", Name: "Piece", Code: "pc", Ratio: 1},
		{ID: 2, SellerID: 0, Family: "weight", Name: "Kilogram", Code: "kg", Ratio: 1},
		{ID: 3, SellerID: 0, Family: "weight", Name: "Gram", Code: "g", Ratio: 0.001},
		{ID: 4, SellerID: testSellerID, Family: "count", Name: "Box", Code: "box", Ratio: 12},
		{ID: 5, SellerID: 99, Family: "count", Name: "Crate", Code: "crate", Ratio: 48},
	}
}

func mustSchema(t *testing.T, set *models.AttributeSet) *Schema {
	t.Helper()
	schema, err := NewSchema(set, testUoms(), testSellerID)
	if err != nil {
		t.Fatalf("failed to build schema: %v", err)
	}
	return schema
}

func rawRow(index int, cells map[string]string) RawRow {
	return RawRow{Index: index, Cells: cells}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var fullHeaders = []string{"product name *", "seller_sku *", "sku", "unit of measure *", "category *", "barcode", "parent row", "variant name", "is bundle", "color", "size", "weight", "material"}

// csvFile renders a CSV import file with the full create header
func csvFile(rows ...[]string) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(fullHeaders)
	for _, r := range rows {
		_ = w.Write(r)
	}
	w.Flush()
	return buf.Bytes()
}

// fakeCatalog is an in-memory catalog whose transactions stage writes and only
// apply them when the transaction function succeeds
type fakeCatalog struct {
	mu         sync.Mutex
	products   map[uuid.UUID]*models.Product
	variants   map[uuid.UUID]*models.ProductVariant
	sellables  map[uuid.UUID]*models.SellableProduct
	barcodes   map[string]uuid.UUID
	descs      map[uuid.UUID]*models.ProductDescription
	commits    int
	rollbacks  int
	failSKU    map[string]error
	panicSKU   string
	lookupFail error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		products:  make(map[uuid.UUID]*models.Product),
		variants:  make(map[uuid.UUID]*models.ProductVariant),
		sellables: make(map[uuid.UUID]*models.SellableProduct),
		barcodes:  make(map[string]uuid.UUID),
		descs:     make(map[uuid.UUID]*models.ProductDescription),
		failSKU:   make(map[string]error),
	}
}

func (c *fakeCatalog) SKUExists(_ context.Context, sku string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lookupFail != nil {
		return false, c.lookupFail
	}
	for _, s := range c.sellables {
		if s.SKU == sku {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCatalog) SellerSKUExists(_ context.Context, sellerID int64, sellerSKU string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sellables {
		if s.SellerID == sellerID && s.SellerSKU == sellerSKU {
			return true, nil
		}
	}
	return false, nil
}

func (c *fakeCatalog) BarcodeExists(_ context.Context, barcode string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.barcodes[barcode]
	return ok, nil
}

func (c *fakeCatalog) WithinTransaction(ctx context.Context, fn func(tx CatalogWriter) error) error {
	tx := &fakeTx{catalog: c}
	if err := fn(tx); err != nil {
		c.mu.Lock()
		c.rollbacks++
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range tx.products {
		c.products[p.ID] = p
	}
	for _, v := range tx.variants {
		c.variants[v.ID] = v
	}
	for _, s := range tx.sellables {
		c.sellables[s.ID] = s
	}
	for _, b := range tx.barcodes {
		c.barcodes[b.Barcode] = b.SellableProductID
	}
	for _, d := range tx.descs {
		c.descs[d.ProductID] = d
	}
	for id, updates := range tx.productUpdates {
		if p, ok := c.products[id]; ok {
			if name, ok := updates["name"].(string); ok {
				p.Name = name
			}
			if brand, ok := updates["brand"].(string); ok {
				p.Brand = &brand
			}
		}
	}
	for id, detail := range tx.details {
		if s, ok := c.sellables[id]; ok {
			s.Detail = detail
		}
	}
	c.commits++
	return nil
}

func (c *fakeCatalog) productCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.products)
}

func (c *fakeCatalog) sellableCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sellables)
}

func (c *fakeCatalog) sellableBySellerSKU(sellerSKU string) *models.SellableProduct {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sellables {
		if s.SellerSKU == sellerSKU {
			return s
		}
	}
	return nil
}

// seedSellable stores a sellable product as if created by an earlier import
func (c *fakeCatalog) seedSellable(sku, sellerSKU string, barcodes ...string) *models.SellableProduct {
	c.mu.Lock()
	defer c.mu.Unlock()
	product := &models.Product{ID: uuid.New(), SellerID: testSellerID, Name: "Existing"}
	sellable := &models.SellableProduct{ID: uuid.New(), ProductID: product.ID, SellerID: testSellerID, SKU: sku, SellerSKU: sellerSKU}
	c.products[product.ID] = product
	c.sellables[sellable.ID] = sellable
	for _, b := range barcodes {
		c.barcodes[b] = sellable.ID
	}
	return sellable
}

type fakeTx struct {
	catalog        *fakeCatalog
	products       []*models.Product
	variants       []*models.ProductVariant
	sellables      []*models.SellableProduct
	barcodes       []models.SellableBarcode
	descs          []*models.ProductDescription
	productUpdates map[uuid.UUID]map[string]interface{}
	details        map[uuid.UUID]datatypes.JSONMap
}

func (tx *fakeTx) CreateProduct(_ context.Context, product *models.Product) error {
	product.ID = uuid.New()
	tx.products = append(tx.products, product)
	return nil
}

func (tx *fakeTx) SaveProductDescription(_ context.Context, desc *models.ProductDescription) error {
	desc.ID = uuid.New()
	tx.descs = append(tx.descs, desc)
	return nil
}

func (tx *fakeTx) CreateVariant(_ context.Context, variant *models.ProductVariant) error {
	variant.ID = uuid.New()
	tx.variants = append(tx.variants, variant)
	return nil
}

func (tx *fakeTx) CreateSellableProduct(_ context.Context, sellable *models.SellableProduct) error {
	tx.catalog.mu.Lock()
	failure := tx.catalog.failSKU[sellable.SKU]
	shouldPanic := tx.catalog.panicSKU != "" && tx.catalog.panicSKU == sellable.SKU
	for _, s := range tx.catalog.sellables {
		if s.SKU == sellable.SKU || (s.SellerID == sellable.SellerID && s.SellerSKU == sellable.SellerSKU) {
			failure = fmt.Errorf("%w: sellable_products", ErrUniqueViolation)
		}
	}
	tx.catalog.mu.Unlock()
	if shouldPanic {
		panic("simulated driver panic")
	}
	if failure != nil {
		return failure
	}
	sellable.ID = uuid.New()
	tx.sellables = append(tx.sellables, sellable)
	return nil
}

func (tx *fakeTx) CreateBarcodes(_ context.Context, barcodes []models.SellableBarcode) error {
	tx.barcodes = append(tx.barcodes, barcodes...)
	return nil
}

func (tx *fakeTx) FindSellableBySellerSKU(_ context.Context, sellerID int64, sellerSKU string) (*models.SellableProduct, error) {
	tx.catalog.mu.Lock()
	defer tx.catalog.mu.Unlock()
	for _, s := range tx.catalog.sellables {
		if s.SellerID == sellerID && s.SellerSKU == sellerSKU {
			copied := *s
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (tx *fakeTx) UpdateSellableDetail(_ context.Context, sellableID uuid.UUID, detail datatypes.JSONMap) error {
	if tx.details == nil {
		tx.details = make(map[uuid.UUID]datatypes.JSONMap)
	}
	tx.details[sellableID] = detail
	return nil
}

func (tx *fakeTx) UpdateProduct(_ context.Context, productID uuid.UUID, updates map[string]interface{}) error {
	if tx.productUpdates == nil {
		tx.productUpdates = make(map[uuid.UUID]map[string]interface{})
	}
	tx.productUpdates[productID] = updates
	return nil
}

// fakeRuns is an in-memory RunStore
type fakeRuns struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*models.ImportRun
	cancelAt  int
	cancelled int
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[uuid.UUID]*models.ImportRun)}
}

func (r *fakeRuns) add(run *models.ImportRun) *models.ImportRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = models.ImportStatusNew
	r.runs[run.ID] = run
	return run
}

func (r *fakeRuns) get(id uuid.UUID) models.ImportRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.runs[id]
}

func (r *fakeRuns) ClaimRun(_ context.Context, id uuid.UUID) (*models.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if run.Status != models.ImportStatusNew {
		return nil, ErrRunNotClaimable
	}
	run.Status = models.ImportStatusProcessing
	copied := *run
	return &copied, nil
}

// IsCancelRequested reports a cancellation once it has been asked cancelAt times
func (r *fakeRuns) IsCancelRequested(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled++
	if r.cancelAt > 0 && r.cancelled >= r.cancelAt {
		return true, nil
	}
	return r.runs[id].CancelRequested, nil
}

func (r *fakeRuns) CompleteRun(_ context.Context, id uuid.UUID, totalRows, totalRowSuccess int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[id]
	run.Status = models.ImportStatusDone
	run.TotalRows = totalRows
	run.TotalRowSuccess = totalRowSuccess
	return nil
}

func (r *fakeRuns) AbortRun(_ context.Context, id uuid.UUID, status models.ImportStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := r.runs[id]
	run.Status = status
	run.Message = &message
	return nil
}

// fakeResults is an in-memory ResultStore
type fakeResults struct {
	mu      sync.Mutex
	results []*models.ImportResult
	failErr error
}

func (s *fakeResults) CreateResult(_ context.Context, result *models.ImportResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	result.ID = uuid.New()
	s.results = append(s.results, result)
	return nil
}

func (s *fakeResults) byRow() map[int]*models.ImportResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]*models.ImportResult, len(s.results))
	for _, r := range s.results {
		out[r.RowIndex] = r
	}
	return out
}

func (s *fakeResults) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// fakeReports records queued report jobs
type fakeReports struct {
	mu        sync.Mutex
	rowJobs   []ReportJob
	finalized []uuid.UUID
}

func (q *fakeReports) EnqueueRowReport(_ context.Context, job ReportJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rowJobs = append(q.rowJobs, job)
	return nil
}

func (q *fakeReports) EnqueueFinalize(_ context.Context, importID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.finalized = append(q.finalized, importID)
	return nil
}

// fakeSchemas serves attribute sets by id
type fakeSchemas struct {
	sets map[uint]*models.AttributeSet
}

func (s *fakeSchemas) GetAttributeSet(_ context.Context, id uint) (*models.AttributeSet, error) {
	set, ok := s.sets[id]
	if !ok {
		return nil, fmt.Errorf("attribute set %d: %w", id, ErrNotFound)
	}
	return set, nil
}

func (s *fakeSchemas) ListUomOptions(_ context.Context, _ int64) ([]models.UomOption, error) {
	return testUoms(), nil
}

// fakeFiles serves file contents by path
type fakeFiles struct {
	files map[string][]byte
}

func (f *fakeFiles) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// recordingHook remembers every outcome it sees
type recordingHook struct {
	mu       sync.Mutex
	name     string
	calls    []int
	err      error
	sequence *[]string
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) AfterCommit(_ context.Context, _ *models.ImportRun, outcome *GroupOutcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, outcome.Key)
	if h.sequence != nil {
		*h.sequence = append(*h.sequence, h.name)
	}
	return h.err
}

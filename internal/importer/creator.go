package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"catalog-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ErrUniqueViolation is wrapped by stores when a write hits a unique constraint.
// Inside the creator it is a fatal error: the dedup validator should have caught it.
var ErrUniqueViolation = errors.New("unique constraint violated")

// CatalogWriter performs catalog writes inside one transaction
type CatalogWriter interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	SaveProductDescription(ctx context.Context, description *models.ProductDescription) error
	CreateVariant(ctx context.Context, variant *models.ProductVariant) error
	CreateSellableProduct(ctx context.Context, sellable *models.SellableProduct) error
	CreateBarcodes(ctx context.Context, barcodes []models.SellableBarcode) error
	FindSellableBySellerSKU(ctx context.Context, sellerID int64, sellerSKU string) (*models.SellableProduct, error)
	UpdateSellableDetail(ctx context.Context, sellableID uuid.UUID, detail datatypes.JSONMap) error
	UpdateProduct(ctx context.Context, productID uuid.UUID, updates map[string]interface{}) error
}

// CatalogStore is the persisted catalog the import writes into
type CatalogStore interface {
	CatalogLookup
	// WithinTransaction runs fn in one atomic unit of work. Any error returned by
	// fn discards every write made through the writer.
	WithinTransaction(ctx context.Context, fn func(tx CatalogWriter) error) error
}

// ValidatedGroup is a group whose rows passed normalization and dedup checks
type ValidatedGroup struct {
	Key        int
	Rows       []ImportRow
	CategoryID string
}

// CreatedRow links one input row to the entities it produced
type CreatedRow struct {
	RowIndex int
	Variant  *models.ProductVariant
	Sellable *models.SellableProduct
}

// GroupOutcome describes a committed group
type GroupOutcome struct {
	Key     int
	Kind    models.ImportKind
	Product *models.Product
	Rows    []CreatedRow
}

// Creator persists validated groups, one transaction per group
type Creator struct {
	store          CatalogStore
	kind           models.ImportKind
	sellerID       int64
	attributeSetID uint
	importID       uuid.UUID
	createdBy      string
}

// NewCreator creates a transactional creator for a run
func NewCreator(store CatalogStore, run *models.ImportRun) *Creator {
	return &Creator{
		store:          store,
		kind:           run.Type,
		sellerID:       run.SellerID,
		attributeSetID: run.AttributeSetID,
		importID:       run.ID,
		createdBy:      run.CreatedBy,
	}
}

// Persist writes a group. On error nothing of the group is persisted and the
// error is a *RowError naming the row that failed.
func (c *Creator) Persist(ctx context.Context, group ValidatedGroup) (*GroupOutcome, error) {
	if c.kind.IsUpdate() {
		return c.update(ctx, group)
	}
	return c.create(ctx, group)
}

func (c *Creator) create(ctx context.Context, group ValidatedGroup) (*GroupOutcome, error) {
	parent := group.Rows[0]
	outcome := &GroupOutcome{Key: group.Key, Kind: c.kind}

	err := c.store.WithinTransaction(ctx, func(tx CatalogWriter) error {
		importID := c.importID
		createdBy := c.createdBy
		product := &models.Product{
			SellerID:       c.sellerID,
			AttributeSetID: c.attributeSetID,
			CategoryID:     group.CategoryID,
			Name:           parent.ProductName(),
			Brand:          optional(parent.Brand()),
			IsBundle:       parent.IsBundle(),
			Status:         models.ProductStatusDraft,
			ImportID:       &importID,
			CreatedBy:      &createdBy,
			UpdatedBy:      &createdBy,
		}
		if err := tx.CreateProduct(ctx, product); err != nil {
			return &RowError{Row: parent.Index(), Err: fmt.Errorf("failed to create product: %w", err)}
		}

		if desc := descriptionOf(product.ID, parent); desc != nil {
			if err := tx.SaveProductDescription(ctx, desc); err != nil {
				return &RowError{Row: parent.Index(), Err: fmt.Errorf("failed to create product description: %w", err)}
			}
		}

		created := make([]CreatedRow, 0, len(group.Rows))
		for i, row := range group.Rows {
			if product.IsBundle {
				if len(row.Barcodes()) > 0 {
					return &RowError{Row: row.Index(), Err: &BundleSellableDataError{Field: models.ColumnBarcode}}
				}
				if len(row.DetailValues()) > 0 {
					return &RowError{Row: row.Index(), Err: &BundleSellableDataError{Field: "attributes"}}
				}
			}

			name := row.VariantName()
			if name == "" {
				name = VariantName(product.Name, row.VariationValues())
			}
			variant := &models.ProductVariant{
				ProductID:  product.ID,
				Name:       name,
				Attributes: attributeMap(row.VariationValues()),
				Position:   i,
			}
			if err := tx.CreateVariant(ctx, variant); err != nil {
				return &RowError{Row: row.Index(), Err: fmt.Errorf("failed to create variant: %w", err)}
			}

			uom := row.UnitOfMeasure()
			sellable := &models.SellableProduct{
				ProductID: product.ID,
				VariantID: variant.ID,
				SellerID:  c.sellerID,
				SKU:       row.SKU(),
				SellerSKU: row.SellerSKU(),
				UomID:     uom.ID,
				UomCode:   uom.Code,
				UomRatio:  uom.Ratio,
				Detail:    attributeMap(row.DetailValues()),
			}
			if err := tx.CreateSellableProduct(ctx, sellable); err != nil {
				return &RowError{Row: row.Index(), Err: fmt.Errorf("failed to create sellable product: %w", err)}
			}

			if barcodes := barcodeModels(sellable.ID, row.Barcodes()); len(barcodes) > 0 {
				if err := tx.CreateBarcodes(ctx, barcodes); err != nil {
					return &RowError{Row: row.Index(), Err: fmt.Errorf("failed to create barcodes: %w", err)}
				}
				sellable.Barcodes = barcodes
			}

			variant.Sellable = sellable
			product.Variants = append(product.Variants, variant)
			created = append(created, CreatedRow{RowIndex: row.Index(), Variant: variant, Sellable: sellable})
		}

		outcome.Product = product
		outcome.Rows = created
		return nil
	})
	if err != nil {
		return nil, asRowError(err, parent.Index())
	}
	return outcome, nil
}

func (c *Creator) update(ctx context.Context, group ValidatedGroup) (*GroupOutcome, error) {
	row := group.Rows[0]
	outcome := &GroupOutcome{Key: group.Key, Kind: c.kind}

	err := c.store.WithinTransaction(ctx, func(tx CatalogWriter) error {
		sellable, err := tx.FindSellableBySellerSKU(ctx, c.sellerID, row.SellerSKU())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &SellableNotFoundError{SellerSKU: row.SellerSKU()}
			}
			return fmt.Errorf("failed to load sellable product: %w", err)
		}

		updates := map[string]interface{}{"updated_by": c.createdBy}
		if row.ProductName() != "" {
			updates["name"] = row.ProductName()
		}
		if row.Brand() != "" {
			updates["brand"] = row.Brand()
		}
		if err := tx.UpdateProduct(ctx, sellable.ProductID, updates); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}

		if desc := descriptionOf(sellable.ProductID, row); desc != nil {
			if err := tx.SaveProductDescription(ctx, desc); err != nil {
				return fmt.Errorf("failed to update product description: %w", err)
			}
		}

		if details := row.DetailValues(); len(details) > 0 {
			merged := datatypes.JSONMap{}
			for k, v := range sellable.Detail {
				merged[k] = v
			}
			for k, v := range attributeMap(details) {
				merged[k] = v
			}
			if err := tx.UpdateSellableDetail(ctx, sellable.ID, merged); err != nil {
				return fmt.Errorf("failed to update sellable detail: %w", err)
			}
			sellable.Detail = merged
		}

		if barcodes := barcodeModels(sellable.ID, row.Barcodes()); len(barcodes) > 0 {
			if err := tx.CreateBarcodes(ctx, barcodes); err != nil {
				return fmt.Errorf("failed to add barcodes: %w", err)
			}
			sellable.Barcodes = append(sellable.Barcodes, barcodes...)
		}

		outcome.Product = &models.Product{ID: sellable.ProductID, SellerID: c.sellerID, Name: row.ProductName()}
		outcome.Rows = []CreatedRow{{RowIndex: row.Index(), Sellable: sellable}}
		return nil
	})
	if err != nil {
		return nil, asRowError(err, row.Index())
	}
	return outcome, nil
}

// VariantName composes the display name of a variant from the product name and
// its variation values in schema priority order, e.g. "P (Red, M)"
func VariantName(productName string, values []AttributeValue) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if v.Display != "" {
			parts = append(parts, v.Display)
		}
	}
	if len(parts) == 0 {
		return productName
	}
	return fmt.Sprintf("%s (%s)", productName, strings.Join(parts, ", "))
}

func descriptionOf(productID uuid.UUID, row ImportRow) *models.ProductDescription {
	if row.Description() == "" && row.SeoTitle() == "" && row.SeoDescription() == "" && len(row.SeoKeywords()) == 0 {
		return nil
	}
	desc := &models.ProductDescription{
		ProductID:      productID,
		Description:    optional(row.Description()),
		SeoTitle:       optional(row.SeoTitle()),
		SeoDescription: optional(row.SeoDescription()),
	}
	if keywords := row.SeoKeywords(); len(keywords) > 0 {
		arr := make(models.JSONArray, 0, len(keywords))
		for _, k := range keywords {
			arr = append(arr, k)
		}
		desc.SeoKeywords = &arr
	}
	return desc
}

func attributeMap(values []AttributeValue) datatypes.JSONMap {
	if len(values) == 0 {
		return nil
	}
	out := make(datatypes.JSONMap, len(values))
	for _, v := range values {
		out[v.Code] = v.JSON()
	}
	return out
}

func barcodeModels(sellableID uuid.UUID, barcodes []string) []models.SellableBarcode {
	out := make([]models.SellableBarcode, 0, len(barcodes))
	for _, b := range barcodes {
		out = append(out, models.SellableBarcode{SellableProductID: sellableID, Barcode: b})
	}
	return out
}

func asRowError(err error, fallbackRow int) error {
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return rowErr
	}
	return &RowError{Row: fallbackRow, Err: err}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

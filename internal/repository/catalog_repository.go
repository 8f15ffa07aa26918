package repository

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductCacheTTL matches the product read caches this repository invalidates
const ProductCacheTTL = 5 * time.Minute

// CatalogRepository persists imported products, variants, sellables and barcodes
type CatalogRepository struct {
	db    *gorm.DB
	cache *cache.CacheLayer
}

func NewCatalogRepository(db *gorm.DB, redis *redis.Client) *CatalogRepository {
	repo := &CatalogRepository{db: db}

	// Product read caches are shared with the storefront readers under this prefix
	if redis != nil {
		repo.cache = cache.NewCacheLayerFromClient(redis, cache.CacheConfig{
			L1Enabled:  false,
			DefaultTTL: ProductCacheTTL,
			KeyPrefix:  "tesseract:products:",
		})
	}

	return repo
}

// SKUExists reports whether any sellable, including soft-deleted ones, holds the sku
func (r *CatalogRepository) SKUExists(ctx context.Context, sku string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().
		Model(&models.SellableProduct{}).
		Where("sku = ?", sku).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check sku: %w", err)
	}
	return count > 0, nil
}

// SellerSKUExists reports whether the seller already uses the seller sku
func (r *CatalogRepository) SellerSKUExists(ctx context.Context, sellerID int64, sellerSKU string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().
		Model(&models.SellableProduct{}).
		Where("seller_id = ? AND seller_sku = ?", sellerID, sellerSKU).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check seller sku: %w", err)
	}
	return count > 0, nil
}

// BarcodeExists reports whether the barcode is attached to any sellable
func (r *CatalogRepository) BarcodeExists(ctx context.Context, barcode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SellableBarcode{}).
		Where("barcode = ?", barcode).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check barcode: %w", err)
	}
	return count > 0, nil
}

// WithinTransaction runs fn inside a database transaction. The transaction is
// rolled back when fn returns an error or panics.
func (r *CatalogRepository) WithinTransaction(ctx context.Context, fn func(tx importer.CatalogWriter) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&catalogTx{db: tx})
	})
}

// InvalidateSellerProducts drops the cached product lists of a seller
func (r *CatalogRepository) InvalidateSellerProducts(ctx context.Context, sellerID int64) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.DeletePattern(ctx, fmt.Sprintf("products:list:%d:*", sellerID))
}

// InvalidateProduct drops the cached entries of one product
func (r *CatalogRepository) InvalidateProduct(ctx context.Context, sellerID int64, productID uuid.UUID) error {
	if r.cache == nil {
		return nil
	}
	productKey := fmt.Sprintf("product:%d:%s", sellerID, productID.String())
	return r.cache.Delete(ctx, productKey+":true", productKey+":false")
}

// catalogTx is the CatalogWriter bound to one transaction
type catalogTx struct {
	db *gorm.DB
}

func (t *catalogTx) CreateProduct(ctx context.Context, product *models.Product) error {
	return translateError(t.db.WithContext(ctx).Omit(clause.Associations).Create(product).Error)
}

// SaveProductDescription inserts the description of a product or overwrites the
// fields that are set on an existing one
func (t *catalogTx) SaveProductDescription(ctx context.Context, description *models.ProductDescription) error {
	columns := []string{"updated_at"}
	if description.Description != nil {
		columns = append(columns, "description")
	}
	if description.SeoTitle != nil {
		columns = append(columns, "seo_title")
	}
	if description.SeoDescription != nil {
		columns = append(columns, "seo_description")
	}
	if description.SeoKeywords != nil {
		columns = append(columns, "seo_keywords")
	}

	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(description).Error
	return translateError(err)
}

func (t *catalogTx) CreateVariant(ctx context.Context, variant *models.ProductVariant) error {
	return translateError(t.db.WithContext(ctx).Omit(clause.Associations).Create(variant).Error)
}

func (t *catalogTx) CreateSellableProduct(ctx context.Context, sellable *models.SellableProduct) error {
	return translateError(t.db.WithContext(ctx).Omit(clause.Associations).Create(sellable).Error)
}

func (t *catalogTx) CreateBarcodes(ctx context.Context, barcodes []models.SellableBarcode) error {
	if len(barcodes) == 0 {
		return nil
	}
	return translateError(t.db.WithContext(ctx).Create(&barcodes).Error)
}

// FindSellableBySellerSKU loads a sellable with its barcodes and locks it for the
// rest of the transaction
func (t *catalogTx) FindSellableBySellerSKU(ctx context.Context, sellerID int64, sellerSKU string) (*models.SellableProduct, error) {
	var sellable models.SellableProduct
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Barcodes").
		Where("seller_id = ? AND seller_sku = ?", sellerID, sellerSKU).
		First(&sellable).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &sellable, nil
}

func (t *catalogTx) UpdateSellableDetail(ctx context.Context, sellableID uuid.UUID, detail datatypes.JSONMap) error {
	result := t.db.WithContext(ctx).
		Model(&models.SellableProduct{}).
		Where("id = ?", sellableID).
		Update("detail", detail)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("sellable product %s: %w", sellableID, importer.ErrNotFound)
	}
	return nil
}

func (t *catalogTx) UpdateProduct(ctx context.Context, productID uuid.UUID, updates map[string]interface{}) error {
	result := t.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(updates)
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("product %s: %w", productID, importer.ErrNotFound)
	}
	return nil
}

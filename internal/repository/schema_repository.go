package repository

import (
	"context"
	"fmt"
	"time"

	"catalog-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/cache"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Schema data changes rarely
const SchemaCacheTTL = 10 * time.Minute

// SchemaRepository reads attribute sets and units of measure
type SchemaRepository struct {
	db    *gorm.DB
	cache *cache.CacheLayer
}

func NewSchemaRepository(db *gorm.DB, redis *redis.Client) *SchemaRepository {
	repo := &SchemaRepository{db: db}

	if redis != nil {
		repo.cache = cache.NewCacheLayerFromClient(redis, cache.CacheConfig{
			L1Enabled:  true,
			L1MaxItems: 500,
			L1TTL:      time.Minute,
			DefaultTTL: SchemaCacheTTL,
			KeyPrefix:  "tesseract:catalog:",
		})
	}

	return repo
}

// GetAttributeSet loads an attribute set with its groups, members, attributes and options
func (r *SchemaRepository) GetAttributeSet(ctx context.Context, attributeSetID uint) (*models.AttributeSet, error) {
	if r.cache != nil {
		var set models.AttributeSet
		cacheKey := fmt.Sprintf("attribute-set:%d", attributeSetID)
		err := r.cache.GetOrSetJSON(ctx, cacheKey, &set, SchemaCacheTTL, func() (any, error) {
			return r.loadAttributeSet(ctx, attributeSetID)
		})
		if err != nil {
			return nil, translateError(err)
		}
		return &set, nil
	}

	set, err := r.loadAttributeSet(ctx, attributeSetID)
	if err != nil {
		return nil, translateError(err)
	}
	return set, nil
}

func (r *SchemaRepository) loadAttributeSet(ctx context.Context, attributeSetID uint) (*models.AttributeSet, error) {
	var set models.AttributeSet
	err := r.db.WithContext(ctx).
		Preload("Groups").
		Preload("Groups.Members").
		Preload("Groups.Members.Attribute").
		Preload("Groups.Members.Attribute.Options").
		Where("id = ?", attributeSetID).
		First(&set).Error
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// ListUomOptions returns the global units of measure and the seller's own
func (r *SchemaRepository) ListUomOptions(ctx context.Context, sellerID int64) ([]models.UomOption, error) {
	load := func() ([]models.UomOption, error) {
		var uoms []models.UomOption
		err := r.db.WithContext(ctx).
			Where("seller_id IN ?", []int64{models.GlobalSellerID, sellerID}).
			Order("id ASC").
			Find(&uoms).Error
		return uoms, err
	}

	if r.cache != nil {
		var uoms []models.UomOption
		cacheKey := fmt.Sprintf("uoms:%d", sellerID)
		err := r.cache.GetOrSetJSON(ctx, cacheKey, &uoms, SchemaCacheTTL, func() (any, error) {
			return load()
		})
		if err != nil {
			return nil, err
		}
		return uoms, nil
	}

	return load()
}

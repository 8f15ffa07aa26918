package repository

import (
	"context"
	"errors"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"github.com/google/uuid"
)

// CacheInvalidationHook drops product caches touched by a committed group
type CacheInvalidationHook struct {
	repo *CatalogRepository
}

func NewCacheInvalidationHook(repo *CatalogRepository) *CacheInvalidationHook {
	return &CacheInvalidationHook{repo: repo}
}

func (h *CacheInvalidationHook) Name() string { return "catalog-cache-invalidation" }

// AfterCommit invalidates every product of the outcome and the seller's product lists
func (h *CacheInvalidationHook) AfterCommit(ctx context.Context, run *models.ImportRun, outcome *importer.GroupOutcome) error {
	seen := make(map[uuid.UUID]bool)
	if outcome.Product != nil {
		seen[outcome.Product.ID] = true
	}
	for _, row := range outcome.Rows {
		if row.Sellable != nil && row.Sellable.ProductID != uuid.Nil {
			seen[row.Sellable.ProductID] = true
		}
	}

	var errs []error
	for productID := range seen {
		if err := h.repo.InvalidateProduct(ctx, run.SellerID, productID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := h.repo.InvalidateSellerProducts(ctx, run.SellerID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

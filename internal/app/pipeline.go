package app

import (
	"context"
	"fmt"

	"catalog-service/internal/clients"
	"catalog-service/internal/config"
	"catalog-service/internal/importer"
	"catalog-service/internal/jobs"
	"catalog-service/internal/repository"
	"catalog-service/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Pipeline holds the collaborators shared by the service and the operator CLI
type Pipeline struct {
	cfg    *config.Config
	redis  *redis.Client
	logger *logrus.Logger

	Imports  *repository.ImportRepository
	Catalog  *repository.CatalogRepository
	Schemas  *repository.SchemaRepository
	Files    storage.FileStore
	Attacher *jobs.ReportAttacher

	categories *clients.CategoriesClient
	sellers    *clients.VendorClient
}

// NewPipeline builds repositories, the file store and the report attacher.
// redisClient may be nil, in which case caches are disabled.
func NewPipeline(ctx context.Context, cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *logrus.Logger) (*Pipeline, error) {
	files, err := NewFileStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	imports := repository.NewImportRepository(db)
	p := &Pipeline{
		cfg:      cfg,
		redis:    redisClient,
		logger:   logger,
		Imports:  imports,
		Catalog:  repository.NewCatalogRepository(db, redisClient),
		Schemas:  repository.NewSchemaRepository(db, redisClient),
		Files:    files,
		Attacher: jobs.NewReportAttacher(imports, files, logger),
	}
	if cfg.CategoriesServiceURL != "" {
		p.categories = clients.NewCategoriesClient(cfg.CategoriesServiceURL, logger)
	}
	if cfg.VendorServiceURL != "" {
		p.sellers = clients.NewVendorClient(cfg.VendorServiceURL)
	}
	return p, nil
}

// SkipSellerCheck disables seller verification at run start
func (p *Pipeline) SkipSellerCheck() {
	p.sellers = nil
}

// Orchestrator wires an orchestrator that reports through reports and runs
// hooks after each committed group
func (p *Pipeline) Orchestrator(reports importer.ReportQueue, hooks ...importer.PostCommitHook) *importer.Orchestrator {
	deps := importer.Dependencies{
		Runs:    p.Imports,
		Results: p.Imports,
		Catalog: p.Catalog,
		Schemas: p.Schemas,
		Files:   p.Files,
		Reports: reports,
		Claims:  ClaimSetFactory(p.cfg, p.redis),
		Hooks:   append([]importer.PostCommitHook{repository.NewCacheInvalidationHook(p.Catalog)}, hooks...),
	}
	if p.categories != nil {
		deps.Categories = p.categories
	}
	if p.sellers != nil {
		deps.Sellers = p.sellers
	}

	return importer.NewOrchestrator(deps, importer.Options{
		GroupWorkers:    p.cfg.ImportGroupWorkers,
		RunTimeout:      p.cfg.ImportRunTimeout,
		MaxVariants:     p.cfg.MaxProductVariants,
		BarcodePolicies: p.cfg.BarcodePolicies,
	}, p.logger)
}

// NewFileStore returns the configured storage backend
func NewFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		return store, nil
	case config.StorageLocal, "":
		store, err := storage.NewLocalStore(cfg.LocalStorageDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// ClaimSetFactory returns the per-run claim set constructor of the configured
// backend. Redis claims are shared by every worker processing the same run.
func ClaimSetFactory(cfg *config.Config, redisClient *redis.Client) func(uuid.UUID) importer.ClaimSet {
	if cfg.ImportClaimBackend == config.ClaimBackendRedis && redisClient != nil {
		return func(runID uuid.UUID) importer.ClaimSet {
			return repository.NewRedisClaimSet(redisClient, runID)
		}
	}
	return func(uuid.UUID) importer.ClaimSet {
		return importer.NewMemoryClaimSet()
	}
}

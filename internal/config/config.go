package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/importer"
	"catalog-service/internal/models"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage backends
const (
	StorageS3    = "s3"
	StorageLocal = "local"
)

// Claim set backends
const (
	ClaimBackendMemory = "memory"
	ClaimBackendRedis  = "redis"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Server
	Port        string
	Environment string

	// Services
	RBACServiceURL       string
	CategoriesServiceURL string
	InventoryServiceURL  string
	VendorServiceURL     string

	// File storage
	StorageBackend  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	LocalStorageDir string

	// Import pipeline
	ImportQueueKey     string
	ImportRunTimeout   time.Duration
	ImportGroupWorkers int
	ImportClaimBackend string
	MaxProductVariants int
	MaxUploadBytes     int64
	BarcodePolicies    map[models.ImportKind]importer.BarcodePolicy

	// Pagination
	DefaultPageSize int
	MaxPageSize     int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))
	maxPageSize, _ := strconv.Atoi(getEnv("MAX_PAGE_SIZE", "100"))
	maxProductVariants, _ := strconv.Atoi(getEnv("MAX_PRODUCT_VARIANTS", "100"))
	groupWorkers, _ := strconv.Atoi(getEnv("IMPORT_GROUP_WORKERS", "1"))
	maxUploadMB, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_MB", "20"), 10, 64)
	runTimeout, err := time.ParseDuration(getEnv("IMPORT_RUN_TIMEOUT", "30m"))
	if err != nil {
		log.Printf("Invalid IMPORT_RUN_TIMEOUT, using 30m: %v", err)
		runTimeout = 30 * time.Minute
	}

	return &Config{
		// Database - fetch password from GCP Secret Manager if enabled
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: secrets.GetDBPassword(),
		DBName:     getEnv("DB_NAME", "catalog_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://redis.redis-marketplace.svc.cluster.local:6379/0"),

		// NATS - optional, report jobs run in-process without it
		NATSURL: os.Getenv("NATS_URL"),

		// Server
		Port:        getEnv("PORT", "8087"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Services
		RBACServiceURL:       getEnv("STAFF_SERVICE_URL", "http://staff-service.marketplace.svc.cluster.local:8080"),
		CategoriesServiceURL: getEnv("CATEGORIES_SERVICE_URL", "http://categories-service:8080"),
		InventoryServiceURL:  getEnv("INVENTORY_SERVICE_URL", "http://inventory-service:8088"),
		VendorServiceURL:     getEnv("VENDOR_SERVICE_URL", "http://vendor-service:8080"),

		// File storage
		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("AWS_REGION", ""),
		S3Endpoint:      getEnv("AWS_S3_ENDPOINT", ""),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", "/tmp/catalog-imports"),

		// Import pipeline
		ImportQueueKey:     getEnv("IMPORT_QUEUE_KEY", "catalog:imports:queue"),
		ImportRunTimeout:   runTimeout,
		ImportGroupWorkers: groupWorkers,
		ImportClaimBackend: strings.ToLower(getEnv("IMPORT_CLAIM_BACKEND", ClaimBackendMemory)),
		MaxProductVariants: maxProductVariants,
		MaxUploadBytes:     maxUploadMB << 20,
		BarcodePolicies:    loadBarcodePolicies(),

		// Pagination
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
	}
}

// loadBarcodePolicies reads BARCODE_POLICY_<KIND>, e.g. BARCODE_POLICY_CREATE_FULL=suffix.
// Full creates suffix colliding barcodes by default; every other kind rejects them.
func loadBarcodePolicies() map[models.ImportKind]importer.BarcodePolicy {
	policies := make(map[models.ImportKind]importer.BarcodePolicy)
	for _, kind := range models.ImportKinds() {
		def := string(importer.BarcodePolicyReject)
		if kind == models.ImportKindCreateFull {
			def = string(importer.BarcodePolicySuffix)
		}
		key := "BARCODE_POLICY_" + strings.ToUpper(strings.ReplaceAll(string(kind), "-", "_"))
		policy, err := importer.ParseBarcodePolicy(getEnv(key, def))
		if err != nil {
			log.Printf("Invalid %s, using %s: %v", key, def, err)
			policy = importer.BarcodePolicy(def)
		}
		policies[kind] = policy
	}
	return policies
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate models to keep schema up to date
	// This will add missing columns but won't delete existing columns
	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.AttributeSet{},
		&models.AttributeGroup{},
		&models.Attribute{},
		&models.AttributeGroupAttribute{},
		&models.AttributeOption{},
		&models.UomOption{},
		&models.Product{},
		&models.ProductDescription{},
		&models.ProductVariant{},
		&models.SellableProduct{},
		&models.SellableBarcode{},
		&models.ImportRun{},
		&models.ImportResult{},
		&models.ImportReportLine{},
	); err != nil {
		// Ignore errors about dropping non-existent constraints
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			log.Printf("Note: Migration constraint warning (safe to ignore): %v", err)
		} else {
			return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
		}
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

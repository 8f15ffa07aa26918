package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV  ImportFormat = "csv"
	ImportFormatXLSX ImportFormat = "xlsx"
)

// ImportKind selects the column contract and creation path of a run
type ImportKind string

const (
	ImportKindCreateFull  ImportKind = "create-full"
	ImportKindCreateBasic ImportKind = "create-basic"
	ImportKindCreateQuick ImportKind = "create-quick"
	ImportKindUpdateBasic ImportKind = "update-basic"
)

// ImportKinds lists every supported kind in display order
func ImportKinds() []ImportKind {
	return []ImportKind{ImportKindCreateFull, ImportKindCreateBasic, ImportKindCreateQuick, ImportKindUpdateBasic}
}

// Valid reports whether k is a known import kind
func (k ImportKind) Valid() bool {
	for _, known := range ImportKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// IsUpdate reports whether the kind modifies existing sellables instead of creating products
func (k ImportKind) IsUpdate() bool {
	return k == ImportKindUpdateBasic
}

// AllowsGroups reports whether child rows may reference a parent row
func (k ImportKind) AllowsGroups() bool {
	return k == ImportKindCreateFull
}

// UsesAttributes reports whether attribute columns are read for this kind
func (k ImportKind) UsesAttributes() bool {
	return k != ImportKindCreateQuick
}

// ImportStatus represents the lifecycle state of an import run
type ImportStatus string

const (
	ImportStatusNew        ImportStatus = "new"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusDone       ImportStatus = "done"
	ImportStatusFailed     ImportStatus = "failed"
)

// ResultStatus is the terminal outcome of one input row
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusFailure ResultStatus = "failure"
	ResultStatusFatal   ResultStatus = "fatal"
)

// ImportRun is one uploaded file's processing lifecycle
type ImportRun struct {
	ID              uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SellerID        int64        `json:"sellerId" gorm:"not null;index"`
	Type            ImportKind   `json:"type" gorm:"column:type;not null"`
	AttributeSetID  uint         `json:"attributeSetId" gorm:"not null"`
	FilePath        string       `json:"filePath" gorm:"not null"`
	FileFormat      ImportFormat `json:"fileFormat" gorm:"not null"`
	Status          ImportStatus `json:"status" gorm:"not null;default:'new';index"`
	TotalRows       int          `json:"totalRows" gorm:"not null;default:0"`
	TotalRowSuccess int          `json:"totalRowSuccess" gorm:"column:total_row_success;not null;default:0"`
	Message         *string      `json:"message,omitempty" gorm:"type:text"`
	ReportPath      *string      `json:"reportPath,omitempty"`
	CancelRequested bool         `json:"cancelRequested" gorm:"not null;default:false"`
	CreatedBy       string       `json:"createdBy" gorm:"not null"`
	StartedAt       *time.Time   `json:"startedAt,omitempty"`
	FinishedAt      *time.Time   `json:"finishedAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// ImportResult is the durable outcome of one input row
type ImportResult struct {
	ID                uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ImportID          uuid.UUID         `json:"importId" gorm:"type:uuid;not null;index"`
	RowIndex          int               `json:"rowIndex" gorm:"not null"`
	GroupKey          int               `json:"groupKey" gorm:"not null"`
	Data              datatypes.JSONMap `json:"data" gorm:"type:jsonb"`
	Status            ResultStatus      `json:"status" gorm:"not null;index"`
	Code              string            `json:"code,omitempty"`
	Message           string            `json:"message" gorm:"type:text"`
	ProductID         *uuid.UUID        `json:"productId,omitempty" gorm:"type:uuid"`
	VariantID         *uuid.UUID        `json:"variantId,omitempty" gorm:"type:uuid"`
	SellableProductID *uuid.UUID        `json:"sellableProductId,omitempty" gorm:"type:uuid"`
	SKU               *string           `json:"sku,omitempty"`
	Tag               string            `json:"tag" gorm:"not null;uniqueIndex"`
	ReportedAt        *time.Time        `json:"reportedAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// ImportReportLine is one line of the downloadable report, unique per row tag
type ImportReportLine struct {
	ID        uuid.UUID    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ImportID  uuid.UUID    `json:"importId" gorm:"type:uuid;not null;index"`
	Tag       string       `json:"tag" gorm:"not null;uniqueIndex"`
	RowIndex  int          `json:"rowIndex" gorm:"not null"`
	Status    ResultStatus `json:"status" gorm:"not null"`
	Message   string       `json:"message" gorm:"type:text"`
	SellerSKU string       `json:"sellerSku" gorm:"column:seller_sku"`
	SKU       string       `json:"sku"`
	ProductID *uuid.UUID   `json:"productId,omitempty" gorm:"type:uuid"`
	CreatedAt time.Time    `json:"createdAt"`
}

// TableName returns the table name for the ImportRun model
func (ImportRun) TableName() string {
	return "import_runs"
}

// TableName returns the table name for the ImportResult model
func (ImportResult) TableName() string {
	return "import_results"
}

// TableName returns the table name for the ImportReportLine model
func (ImportReportLine) TableName() string {
	return "import_report_lines"
}

// Column headers of the import file contract. Headers are matched lower-cased and trimmed.
const (
	ColumnProductName    = "product name"
	ColumnSellerSKU      = "seller_sku"
	ColumnSKU            = "sku"
	ColumnUnitOfMeasure  = "unit of measure"
	ColumnCategory       = "category"
	ColumnBarcode        = "barcode"
	ColumnParentRow      = "parent row"
	ColumnVariantName    = "variant name"
	ColumnDescription    = "description"
	ColumnBrand          = "brand"
	ColumnSeoTitle       = "seo title"
	ColumnSeoDescription = "seo description"
	ColumnSeoKeywords    = "seo keywords"
	ColumnIsBundle       = "is bundle"
)

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // string, number, boolean, selection, multiple_select
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Kind       ImportKind             `json:"kind"`
	Version    string                 `json:"version"`
	Columns    []ImportTemplateColumn `json:"columns"`
	SampleData []map[string]string    `json:"sampleData,omitempty"`
}

// ImportColumns returns the fixed column definitions for an import kind,
// without the per-schema attribute columns
func ImportColumns(kind ImportKind) []ImportTemplateColumn {
	name := ImportTemplateColumn{Name: ColumnProductName, Description: "Product name, taken from the parent row for grouped rows", Required: true, Type: "string", Example: "Cotton T-Shirt"}
	sellerSKU := ImportTemplateColumn{Name: ColumnSellerSKU, Description: "Seller SKU, unique per seller", Required: true, Type: "string", Example: "TSH-001"}
	sku := ImportTemplateColumn{Name: ColumnSKU, Description: "Catalog SKU, derived from seller_sku when blank", Required: false, Type: "string", Example: ""}
	uom := ImportTemplateColumn{Name: ColumnUnitOfMeasure, Description: "Unit of measure name or code", Required: true, Type: "string", Example: "Piece"}
	category := ImportTemplateColumn{Name: ColumnCategory, Description: "Category name", Required: true, Type: "string", Example: "Apparel"}
	barcode := ImportTemplateColumn{Name: ColumnBarcode, Description: "Comma-separated barcodes", Required: false, Type: "string", Example: "8901234567890"}
	description := ImportTemplateColumn{Name: ColumnDescription, Description: "Long description", Required: false, Type: "string", Example: ""}
	brand := ImportTemplateColumn{Name: ColumnBrand, Description: "Brand name", Required: false, Type: "string", Example: ""}

	switch kind {
	case ImportKindCreateFull:
		return []ImportTemplateColumn{
			name, sellerSKU, sku, uom, category, barcode,
			{Name: ColumnParentRow, Description: "Row number of the parent row; blank for parent or standalone rows", Required: false, Type: "number", Example: ""},
			{Name: ColumnVariantName, Description: "Variant display name, generated from variation attributes when blank", Required: false, Type: "string", Example: ""},
			description, brand,
			{Name: ColumnSeoTitle, Description: "SEO title", Required: false, Type: "string", Example: ""},
			{Name: ColumnSeoDescription, Description: "SEO description", Required: false, Type: "string", Example: ""},
			{Name: ColumnSeoKeywords, Description: "Comma-separated SEO keywords", Required: false, Type: "string", Example: ""},
			{Name: ColumnIsBundle, Description: "yes when the product is a bundle", Required: false, Type: "boolean", Example: "no"},
		}
	case ImportKindCreateBasic:
		return []ImportTemplateColumn{name, sellerSKU, sku, uom, category, barcode, description, brand}
	case ImportKindCreateQuick:
		return []ImportTemplateColumn{name, sellerSKU, sku, uom, category, barcode}
	case ImportKindUpdateBasic:
		name.Required = false
		return []ImportTemplateColumn{sellerSKU, name, barcode, description, brand}
	}
	return nil
}

// RequiredColumns returns the header names a file of the given kind must carry
func RequiredColumns(kind ImportKind) []string {
	var required []string
	for _, col := range ImportColumns(kind) {
		if col.Required {
			required = append(required, col.Name)
		}
	}
	return required
}

package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProductStatus represents the status of a product
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusInactive ProductStatus = "INACTIVE"
)

// JSON type for PostgreSQL JSONB (object/map)
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// JSONArray type for PostgreSQL JSONB (array)
type JSONArray []interface{}

func (j JSONArray) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONArray) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONArray, 0)
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Product is the catalog root created once per import group.
type Product struct {
	ID             uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SellerID       int64             `json:"sellerId" gorm:"not null;index"`
	AttributeSetID uint              `json:"attributeSetId" gorm:"not null;index"`
	CategoryID     string            `json:"categoryId" gorm:"not null;index"`
	Name           string            `json:"name" gorm:"not null"`
	Brand          *string           `json:"brand,omitempty" gorm:"index"`
	IsBundle       bool              `json:"isBundle" gorm:"not null;default:false"`
	Status         ProductStatus     `json:"status" gorm:"not null;default:'DRAFT'"`
	ImportID       *uuid.UUID        `json:"importId,omitempty" gorm:"type:uuid;index"`
	Variants       []*ProductVariant `json:"variants,omitempty" gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
	DeletedAt      *gorm.DeletedAt   `json:"deletedAt,omitempty" gorm:"index"`
	CreatedBy      *string           `json:"createdBy,omitempty"`
	UpdatedBy      *string           `json:"updatedBy,omitempty"`
}

// ProductDescription holds the long description and SEO metadata of a product
type ProductDescription struct {
	ID             uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID      uuid.UUID  `json:"productId" gorm:"type:uuid;not null;uniqueIndex"`
	Description    *string    `json:"description,omitempty" gorm:"type:text"`
	SeoTitle       *string    `json:"seoTitle,omitempty" gorm:"column:seo_title;type:text"`
	SeoDescription *string    `json:"seoDescription,omitempty" gorm:"column:seo_description;type:text"`
	SeoKeywords    *JSONArray `json:"seoKeywords,omitempty" gorm:"column:seo_keywords;type:jsonb"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// ProductVariant is one attribute-described variation of a product
type ProductVariant struct {
	ID         uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID  uuid.UUID         `json:"productId" gorm:"type:uuid;not null;index"`
	Name       string            `json:"name" gorm:"not null"`
	Attributes datatypes.JSONMap `json:"attributes,omitempty" gorm:"type:jsonb"`
	Position   int               `json:"position" gorm:"not null;default:0"`
	Sellable   *SellableProduct  `json:"sellable,omitempty" gorm:"foreignKey:VariantID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
	DeletedAt  *gorm.DeletedAt   `json:"deletedAt,omitempty" gorm:"index"`
}

// SellableProduct is the SKU actually offered for sale. sku is unique catalog wide,
// seller_sku is unique per seller.
type SellableProduct struct {
	ID        uuid.UUID         `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ProductID uuid.UUID         `json:"productId" gorm:"type:uuid;not null;index"`
	VariantID uuid.UUID         `json:"variantId" gorm:"type:uuid;not null;uniqueIndex"`
	SellerID  int64             `json:"sellerId" gorm:"not null;uniqueIndex:idx_sellable_seller_sku"`
	SKU       string            `json:"sku" gorm:"not null;uniqueIndex"`
	SellerSKU string            `json:"sellerSku" gorm:"column:seller_sku;not null;uniqueIndex:idx_sellable_seller_sku"`
	UomID     uint              `json:"uomId" gorm:"not null"`
	UomCode   string            `json:"uomCode" gorm:"not null"`
	UomRatio  float64           `json:"uomRatio" gorm:"not null;default:1"`
	Detail    datatypes.JSONMap `json:"detail,omitempty" gorm:"type:jsonb"`
	Barcodes  []SellableBarcode `json:"barcodes,omitempty" gorm:"foreignKey:SellableProductID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	DeletedAt *gorm.DeletedAt   `json:"deletedAt,omitempty" gorm:"index"`
}

// SellableBarcode is a barcode attached to a sellable product, unique catalog wide
type SellableBarcode struct {
	ID                uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SellableProductID uuid.UUID `json:"sellableProductId" gorm:"type:uuid;not null;index"`
	Barcode           string    `json:"barcode" gorm:"not null;uniqueIndex"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Response types
type PaginationInfo struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     Error  `json:"error"`
	Timestamp string `json:"timestamp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details *JSON  `json:"details,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// TableName returns the table name for the ProductDescription model
func (ProductDescription) TableName() string {
	return "product_descriptions"
}

// TableName returns the table name for the ProductVariant model
func (ProductVariant) TableName() string {
	return "product_variants"
}

// TableName returns the table name for the SellableProduct model
func (SellableProduct) TableName() string {
	return "sellable_products"
}

// TableName returns the table name for the SellableBarcode model
func (SellableBarcode) TableName() string {
	return "sellable_barcodes"
}

package importer

import (
	"errors"
	"fmt"

	"catalog-service/internal/models"
)

// Result codes written to import results. Validation failures carry a specific code,
// everything else is recorded as CodeFatal.
const (
	CodeRequiredValue         = "REQUIRED_VALUE"
	CodeInvalidUnitOfMeasure  = "INVALID_UNIT_OF_MEASURE"
	CodeInvalidAttributeValue = "INVALID_ATTRIBUTE_VALUE"
	CodeDuplicateVariant      = "DUPLICATE_VARIANT"
	CodeDuplicateSKU          = "DUPLICATE_SKU"
	CodeOrphanChildRow        = "ORPHAN_CHILD_ROW"
	CodeGroupValidation       = "GROUP_VALIDATION"
	CodeBundleSellableData    = "BUNDLE_SELLABLE_DATA"
	CodeSellableNotFound      = "SELLABLE_NOT_FOUND"
	CodeCategoryNotFound      = "CATEGORY_NOT_FOUND"
	CodeGroupRolledBack       = "GROUP_ROLLED_BACK"
	CodeNotProcessed          = "NOT_PROCESSED"
	CodeFatal                 = "FATAL"
)

// ValidationError is an expected, user-fixable problem with a row.
// Anything that does not implement it is treated as fatal.
type ValidationError interface {
	error
	Code() string
}

// SchemaNotFoundError is returned when an attribute set cannot drive an import
type SchemaNotFoundError struct {
	AttributeSetID uint
	Reason         string
}

func (e *SchemaNotFoundError) Error() string {
	return fmt.Sprintf("attribute set %d cannot be used: %s", e.AttributeSetID, e.Reason)
}

// FileFormatError is returned when the uploaded file cannot be decoded or
// does not follow the column contract of its import kind
type FileFormatError struct {
	Reason string
}

func (e *FileFormatError) Error() string {
	return "invalid import file: " + e.Reason
}

// SellerNotFoundError is returned when the seller of a run is unknown
type SellerNotFoundError struct {
	SellerID int64
}

func (e *SellerNotFoundError) Error() string {
	return fmt.Sprintf("seller %d does not exist", e.SellerID)
}

// RequiredValueError is a blank cell in a required column
type RequiredValueError struct {
	Column string
}

func (e *RequiredValueError) Error() string {
	return fmt.Sprintf("column %q is required", e.Column)
}

func (e *RequiredValueError) Code() string { return CodeRequiredValue }

// InvalidUnitOfMeasureError is a unit name that matches no option visible to the seller
type InvalidUnitOfMeasureError struct {
	Value string
}

func (e *InvalidUnitOfMeasureError) Error() string {
	if e.Value == "" {
		return "unit of measure is required"
	}
	return fmt.Sprintf("unit of measure %q does not exist", e.Value)
}

func (e *InvalidUnitOfMeasureError) Code() string { return CodeInvalidUnitOfMeasure }

// InvalidAttributeValueError is a value that cannot be converted to its attribute's type
type InvalidAttributeValueError struct {
	Attribute string
	Value     string
	Reason    string
}

func (e *InvalidAttributeValueError) Error() string {
	return fmt.Sprintf("invalid value %q for attribute %q: %s", e.Value, e.Attribute, e.Reason)
}

func (e *InvalidAttributeValueError) Code() string { return CodeInvalidAttributeValue }

// DuplicateVariantError is a child row repeating the variation values of an earlier row in its group
type DuplicateVariantError struct {
	Row      int
	FirstRow int
}

func (e *DuplicateVariantError) Error() string {
	return fmt.Sprintf("row %d repeats the variation attribute values of row %d", e.Row, e.FirstRow)
}

func (e *DuplicateVariantError) Code() string { return CodeDuplicateVariant }

// DuplicateSkuError is a uniqueness collision on sku, seller_sku or barcode
type DuplicateSkuError struct {
	Field string
	Value string
	InRun bool
}

func (e *DuplicateSkuError) Error() string {
	if e.InRun {
		return fmt.Sprintf("%s %q is already used by another row of this file", e.Field, e.Value)
	}
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *DuplicateSkuError) Code() string { return CodeDuplicateSKU }

// OrphanChildRowError is a child row that cannot join a group
type OrphanChildRowError struct {
	ParentRow string
	Reason    string
}

func (e *OrphanChildRowError) Error() string {
	return fmt.Sprintf("parent row %s: %s", e.ParentRow, e.Reason)
}

func (e *OrphanChildRowError) Code() string { return CodeOrphanChildRow }

// GroupValidationError is a parent row whose group breaks a structural rule
type GroupValidationError struct {
	Reason string
}

func (e *GroupValidationError) Error() string {
	return "invalid product group: " + e.Reason
}

func (e *GroupValidationError) Code() string { return CodeGroupValidation }

// BundleSellableDataError is a bundle row that declares its own sellable data
type BundleSellableDataError struct {
	Field string
}

func (e *BundleSellableDataError) Error() string {
	return fmt.Sprintf("a bundle product cannot declare its own sellable data (%s)", e.Field)
}

func (e *BundleSellableDataError) Code() string { return CodeBundleSellableData }

// SellableNotFoundError is an update row whose seller_sku matches nothing
type SellableNotFoundError struct {
	SellerSKU string
}

func (e *SellableNotFoundError) Error() string {
	return fmt.Sprintf("no sellable product with seller_sku %q", e.SellerSKU)
}

func (e *SellableNotFoundError) Code() string { return CodeSellableNotFound }

// CategoryNotFoundError is a category name that does not resolve
type CategoryNotFoundError struct {
	Name string
}

func (e *CategoryNotFoundError) Error() string {
	return fmt.Sprintf("category %q does not exist", e.Name)
}

func (e *CategoryNotFoundError) Code() string { return CodeCategoryNotFound }

// RowError attaches the file row index to an error raised while handling that row
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// rowIndexOf returns the row carried by err, or 0
func rowIndexOf(err error) int {
	var rowErr *RowError
	if errors.As(err, &rowErr) {
		return rowErr.Row
	}
	return 0
}

// Classify maps an error to the result status, code and message recorded for a row
func Classify(err error) (models.ResultStatus, string, string) {
	var rowErr *RowError
	msg := err.Error()
	if errors.As(err, &rowErr) {
		msg = rowErr.Err.Error()
	}
	var verr ValidationError
	if errors.As(err, &verr) {
		return models.ResultStatusFailure, verr.Code(), msg
	}
	return models.ResultStatusFatal, CodeFatal, msg
}

// IsRunLevel reports whether err aborts the whole run
func IsRunLevel(err error) bool {
	var schemaErr *SchemaNotFoundError
	var fileErr *FileFormatError
	var sellerErr *SellerNotFoundError
	return errors.As(err, &schemaErr) || errors.As(err, &fileErr) || errors.As(err, &sellerErr)
}

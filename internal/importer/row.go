package importer

import (
	"strings"

	"catalog-service/internal/models"
)

// RawRow is one decoded data line of an import file. Index is the file row
// number: the header is row 1 and the first data row is row 2.
type RawRow struct {
	Index int
	Cells map[string]string
}

// Get returns the trimmed cell of a column
func (r RawRow) Get(column string) string {
	return strings.TrimSpace(r.Cells[column])
}

// Snapshot returns a copy of the cells suitable for storing on a result record
func (r RawRow) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Cells))
	for k, v := range r.Cells {
		out[k] = v
	}
	return out
}

// AttributeValue is a typed attribute value resolved against the schema
type AttributeValue struct {
	AttributeID uint
	Code        string
	ValueType   models.AttributeValueType
	Raw         string
	// Display is the human readable value: option values joined by ", " for selections
	Display   string
	Number    *float64
	OptionIDs []uint
	Unit      *UnitOption
}

// key is the identity of the value used to compare variant combinations
func (v AttributeValue) key() string {
	return v.Code + "=" + strings.ToLower(v.Display)
}

// JSON renders the value for JSONB storage
func (v AttributeValue) JSON() map[string]interface{} {
	out := map[string]interface{}{
		"attributeId": v.AttributeID,
		"value":       v.Display,
	}
	if v.Number != nil {
		out["number"] = *v.Number
	}
	if len(v.OptionIDs) > 0 {
		out["optionIds"] = v.OptionIDs
	}
	if v.Unit != nil {
		out["unit"] = v.Unit.Code
		out["unitRatio"] = v.Unit.Ratio
	}
	return out
}

// ImportRow is the normalized, immutable form of one file row. It is built by
// the Normalizer and only copied afterwards.
type ImportRow struct {
	index          int
	parentIndex    int
	productName    string
	variantName    string
	sku            string
	sellerSKU      string
	category       string
	barcodes       []string
	description    string
	brand          string
	seoTitle       string
	seoDescription string
	seoKeywords    []string
	bundle         bool
	uom            UnitOption
	variation      []AttributeValue
	details        []AttributeValue
}

func (r ImportRow) Index() int                { return r.index }
func (r ImportRow) ParentIndex() int          { return r.parentIndex }
func (r ImportRow) ProductName() string       { return r.productName }
func (r ImportRow) VariantName() string       { return r.variantName }
func (r ImportRow) SKU() string               { return r.sku }
func (r ImportRow) SellerSKU() string         { return r.sellerSKU }
func (r ImportRow) Category() string          { return r.category }
func (r ImportRow) Description() string       { return r.description }
func (r ImportRow) Brand() string             { return r.brand }
func (r ImportRow) SeoTitle() string          { return r.seoTitle }
func (r ImportRow) SeoDescription() string    { return r.seoDescription }
func (r ImportRow) IsBundle() bool            { return r.bundle }
func (r ImportRow) UnitOfMeasure() UnitOption { return r.uom }

// Barcodes returns a copy of the row's barcodes
func (r ImportRow) Barcodes() []string { return append([]string(nil), r.barcodes...) }

// SeoKeywords returns a copy of the row's SEO keywords
func (r ImportRow) SeoKeywords() []string { return append([]string(nil), r.seoKeywords...) }

// VariationValues returns the variation attribute values in schema priority order
func (r ImportRow) VariationValues() []AttributeValue {
	return append([]AttributeValue(nil), r.variation...)
}

// DetailValues returns the non-variation attribute values in schema priority order
func (r ImportRow) DetailValues() []AttributeValue {
	return append([]AttributeValue(nil), r.details...)
}

// WithBarcodes returns a copy of the row carrying different barcodes
func (r ImportRow) WithBarcodes(barcodes []string) ImportRow {
	r.barcodes = append([]string(nil), barcodes...)
	return r
}

// variationKey identifies the variation combination of the row
func (r ImportRow) variationKey() string {
	parts := make([]string, 0, len(r.variation))
	for _, v := range r.variation {
		parts = append(parts, v.key())
	}
	return strings.Join(parts, "|")
}

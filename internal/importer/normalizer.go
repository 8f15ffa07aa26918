package importer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"catalog-service/internal/models"
)

var skuSanitizer = regexp.MustCompile(`[^A-Z0-9]+`)

// Normalizer turns raw rows into typed ImportRows. It performs no I/O.
type Normalizer struct {
	schema *Schema
	kind   models.ImportKind
}

// NewNormalizer creates a normalizer bound to the schema and kind of a run
func NewNormalizer(schema *Schema, kind models.ImportKind) *Normalizer {
	return &Normalizer{schema: schema, kind: kind}
}

// Normalize converts one raw row
func (n *Normalizer) Normalize(raw RawRow) (ImportRow, error) {
	row := ImportRow{
		index:          raw.Index,
		productName:    raw.Get(models.ColumnProductName),
		variantName:    raw.Get(models.ColumnVariantName),
		sku:            raw.Get(models.ColumnSKU),
		sellerSKU:      raw.Get(models.ColumnSellerSKU),
		category:       raw.Get(models.ColumnCategory),
		barcodes:       splitList(raw.Get(models.ColumnBarcode)),
		description:    raw.Get(models.ColumnDescription),
		brand:          raw.Get(models.ColumnBrand),
		seoTitle:       raw.Get(models.ColumnSeoTitle),
		seoDescription: raw.Get(models.ColumnSeoDescription),
		seoKeywords:    splitList(raw.Get(models.ColumnSeoKeywords)),
		bundle:         parseBool(raw.Get(models.ColumnIsBundle)),
	}
	if parent := raw.Get(models.ColumnParentRow); parent != "" {
		row.parentIndex, _ = strconv.Atoi(parent)
	}
	isChild := row.parentIndex > 0

	if row.sellerSKU == "" {
		return ImportRow{}, &RequiredValueError{Column: models.ColumnSellerSKU}
	}

	if !n.kind.IsUpdate() {
		if !isChild {
			if row.productName == "" {
				return ImportRow{}, &RequiredValueError{Column: models.ColumnProductName}
			}
			if row.category == "" {
				return ImportRow{}, &RequiredValueError{Column: models.ColumnCategory}
			}
		}
		uomName := raw.Get(models.ColumnUnitOfMeasure)
		uom, ok := n.schema.LookupUnit(uomName, "")
		if !ok {
			return ImportRow{}, &InvalidUnitOfMeasureError{Value: uomName}
		}
		row.uom = uom
		if row.sku == "" {
			row.sku = DeriveSKU(n.schema.SellerID(), row.sellerSKU)
		}
	}

	if n.kind.UsesAttributes() {
		for _, attr := range n.schema.Attributes() {
			value := raw.Get(attr.Code)
			if value == "" {
				continue
			}
			if attr.IsVariation && n.kind.IsUpdate() {
				return ImportRow{}, &InvalidAttributeValueError{Attribute: attr.Code, Value: value, Reason: "variation attributes cannot be changed by an update import"}
			}
			av, err := n.convert(attr, value)
			if err != nil {
				return ImportRow{}, err
			}
			if attr.IsVariation {
				row.variation = append(row.variation, av)
			} else {
				row.details = append(row.details, av)
			}
		}
	}

	return row, nil
}

// NormalizeGroup normalizes the rows of one group and rejects repeated variation
// combinations. The returned error is a *RowError naming the offending row.
func (n *Normalizer) NormalizeGroup(raws []RawRow) ([]ImportRow, error) {
	rows := make([]ImportRow, 0, len(raws))
	seen := make(map[string]int, len(raws))
	for _, raw := range raws {
		row, err := n.Normalize(raw)
		if err != nil {
			return nil, &RowError{Row: raw.Index, Err: err}
		}
		if len(raws) > 1 {
			key := row.variationKey()
			if first, dup := seen[key]; dup {
				return nil, &RowError{Row: raw.Index, Err: &DuplicateVariantError{Row: raw.Index, FirstRow: first}}
			}
			seen[key] = raw.Index
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (n *Normalizer) convert(attr SchemaAttribute, value string) (AttributeValue, error) {
	av := AttributeValue{
		AttributeID: attr.AttributeID,
		Code:        attr.Code,
		ValueType:   attr.ValueType,
		Raw:         value,
		Display:     value,
	}

	switch attr.ValueType {
	case models.AttributeValueNumber:
		fields := strings.Fields(value)
		num, err := strconv.ParseFloat(fields[0], 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			return av, &InvalidAttributeValueError{Attribute: attr.Code, Value: value, Reason: "not a number"}
		}
		av.Number = &num
		if len(fields) > 1 {
			if attr.UnitFamily == "" {
				return av, &InvalidAttributeValueError{Attribute: attr.Code, Value: value, Reason: "not a number"}
			}
			unitName := strings.Join(fields[1:], " ")
			unit, ok := n.schema.LookupUnit(unitName, attr.UnitFamily)
			if !ok {
				return av, &InvalidAttributeValueError{Attribute: attr.Code, Value: value, Reason: fmt.Sprintf("unknown %s unit %q", attr.UnitFamily, unitName)}
			}
			av.Unit = &unit
		}
	case models.AttributeValueSelection:
		id, display, ok := n.schema.LookupOption(attr.AttributeID, value)
		if !ok {
			return av, &InvalidAttributeValueError{Attribute: attr.Code, Value: value, Reason: "not an allowed option"}
		}
		av.OptionIDs = []uint{id}
		av.Display = display
	case models.AttributeValueMultipleSelect:
		var displays []string
		seen := make(map[uint]bool)
		for _, part := range splitList(value) {
			id, display, ok := n.schema.LookupOption(attr.AttributeID, part)
			if !ok {
				return av, &InvalidAttributeValueError{Attribute: attr.Code, Value: part, Reason: "not an allowed option"}
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			av.OptionIDs = append(av.OptionIDs, id)
			displays = append(displays, display)
		}
		if len(av.OptionIDs) == 0 {
			return av, &InvalidAttributeValueError{Attribute: attr.Code, Value: value, Reason: "no option given"}
		}
		av.Display = strings.Join(displays, ", ")
	}
	return av, nil
}

// DeriveSKU builds the catalog SKU of a row that leaves the sku column blank
func DeriveSKU(sellerID int64, sellerSKU string) string {
	cleaned := strings.Trim(skuSanitizer.ReplaceAllString(strings.ToUpper(sellerSKU), "-"), "-")
	return fmt.Sprintf("S%d-%s", sellerID, cleaned)
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}
